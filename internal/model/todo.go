package model

// 待办优先级取值范围（闭区间）。
const (
	MinPriority = 1
	MaxPriority = 5
)

// Todo 表示用户的一条待办事项。
//
// OwnerID 指向 users.id，外键由 User.Todos 关联在迁移时创建。
type Todo struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:varchar(100)" json:"description"`
	Priority    int    `gorm:"not null" json:"priority"`
	Complete    bool   `gorm:"not null" json:"complete"`
	OwnerID     uint   `gorm:"not null;index" json:"owner_id"`
}

package model

import (
	"fmt"
	"strings"
	"time"
)

// Role 表示用户角色。
//
// 只有 RoleUser 与 RoleAdmin 两个取值，其他字符串在 ParseRole 中被拒绝。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole 将外部输入转换为 Role（忽略大小写与首尾空白）。
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid 判断角色是否为已知取值。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// User 表示系统用户。
type User struct {
	ID             uint      `gorm:"primaryKey"`                            // 用户 ID
	Username       string    `gorm:"type:varchar(191);uniqueIndex;not null"` // 用户名（唯一）
	Email          string    `gorm:"type:varchar(191)"`                     // 邮箱
	FirstName      string    `gorm:"type:varchar(100)"`
	LastName       string    `gorm:"type:varchar(100)"`
	Role           Role      `gorm:"type:varchar(16);not null"` // 角色: admin / user
	HashedPassword string    `gorm:"not null"`                  // bcrypt 哈希
	IsActive       bool      `gorm:"not null"`                  // 是否启用
	CreatedAt      time.Time // 创建时间

	Todos []Todo `gorm:"foreignKey:OwnerID"`
}

// Identity 是从 Bearer Token 中解析出的调用者身份。
type Identity struct {
	UserID   uint
	Username string
	Role     Role
}

// IsAdmin 判断调用者是否为管理员。
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"todoapp/internal/model"
	"todoapp/internal/store"

	"gorm.io/gorm"
)

// TodoInput 是创建与整体更新待办时提交的字段。
type TodoInput struct {
	Title       string
	Description string
	Priority    int
	Complete    bool
}

func (in TodoInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title", "must not be empty")
	}
	if in.Priority < model.MinPriority || in.Priority > model.MaxPriority {
		return invalid("priority", "must be between %d and %d", model.MinPriority, model.MaxPriority)
	}
	return nil
}

// TodoService 提供调用者自己的待办增删改查。
//
// 所有查询都带 owner_id 过滤：他人的待办与不存在的待办同样返回 ErrNotFound。
type TodoService struct{}

func NewTodoService() *TodoService {
	return &TodoService{}
}

// ListMine 返回调用者拥有的全部待办。
func (s *TodoService) ListMine(ctx context.Context, sess *store.Session, caller model.Identity) ([]model.Todo, error) {
	todos := []model.Todo{}
	if err := sess.DB().WithContext(ctx).Where("owner_id = ?", caller.UserID).Find(&todos).Error; err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}

// Get 返回调用者拥有的指定待办。
func (s *TodoService) Get(ctx context.Context, sess *store.Session, caller model.Identity, id uint) (*model.Todo, error) {
	var todo model.Todo
	err := sess.DB().WithContext(ctx).Where("id = ? AND owner_id = ?", id, caller.UserID).First(&todo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get todo: %w", err)
	}
	return &todo, nil
}

// Create 为调用者创建待办；校验失败时不写库。
func (s *TodoService) Create(ctx context.Context, sess *store.Session, caller model.Identity, in TodoInput) (*model.Todo, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	todo := &model.Todo{
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Complete:    in.Complete,
		OwnerID:     caller.UserID,
	}
	if err := sess.DB().WithContext(ctx).Create(todo).Error; err != nil {
		return nil, fmt.Errorf("create todo: %w", err)
	}
	return todo, nil
}

// Update 用提交的字段整体覆盖调用者的待办。
func (s *TodoService) Update(ctx context.Context, sess *store.Session, caller model.Identity, id uint, in TodoInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	todo, err := s.Get(ctx, sess, caller, id)
	if err != nil {
		return err
	}
	todo.Title = in.Title
	todo.Description = in.Description
	todo.Priority = in.Priority
	todo.Complete = in.Complete
	if err := sess.DB().WithContext(ctx).Save(todo).Error; err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	return nil
}

// Delete 删除调用者的待办。
func (s *TodoService) Delete(ctx context.Context, sess *store.Session, caller model.Identity, id uint) error {
	res := sess.DB().WithContext(ctx).Where("id = ? AND owner_id = ?", id, caller.UserID).Delete(&model.Todo{})
	if res.Error != nil {
		return fmt.Errorf("delete todo: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

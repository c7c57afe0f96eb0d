package service

import (
	"context"
	"fmt"

	"todoapp/internal/model"
	"todoapp/internal/store"
)

// AdminService 提供管理员跨用户的读取与删除。
// 角色校验总是先于存在性校验。
type AdminService struct{}

func NewAdminService() *AdminService {
	return &AdminService{}
}

func (s *AdminService) ListAll(ctx context.Context, sess *store.Session, caller model.Identity) ([]model.Todo, error) {
	if !caller.IsAdmin() {
		return nil, ErrUnauthorized
	}
	todos := []model.Todo{}
	if err := sess.DB().WithContext(ctx).Find(&todos).Error; err != nil {
		return nil, fmt.Errorf("list all todos: %w", err)
	}
	return todos, nil
}

func (s *AdminService) DeleteAny(ctx context.Context, sess *store.Session, caller model.Identity, id uint) error {
	if !caller.IsAdmin() {
		return ErrUnauthorized
	}
	res := sess.DB().WithContext(ctx).Where("id = ?", id).Delete(&model.Todo{})
	if res.Error != nil {
		return fmt.Errorf("delete todo: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

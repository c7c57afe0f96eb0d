package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"todoapp/internal/model"
	"todoapp/internal/pkg/password"
	"todoapp/internal/store"

	"gorm.io/gorm"
)

// MinPasswordLength 修改密码时新密码的最小长度。
const MinPasswordLength = 6

// UserService 提供用户自助的资料查询与改密。
type UserService struct {
	hasher password.Hasher
}

func NewUserService(hasher password.Hasher) *UserService {
	return &UserService{hasher: hasher}
}

// GetSelf 返回调用者的用户记录。令牌指向的用户不存在时视为未认证。
func (s *UserService) GetSelf(ctx context.Context, sess *store.Session, caller model.Identity) (*model.User, error) {
	var user model.User
	err := sess.DB().WithContext(ctx).Where("id = ?", caller.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// ChangePassword 校验旧密码后写入新密码的哈希。
func (s *UserService) ChangePassword(ctx context.Context, sess *store.Session, caller model.Identity, oldPassword, newPassword string) error {
	user, err := s.GetSelf(ctx, sess, caller)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(oldPassword, user.HashedPassword) {
		return ErrUnauthorized
	}
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return invalid("new_password", "must be at least %d characters", MinPasswordLength)
	}
	if len(newPassword) > password.MaxLength {
		return invalid("new_password", "must be at most %d bytes", password.MaxLength)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := sess.DB().WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Update("hashed_password", hash).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

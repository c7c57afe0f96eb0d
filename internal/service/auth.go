package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"todoapp/internal/model"
	"todoapp/internal/pkg/password"
	"todoapp/internal/store"

	"gorm.io/gorm"
)

// TokenIssuer 签发与校验访问令牌。
type TokenIssuer interface {
	Issue(user *model.User) (string, error)
	Validate(raw string) (model.Identity, error)
}

// AuthService 负责注册、凭证校验与令牌签发。
type AuthService struct {
	hasher password.Hasher
	tokens TokenIssuer
}

// NewAuthService 创建 AuthService。
func NewAuthService(hasher password.Hasher, tokens TokenIssuer) *AuthService {
	return &AuthService{hasher: hasher, tokens: tokens}
}

// RegisterInput 注册所需字段。
type RegisterInput struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
	Role      string
}

// Register 创建新用户，用户名重复时返回 ErrConflict。
func (s *AuthService) Register(ctx context.Context, sess *store.Session, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	if utf8.RuneCountInString(username) < 3 {
		return nil, invalid("username", "must be at least 3 characters")
	}
	if in.Password == "" {
		return nil, invalid("password", "must not be empty")
	}
	if len(in.Password) > password.MaxLength {
		return nil, invalid("password", "must be at most %d bytes", password.MaxLength)
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		return nil, invalid("role", "must be one of user, admin")
	}

	db := sess.DB().WithContext(ctx)
	var count int64
	if err := db.Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if count > 0 {
		return nil, ErrConflict
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:       username,
		Email:          strings.TrimSpace(in.Email),
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Role:           role,
		HashedPassword: hash,
		IsActive:       true,
	}
	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate 按用户名查找并校验密码。
//
// 用户不存在、已停用或密码错误时返回 (nil, false, nil)；error 仅表示持久化故障。
func (s *AuthService) Authenticate(ctx context.Context, username, plaintext string, sess *store.Session) (*model.User, bool, error) {
	var user model.User
	err := sess.DB().WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query user: %w", err)
	}
	if !user.IsActive {
		return nil, false, nil
	}
	if !s.hasher.Verify(plaintext, user.HashedPassword) {
		return nil, false, nil
	}
	return &user, true, nil
}

// IssueToken 为已认证用户签发访问令牌。
func (s *AuthService) IssueToken(user *model.User) (string, error) {
	return s.tokens.Issue(user)
}

// ValidateToken 校验令牌并返回调用者身份。
func (s *AuthService) ValidateToken(raw string) (model.Identity, error) {
	return s.tokens.Validate(raw)
}

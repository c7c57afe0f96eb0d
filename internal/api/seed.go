package api

import (
	"context"
	"errors"
	"log/slog"

	"todoapp/internal/model"
	"todoapp/internal/service"
	"todoapp/internal/store"

	"gorm.io/gorm"
)

// SeedAdmin 按配置写入默认管理员。
//
// 用户名或密码未配置时跳过；用户已存在时只确保其为启用的管理员，不会改动密码。
func (s *Server) SeedAdmin(ctx context.Context) error {
	cfg := s.cfg.Admin
	if cfg.Username == "" || cfg.Password == "" {
		return nil
	}

	return s.provider.WithSession(ctx, func(sess *store.Session) error {
		var user model.User
		err := sess.DB().WithContext(ctx).Where("username = ?", cfg.Username).First(&user).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			updates := map[string]interface{}{
				"role":      model.RoleAdmin,
				"is_active": true,
			}
			return sess.DB().WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error
		}

		created, err := s.authSvc.Register(ctx, sess, service.RegisterInput{
			Username: cfg.Username,
			Password: cfg.Password,
			Email:    cfg.Email,
			Role:     string(model.RoleAdmin),
		})
		if err != nil {
			return err
		}
		s.logger.Info("default admin created", slog.String("username", created.Username))
		return nil
	})
}

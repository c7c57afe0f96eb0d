package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"todoapp/internal/config"
	"todoapp/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ErrUnavailable 表示无法从连接池获取会话（连接耗尽、数据库不可达或已关闭）。
var ErrUnavailable = errors.New("persistence unavailable")

// Open 根据配置打开数据库连接并执行自动迁移。
//
// 支持的驱动: mysql（默认）/ sqlite。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "sqlite" || driver == "sqlite3" {
		// SQLite 单写者：限制为一个连接，避免 "database is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Todo{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

// Provider 为每个请求提供独立的持久化会话（数据库事务）。
type Provider struct {
	db *gorm.DB
}

// NewProvider 创建会话提供者。
func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db}
}

// Acquire 开启一个新会话。调用方必须 defer Release。
func (p *Provider) Acquire(ctx context.Context) (*Session, error) {
	if p == nil || p.db == nil {
		return nil, ErrUnavailable
	}
	tx := p.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, tx.Error)
	}
	return &Session{tx: tx}, nil
}

// WithSession 获取会话并执行 fn：fn 成功则提交，否则回滚。
//
// 无论 fn 返回错误还是 panic，会话都会被释放。
func (p *Provider) WithSession(ctx context.Context, fn func(sess *Session) error) error {
	sess, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()

	if err := fn(sess); err != nil {
		return err
	}
	return sess.Commit()
}

// Ping 检查数据库连通性。
func (p *Provider) Ping(ctx context.Context) error {
	if p == nil || p.db == nil {
		return ErrUnavailable
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close 关闭底层连接池。
func (p *Provider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Session 是单个请求内使用的事务句柄，不可跨请求共享。
type Session struct {
	tx   *gorm.DB
	done bool
}

// DB 返回绑定在当前事务上的 gorm 句柄。
func (s *Session) DB() *gorm.DB {
	return s.tx
}

// Commit 提交事务；提交失败时回滚并返回错误。
func (s *Session) Commit() error {
	if s.done {
		return errors.New("session already released")
	}
	s.done = true
	if err := s.tx.Commit().Error; err != nil {
		s.tx.Rollback()
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Release 回滚尚未提交的事务。可重复调用。
func (s *Session) Release() {
	if s == nil || s.done {
		return
	}
	s.done = true
	s.tx.Rollback()
}

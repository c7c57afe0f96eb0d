package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"todoapp/internal/api/auth"
	"todoapp/internal/api/httperr"
	"todoapp/internal/api/middleware"
	"todoapp/internal/config"
	"todoapp/internal/model"
	"todoapp/internal/pkg/dedup"
	"todoapp/internal/pkg/metrics"
	"todoapp/internal/pkg/password"
	"todoapp/internal/pkg/token"
	"todoapp/internal/service"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有会话提供者、可选的 Redis 客户端、各业务服务以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *store.Provider
	rdb      *redis.Client
	router   *gin.Engine
	tokens   *token.Issuer
	auth     *auth.Handler
	authSvc  *service.AuthService
	todos    *service.TodoService
	admin    *service.AdminService
	users    *service.UserService
	deduper  Deduper
}

// Deduper 按客户端提供的幂等键识别重复提交，并记录首次提交的结果。
type Deduper interface {
	Reserve(ctx context.Context, key string) (prior string, reserved bool, err error)
	Complete(ctx context.Context, key, result string) error
	Release(ctx context.Context, key string) error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 打开数据库并执行自动迁移
// 2. 配置了 Redis 地址时连接 Redis 并启用重复提交去重
// 3. 组装哈希器、令牌签发器与各业务服务
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := checkSecret(cfg, logger); err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	provider := store.NewProvider(db)

	var rdb *redis.Client
	var deduper Deduper
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = provider.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deduper = dedup.NewDeduplicator(rdb, time.Duration(cfg.App.DedupWindow)*time.Second)
	}

	metrics.InitMetrics()
	httperr.UseJSONFieldNames()

	hasher := password.NewBcryptHasher(cfg.Security.BcryptCost)
	tokens := token.NewIssuer(cfg.Security.JWTSecret, cfg.App.TokenTTL, nil)
	authSvc := service.NewAuthService(hasher, tokens)

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics())

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		rdb:      rdb,
		router:   r,
		tokens:   tokens,
		auth:     auth.NewHandler(provider, authSvc, logger),
		authSvc:  authSvc,
		todos:    service.NewTodoService(),
		admin:    service.NewAdminService(),
		users:    service.NewUserService(hasher),
		deduper:  deduper,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.provider.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/auth/", s.auth.Register)
	s.router.POST("/auth/token", s.auth.Login)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.tokens))
	authed.GET("/", s.handleListTodos)
	authed.GET("/todo/:id", s.handleGetTodo)
	authed.POST("/todo", s.handleCreateTodo)
	authed.PUT("/todo/:id", s.handleUpdateTodo)
	authed.DELETE("/todo/:id", s.handleDeleteTodo)

	authed.GET("/admin/todo", s.handleAdminListTodos)
	authed.DELETE("/admin/todo/:id", s.handleAdminDeleteTodo)

	authed.GET("/user", s.handleGetUser)
	authed.PUT("/user/password", s.handleChangePassword)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.provider.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// checkSecret 拒绝在非本地环境使用空的或默认的签名密钥。
func checkSecret(cfg *config.Config, logger *slog.Logger) error {
	secret := cfg.Security.JWTSecret
	if secret == "" {
		return errors.New("security.jwt_secret is empty")
	}
	if secret != config.DefaultJWTSecret {
		return nil
	}
	if cfg.App.Env != "local" {
		return fmt.Errorf("default jwt secret is not allowed in %q env, set JWT_SECRET", cfg.App.Env)
	}
	logger.Warn("using default jwt secret, set JWT_SECRET outside local development")
	return nil
}

// getIdentity 返回认证中间件写入的调用者身份。
// 上下文中没有身份时直接返回 401，调用方应立即结束处理。
func getIdentity(c *gin.Context) (model.Identity, bool) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		httperr.Unauthorized(c, "could not validate credentials")
		return model.Identity{}, false
	}
	return identity, true
}

// parseID 解析路径中的 :id，必须为正整数。
func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Field: "id", Message: "must be a positive integer"}
	}
	return uint(id), nil
}

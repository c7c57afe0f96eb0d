package auth

import (
	"log/slog"
	"net/http"
	"time"

	"todoapp/internal/api/httperr"
	"todoapp/internal/model"
	"todoapp/internal/pkg/metrics"
	"todoapp/internal/service"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler 提供注册与登录接口。
type Handler struct {
	provider *store.Provider
	svc      *service.AuthService
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(provider *store.Provider, svc *service.AuthService, logger *slog.Logger) *Handler {
	return &Handler{
		provider: provider,
		svc:      svc,
		logger:   logger,
	}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required,min=3"`
	Email     string `json:"email" binding:"required,min=3"`
	FirstName string `json:"first_name" binding:"required,min=3"`
	LastName  string `json:"last_name" binding:"required,min=3"`
	Password  string `json:"password" binding:"required,min=3,max=72"`
	Role      string `json:"role" binding:"required"`
}

// loginRequest 同时接受 OAuth2 风格的表单与 JSON。
type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserResponse 是对外暴露的用户信息，不包含密码哈希。
type UserResponse struct {
	ID        uint       `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      model.Role `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewUserResponse 将用户记录转换为响应结构。
func NewUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// Register 创建新用户。
//
// POST /auth/
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BindError(c, err)
		return
	}

	var user *model.User
	err := h.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		var err error
		user, err = h.svc.Register(c.Request.Context(), sess, service.RegisterInput{
			Username:  req.Username,
			Password:  req.Password,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      req.Role,
		})
		return err
	})
	if err != nil {
		httperr.Write(c, h.logger, err)
		return
	}

	if h.logger != nil {
		h.logger.Info("user registered", slog.String("username", user.Username), slog.String("role", user.Role.String()))
	}
	c.JSON(http.StatusCreated, NewUserResponse(user))
}

// Login 校验用户名与密码并返回访问令牌。
//
// POST /auth/token
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		httperr.BindError(c, err)
		return
	}

	var user *model.User
	var ok bool
	err := h.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		var err error
		user, ok, err = h.svc.Authenticate(c.Request.Context(), req.Username, req.Password, sess)
		return err
	})
	if err != nil {
		httperr.Write(c, h.logger, err)
		return
	}
	if !ok {
		metrics.AuthFailuresTotal.WithLabelValues("bad_credentials").Inc()
		if h.logger != nil {
			h.logger.Info("login rejected", slog.String("username", req.Username))
		}
		httperr.Unauthorized(c, "could not validate user")
		return
	}

	token, err := h.svc.IssueToken(user)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("sign token failed", slog.String("username", user.Username), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("username", user.Username), slog.String("role", user.Role.String()))
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

package middleware

import (
	"errors"
	"strings"

	"todoapp/internal/api/httperr"
	"todoapp/internal/model"
	"todoapp/internal/pkg/metrics"
	"todoapp/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// IdentityKey 是调用者身份在 gin.Context 中的键。
const IdentityKey = "identity"

// TokenValidator 校验 Bearer Token 并返回调用者身份。
type TokenValidator interface {
	Validate(raw string) (model.Identity, error)
}

// AuthMiddleware 校验 JWT 并将 model.Identity 写入上下文。
//
// 缺少或无效的凭证一律返回 401，不会回退到默认身份。
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c, "missing_header", "missing authorization")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			reject(c, "bad_scheme", "invalid authorization header")
			return
		}

		identity, err := tokens.Validate(strings.TrimSpace(parts[1]))
		switch {
		case err == nil:
		case errors.Is(err, token.ErrExpired):
			reject(c, "expired", "token expired")
			return
		case errors.Is(err, token.ErrMalformed):
			reject(c, "malformed", "invalid token")
			return
		default:
			reject(c, "invalid", "invalid token")
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// GetIdentity 读取 AuthMiddleware 写入的身份。
func GetIdentity(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return model.Identity{}, false
	}
	identity, ok := v.(model.Identity)
	return identity, ok
}

func reject(c *gin.Context, reason, message string) {
	metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	httperr.Unauthorized(c, message)
}

package api

import (
	"net/http"

	"todoapp/internal/api/auth"
	"todoapp/internal/api/httperr"
	"todoapp/internal/model"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

type changePasswordRequest struct {
	Password    string `json:"password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=72"`
}

// handleGetUser GET /user
func (s *Server) handleGetUser(c *gin.Context) {
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	var user *model.User
	err := s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		var err error
		user, err = s.users.GetSelf(c.Request.Context(), sess, caller)
		return err
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}

// handleChangePassword 校验旧密码后修改密码。
//
// PUT /user/password
func (s *Server) handleChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BindError(c, err)
		return
	}
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	err := s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		return s.users.ChangePassword(c.Request.Context(), sess, caller, req.Password, req.NewPassword)
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

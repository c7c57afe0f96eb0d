package api

import (
	"log/slog"
	"net/http"

	"todoapp/internal/api/httperr"
	"todoapp/internal/model"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

// handleAdminListTodos 返回所有用户的待办，仅管理员可用。
//
// GET /admin/todo
func (s *Server) handleAdminListTodos(c *gin.Context) {
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	var todos []model.Todo
	err := s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		var err error
		todos, err = s.admin.ListAll(c.Request.Context(), sess, caller)
		return err
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, todos)
}

// handleAdminDeleteTodo 删除任意用户的待办。
//
// DELETE /admin/todo/:id
func (s *Server) handleAdminDeleteTodo(c *gin.Context) {
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	// 角色校验先于 id 解析
	if !caller.IsAdmin() {
		httperr.Unauthorized(c, "could not validate credentials")
		return
	}
	id, err := parseID(c)
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	err = s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		return s.admin.DeleteAny(c.Request.Context(), sess, caller, id)
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}

	s.logger.Info("todo deleted by admin", slog.Uint64("todo_id", uint64(id)), slog.String("admin", caller.Username))
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

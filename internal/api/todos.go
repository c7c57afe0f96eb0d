package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"todoapp/internal/api/httperr"
	"todoapp/internal/model"
	"todoapp/internal/pkg/dedup"
	"todoapp/internal/pkg/metrics"
	"todoapp/internal/service"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
)

// todoRequest 创建与更新待办的请求体。
type todoRequest struct {
	Title       string `json:"title" binding:"required,min=3"`
	Description string `json:"description" binding:"omitempty,min=3,max=100"`
	Priority    int    `json:"priority" binding:"required,gt=0,lt=6"`
	Complete    bool   `json:"complete"`
}

func (r todoRequest) input() service.TodoInput {
	return service.TodoInput{
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority,
		Complete:    r.Complete,
	}
}

// IdempotencyKeyHeader 客户端可在创建待办时携带的幂等键。
const IdempotencyKeyHeader = "Idempotency-Key"

// handleListTodos 返回调用者的全部待办。
//
// GET /
func (s *Server) handleListTodos(c *gin.Context) {
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	var todos []model.Todo
	err := s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		var err error
		todos, err = s.todos.ListMine(c.Request.Context(), sess, caller)
		return err
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, todos)
}

// handleGetTodo GET /todo/:id
func (s *Server) handleGetTodo(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	var todo *model.Todo
	err = s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		var err error
		todo, err = s.todos.Get(c.Request.Context(), sess, caller, id)
		return err
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, todo)
}

// handleCreateTodo 为调用者创建待办。
//
// 启用 Redis 且请求携带 Idempotency-Key 时，窗口内同一用户重复使用该键
// 不会再次写入，而是返回首次创建的待办。
// POST /todo
func (s *Server) handleCreateTodo(c *gin.Context) {
	var req todoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BindError(c, err)
		return
	}
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var key string
	if header := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)); header != "" && s.deduper != nil {
		key = dedup.Key(strconv.FormatUint(uint64(caller.UserID), 10), header)
		prior, reserved, err := s.deduper.Reserve(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("idempotency reserve failed", slog.String("error", err.Error()))
			key = ""
		case !reserved:
			s.replayCreate(c, caller, prior)
			return
		}
	}

	var todo *model.Todo
	err := s.provider.WithSession(ctx, func(sess *store.Session) error {
		var err error
		todo, err = s.todos.Create(ctx, sess, caller, req.input())
		return err
	})
	if err != nil {
		if key != "" {
			if relErr := s.deduper.Release(ctx, key); relErr != nil {
				s.logger.Warn("idempotency release failed", slog.String("error", relErr.Error()))
			}
		}
		httperr.Write(c, s.logger, err)
		return
	}
	if key != "" {
		if err := s.deduper.Complete(ctx, key, strconv.FormatUint(uint64(todo.ID), 10)); err != nil {
			s.logger.Warn("idempotency complete failed", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("todo created", slog.Uint64("todo_id", uint64(todo.ID)), slog.Uint64("owner_id", uint64(caller.UserID)))
	c.JSON(http.StatusCreated, todo)
}

// replayCreate 对重复的幂等键返回首次创建的待办；首次请求尚未完成时返回 409。
func (s *Server) replayCreate(c *gin.Context, caller model.Identity, prior string) {
	id, err := strconv.ParseUint(prior, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is in progress"})
		return
	}

	var todo *model.Todo
	err = s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		var err error
		todo, err = s.todos.Get(c.Request.Context(), sess, caller, uint(id))
		return err
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	metrics.TodoDuplicatePreventedTotal.Inc()
	c.JSON(http.StatusCreated, todo)
}

// handleUpdateTodo 整体覆盖调用者的待办。
//
// PUT /todo/:id
func (s *Server) handleUpdateTodo(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	var req todoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BindError(c, err)
		return
	}
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	err = s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		return s.todos.Update(c.Request.Context(), sess, caller, id, req.input())
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleDeleteTodo DELETE /todo/:id
func (s *Server) handleDeleteTodo(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	caller, ok := getIdentity(c)
	if !ok {
		return
	}
	err = s.provider.WithSession(c.Request.Context(), func(sess *store.Session) error {
		return s.todos.Delete(c.Request.Context(), sess, caller, id)
	})
	if err != nil {
		httperr.Write(c, s.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

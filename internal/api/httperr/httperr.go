// Package httperr translates service and binding errors into JSON responses.
package httperr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"todoapp/internal/service"
	"todoapp/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Unauthorized writes a 401 with the bearer challenge header.
func Unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

// Write maps err to a status code and writes the response body.
// Unknown errors are logged and reported as a bare 500.
func Write(c *gin.Context, logger *slog.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"fields": map[string]string{verr.Field: verr.Message},
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrUnauthorized):
		Unauthorized(c, "could not validate credentials")
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, store.ErrUnavailable):
		if logger != nil {
			logger.Error("persistence unavailable", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		if logger != nil {
			logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// BindError reports a failed ShouldBind: field violations are 422, anything
// that could not be decoded at all is 400.
func BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": fields})
		return
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"fields": map[string]string{typeErr.Field: "must be " + typeErr.Type.String()},
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

var tagNameOnce sync.Once

// UseJSONFieldNames makes gin's validator report json (or form) names instead
// of Go struct field names.
func UseJSONFieldNames() {
	tagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

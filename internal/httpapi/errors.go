package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/httpmiddleware"
)

var jsonNames sync.Once

// registerJSONNames makes validator report fields by their json names.
func registerJSONNames() {
	jsonNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	})
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out[fe.Field()] = msg
	}
	return out
}

// bind decodes the JSON body into dst, answering 400 on failure.
func bind(c *gin.Context, dst any) bool {
	return check(c, c.ShouldBindJSON(dst))
}

func bindQuery(c *gin.Context, dst any) bool {
	return check(c, c.ShouldBindQuery(dst))
}

func check(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fieldErrors(verrs)})
		return false
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("malformed request: %v", err)})
	return false
}

// statusOf maps a core error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// fail answers with the status of err's kind. Server errors are logged and
// only kinded ones expose their message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Error("request failed",
			zap.Error(err),
			zap.String("route", c.FullPath()),
			zap.String("request_id", httpmiddleware.RequestIDFrom(c)),
		)
		var kinded *attendance.Error
		if !errors.As(err, &kinded) {
			msg = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// Package middleware holds the gin request hooks that wrap every API route.
package middleware

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"messagehub/internal/auth"
	"messagehub/internal/logger"
	"messagehub/internal/models"
)

const requestTimeLayout = "2006-01-02 15:04:05.000000"

// RequestLogging appends "<time> - User: <user> - Path: <path>" to w for every
// request. It expects auth.OptionalMiddleware to run first.
func RequestLogging(w io.Writer, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	var mu sync.Mutex
	return func(c *gin.Context) {
		user := "Anonymous"
		if email, ok := auth.EmailFromContext(c); ok && email != "" {
			role, _ := auth.RoleFromContext(c)
			user = (&models.User{Email: email, Role: role}).String()
		}
		line := fmt.Sprintf("%s - User: %s - Path: %s\n", now().Format(requestTimeLayout), user, c.Request.URL.Path)

		mu.Lock()
		_, err := io.WriteString(w, line)
		mu.Unlock()
		if err != nil {
			slog.WarnContext(c.Request.Context(), "write request log failed", slog.Any("err", err))
		}

		attrs := append([]any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("user", user),
		}, logger.AttrsFromCtx(c.Request.Context())...)
		slog.DebugContext(c.Request.Context(), "request", attrs...)

		c.Next()
	}
}

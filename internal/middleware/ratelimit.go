package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messagehub/internal/ratelimit"
)

// OffensiveLanguage caps POSTs to message-sending paths per client IP.
// Paths are matched when they contain any of segments. A limiter failure lets
// the request through.
func OffensiveLanguage(limiter ratelimit.Limiter, limit int, segments []string) gin.HandlerFunc {
	msg := fmt.Sprintf("Message limit exceeded. You can only send %d messages per minute.", limit)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost || !matchesAny(c.Request.URL.Path, segments) {
			c.Next()
			return
		}
		ip := ClientIP(c.Request)
		allowed, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable", slog.String("ip", ip), slog.Any("err", err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
			return
		}
		c.Next()
	}
}

// ClientIP is the first X-Forwarded-For entry, else the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func matchesAny(path string, segments []string) bool {
	for _, seg := range segments {
		if seg != "" && strings.Contains(path, seg) {
			return true
		}
	}
	return false
}

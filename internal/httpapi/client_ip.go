package httpapi

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// clientIPKey is an unexported context key for passing the terminal's IP
// through to the access log.
type clientIPKey struct{}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	v := ctx.Value(clientIPKey{})
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// ResolveClientIP prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the socket peer.
func ResolveClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	return c.RemoteIP()
}

// ClientIP attaches the resolved client IP to the request context.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), ResolveClientIP(c)))
		c.Next()
	}
}

package middleware

import (
	"context"
	"strings"

	"learnhub/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	usernameHeader  = "X-Username"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	usernameContextKey  = "username"
)

// TraceContextConfig controls how trace/request ids and the caller name are extracted and written.
type TraceContextConfig struct {
	AllowUsernameHeader bool
	WriteUsernameHeader bool
}

// TraceContextMiddleware ensures trace/request ids are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{
		AllowUsernameHeader: true,
	})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		traceID := headerOrNewID(c, traceIDHeader)
		c.Set(traceIDContextKey, traceID)
		ctx = context.WithValue(ctx, contextkey.TraceID, traceID)
		c.Writer.Header().Set(traceIDHeader, traceID)

		requestID := headerOrNewID(c, requestIDHeader)
		c.Set(requestIDContextKey, requestID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if cfg.AllowUsernameHeader {
			if username := strings.TrimSpace(c.GetHeader(usernameHeader)); username != "" {
				c.Set(usernameContextKey, username)
				ctx = context.WithValue(ctx, contextkey.Username, username)
				if cfg.WriteUsernameHeader {
					c.Writer.Header().Set(usernameHeader, username)
				}
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func headerOrNewID(c *gin.Context, header string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	return uuid.NewString()
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/ctxutil"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

// Probe routes are logged at debug so they don't drown out content traffic.
var quietRoutes = map[string]bool{
	"/healthcheck": true,
	"/readyz":      true,
	"/metrics":     true,
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		ctx := c.Request.Context()

		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", ctxutil.RequestID(ctx),
		}
		if td := ctxutil.GetTraceData(ctx); td != nil {
			fields = append(fields, "trace_id", td.TraceID)
		}
		if uk := ctxutil.UserKey(ctx); uk != "" {
			fields = append(fields, "user_key", uk)
		}
		if kind := c.Param("kind"); kind != "" {
			fields = append(fields, "kind", kind)
		}
		if cs := c.GetString(ctxutil.ContentStatusKey); cs != "" {
			fields = append(fields, "content_status", cs)
		}

		switch {
		case status >= 500:
			log.Error("Request failed", fields...)
		case quietRoutes[route]:
			log.Debug("Request", fields...)
		case status >= 400:
			log.Warn("Request rejected", fields...)
		default:
			log.Info("Request", fields...)
		}
	}
}

package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/wsabol/psychic-chat-poc-sub001/internal/http/handlers"
	httpMW "github.com/wsabol/psychic-chat-poc-sub001/internal/http/middleware"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/observability"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware
	ContentHandler *httpH.ContentHandler
	EventsHandler  *httpH.EventsHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Content
		if cfg.ContentHandler != nil {
			protected.GET("/content/:kind", cfg.ContentHandler.GetContent)
			protected.GET("/content/horoscope/:range", cfg.ContentHandler.GetHoroscope)
			protected.DELETE("/content", cfg.ContentHandler.PurgeContent)
		}

		// Realtime (SSE)
		if cfg.EventsHandler != nil {
			protected.GET("/events/content", cfg.EventsHandler.Stream)
		}
	}

	return r
}

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	redisclient "github.com/wsabol/psychic-chat-poc-sub001/internal/clients/redis"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/http/response"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/apierr"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/ctxutil"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

type ReadySubscriber interface {
	Subscribe(ctx context.Context, userKey string, onMsg func(redisclient.ReadyMessage)) error
}

// EventsHandler streams content-ready notifications so clients can refetch instead of
// polling on 202.
type EventsHandler struct {
	log       *logger.Logger
	sub       ReadySubscriber
	heartbeat time.Duration
}

func NewEventsHandler(log *logger.Logger, sub ReadySubscriber) *EventsHandler {
	return &EventsHandler{log: log.With("handler", "EventsHandler"), sub: sub, heartbeat: 25 * time.Second}
}

// GET /api/events/content
func (h *EventsHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	userKey := ctxutil.UserKey(ctx)
	if userKey == "" {
		response.RespondAPIError(c, apierr.Unauthorized("unauthorized", errors.New("not authenticated")))
		return
	}

	msgs := make(chan redisclient.ReadyMessage, 16)
	err := h.sub.Subscribe(ctx, userKey, func(m redisclient.ReadyMessage) {
		select {
		case msgs <- m:
		default:
		}
	})
	if err != nil {
		h.log.Warn("Ready subscription failed", "user_key", userKey, "error", err)
		response.RespondAPIError(c, apierr.New(http.StatusServiceUnavailable, "events_unavailable", err))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case m := <-msgs:
			c.SSEvent(m.Type, m)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().UTC().Format(time.RFC3339)})
			return true
		}
	})
}

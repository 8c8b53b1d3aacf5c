package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/http/response"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/apierr"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/ctxutil"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

type ContentService interface {
	Fetch(ctx context.Context, key content.Key) (generation.Result, error)
	InvalidateUser(ctx context.Context, userKey string) (int64, error)
}

type ContentHandler struct {
	log        *logger.Logger
	svc        ContentService
	retryAfter time.Duration
}

func NewContentHandler(log *logger.Logger, svc ContentService, retryAfter time.Duration) *ContentHandler {
	if retryAfter <= 0 {
		retryAfter = 5 * time.Second
	}
	return &ContentHandler{
		log:        log.With("handler", "ContentHandler"),
		svc:        svc,
		retryAfter: retryAfter,
	}
}

type contentResponse struct {
	Status       content.Status  `json:"status"`
	Kind         content.Kind    `json:"kind"`
	Variant      string          `json:"variant,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	Brief        json.RawMessage `json:"brief,omitempty"`
	LanguageCode string          `json:"language_code,omitempty"`
	LocalDate    string          `json:"local_date,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// GET /api/content/:kind?variant=&language=
func (h *ContentHandler) GetContent(c *gin.Context) {
	ctx := c.Request.Context()
	userKey := ctxutil.UserKey(ctx)
	if userKey == "" {
		response.RespondAPIError(c, apierr.Unauthorized("unauthorized", errors.New("not authenticated")))
		return
	}
	kind, err := content.ParseKind(c.Param("kind"))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_kind", err))
		return
	}
	h.serve(c, userKey, kind)
}

// GET /api/content/horoscope/:range with range daily or weekly.
func (h *ContentHandler) GetHoroscope(c *gin.Context) {
	userKey := ctxutil.UserKey(c.Request.Context())
	if userKey == "" {
		response.RespondAPIError(c, apierr.Unauthorized("unauthorized", errors.New("not authenticated")))
		return
	}
	kind, err := content.HoroscopeKind(c.Param("range"))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_range", err))
		return
	}
	h.serve(c, userKey, kind)
}

func (h *ContentHandler) serve(c *gin.Context, userKey string, kind content.Kind) {
	ctx := c.Request.Context()
	key := content.NewKey(userKey, kind, c.Query("variant"))
	if err := key.Validate(); err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_key", err))
		return
	}

	res, err := h.svc.Fetch(ctx, key)
	if err != nil {
		c.Set(ctxutil.ContentStatusKey, string(content.StatusError))
	} else {
		c.Set(ctxutil.ContentStatusKey, string(res.Status))
	}
	switch {
	case errors.Is(err, content.ErrInvalidKey):
		response.RespondAPIError(c, apierr.BadRequest("invalid_key", err))
		return
	case res.Status == content.StatusGenerating:
		secs := int(h.retryAfter / time.Second)
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusAccepted, gin.H{"status": content.StatusGenerating, "retry_after_seconds": secs})
		return
	case err != nil || !res.Status.HasContent() || res.Artifact == nil:
		h.log.Error("Content fetch failed", "user_key", userKey, "kind", string(kind), "variant", key.Variant, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": content.StatusError})
		return
	}

	a := res.Artifact
	lang := c.Query("language")
	if lang == "" {
		lang = a.LanguageCode
	}
	full, brief := a.ContentFor(lang)
	c.JSON(http.StatusOK, contentResponse{
		Status:       res.Status,
		Kind:         a.Kind,
		Variant:      a.Variant,
		Content:      full,
		Brief:        brief,
		LanguageCode: a.LanguageCode,
		LocalDate:    a.LocalDateStamp,
		CreatedAt:    a.CreatedAt,
	})
}

// DELETE /api/content purges every cached kind for the caller, e.g. after a profile change.
func (h *ContentHandler) PurgeContent(c *gin.Context) {
	ctx := c.Request.Context()
	userKey := ctxutil.UserKey(ctx)
	if userKey == "" {
		response.RespondAPIError(c, apierr.Unauthorized("unauthorized", errors.New("not authenticated")))
		return
	}
	n, err := h.svc.InvalidateUser(ctx, userKey)
	if err != nil {
		h.log.Error("Content purge failed", "user_key", userKey, "error", err)
		response.RespondAPIError(c, apierr.Internal("purge_failed", err))
		return
	}
	response.RespondOK(c, gin.H{"deleted_rows": n})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/ctxutil"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

type fakeContentService struct {
	res     generation.Result
	err     error
	lastKey content.Key
	purged  string
	purgeN  int64
}

func (f *fakeContentService) Fetch(_ context.Context, key content.Key) (generation.Result, error) {
	f.lastKey = key
	return f.res, f.err
}

func (f *fakeContentService) InvalidateUser(_ context.Context, userKey string) (int64, error) {
	f.purged = userKey
	return f.purgeN, f.err
}

func contentRouter(svc ContentService, userKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewContentHandler(logger.Nop(), svc, 7*time.Second)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userKey != "" {
			c.Request = c.Request.WithContext(ctxutil.WithUserKey(c.Request.Context(), userKey))
		}
		c.Next()
	})
	r.GET("/api/content/:kind", h.GetContent)
	r.GET("/api/content/horoscope/:range", h.GetHoroscope)
	r.DELETE("/api/content", h.PurgeContent)
	return r
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestGetContentFresh(t *testing.T) {
	created := time.Date(2024, 3, 15, 5, 1, 0, 0, time.UTC)
	svc := &fakeContentService{res: generation.Result{
		Status: content.StatusFresh,
		Artifact: &content.Artifact{
			Kind:            content.KindDailyHoroscope,
			FullContent:     json.RawMessage(`{"text":"en"}`),
			BriefContent:    json.RawMessage(`{"text":"b"}`),
			FullContentLang: json.RawMessage(`{"text":"es"}`),
			LanguageCode:    "es-ES",
			LocalDateStamp:  "2024-03-15",
			CreatedAt:       created,
		},
	}}
	r := contentRouter(svc, "uk1")

	rec := do(r, http.MethodGet, "/api/content/daily-horoscope")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content.NewKey("uk1", content.KindDailyHoroscope, ""), svc.lastKey)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fresh", body["status"])
	assert.Equal(t, "daily_horoscope", body["kind"])
	assert.Equal(t, "2024-03-15", body["local_date"])
	assert.Equal(t, map[string]any{"text": "es"}, body["content"])
	assert.Equal(t, map[string]any{"text": "b"}, body["brief"])
}

func TestGetContentGenerating(t *testing.T) {
	svc := &fakeContentService{res: generation.Result{Status: content.StatusGenerating}}
	rec := do(contentRouter(svc, "uk1"), http.MethodGet, "/api/content/moon_phase?variant=full_moon")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"status":"generating","retry_after_seconds":7}`, rec.Body.String())
	assert.Equal(t, "full_moon", svc.lastKey.Variant)
}

func TestGetContentError(t *testing.T) {
	svc := &fakeContentService{res: generation.Result{Status: content.StatusError}, err: errors.New("db down")}
	rec := do(contentRouter(svc, "uk1"), http.MethodGet, "/api/content/cosmic_weather")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error"}`, rec.Body.String())
}

func TestGetContentRejectsBadRequests(t *testing.T) {
	svc := &fakeContentService{}
	r := contentRouter(svc, "uk1")

	rec := do(r, http.MethodGet, "/api/content/tarot")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_kind")

	rec = do(r, http.MethodGet, "/api/content/moon_phase")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_key")

	assert.Empty(t, svc.lastKey.UserKey)
}

func TestGetHoroscopeByRange(t *testing.T) {
	svc := &fakeContentService{res: generation.Result{Status: content.StatusGenerating}}
	r := contentRouter(svc, "uk1")

	rec := do(r, http.MethodGet, "/api/content/horoscope/daily")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, content.NewKey("uk1", content.KindDailyHoroscope, ""), svc.lastKey)

	rec = do(r, http.MethodGet, "/api/content/horoscope/Weekly")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, content.KindWeeklyHoroscope, svc.lastKey.Kind)

	svc.lastKey = content.Key{}
	rec = do(r, http.MethodGet, "/api/content/horoscope/monthly")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_range")
	assert.Empty(t, svc.lastKey.UserKey)
}

func TestGetContentRequiresUser(t *testing.T) {
	rec := do(contentRouter(&fakeContentService{}, ""), http.MethodGet, "/api/content/daily_horoscope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPurgeContent(t *testing.T) {
	svc := &fakeContentService{purgeN: 4}
	rec := do(contentRouter(svc, "uk1"), http.MethodDelete, "/api/content")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted_rows":4}`, rec.Body.String())
	assert.Equal(t, "uk1", svc.purged)

	svc = &fakeContentService{err: errors.New("db down")}
	rec = do(contentRouter(svc, "uk1"), http.MethodDelete, "/api/content")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

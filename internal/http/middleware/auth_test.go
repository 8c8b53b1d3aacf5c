package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/ctxutil"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/userkey"
)

const testSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func authRouter() (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	seen := new(string)
	am := NewAuthMiddleware(logger.Nop(), testSecret, userkey.New("salt"))
	r := gin.New()
	r.GET("/p", am.RequireAuth(), func(c *gin.Context) {
		*seen = ctxutil.UserKey(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	return r, seen
}

func TestRequireAuthDerivesUserKey(t *testing.T) {
	r, seen := authRouter()
	tok := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, userkey.New("salt").Derive("user-42"), *seen)
	assert.NotContains(t, *seen, "user-42")
}

func TestRequireAuthMarksTrialAccounts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(logger.Nop(), testSecret, userkey.New("salt"))
	r := gin.New()
	var temporary bool
	r.GET("/p", am.RequireAuth(), func(c *gin.Context) {
		temporary = ctxutil.IsTemporaryUser(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	for sub, want := range map[string]bool{"temp_abc": true, "user-42": false} {
		tok := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": sub,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, want, temporary, sub)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	r, _ := authRouter()
	valid := jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()}

	cases := map[string]string{
		"missing":      "",
		"bad secret":   signed(t, jwt.SigningMethodHS256, []byte("other"), valid),
		"expired":      signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":    signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u"}),
		"no subject":   signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
		"wrong method": signed(t, jwt.SigningMethodHS512, []byte(testSecret), valid),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tok != "" {
				req.Header.Set("Authorization", "Bearer "+tok)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/ctxutil"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/userkey"
)

// AuthMiddleware verifies HS256 bearer tokens and stores the derived user key on the
// request context. Raw user ids never leave this middleware.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
	keys   *userkey.Deriver
}

func NewAuthMiddleware(log *logger.Logger, secret string, keys *userkey.Deriver) *AuthMiddleware {
	return &AuthMiddleware{
		log:    log.With("middleware", "AuthMiddleware"),
		secret: []byte(secret),
		keys:   keys,
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromAll(c)
		if tokenString == "" {
			abortUnauthorized(c, "missing or invalid token")
			return
		}
		userID, err := am.userIDFromToken(tokenString)
		if err != nil {
			am.log.Debug("Token rejected", "error", err)
			abortUnauthorized(c, "missing or invalid token")
			return
		}
		key := am.keys.Derive(userID)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "forbidden", "code": "forbidden"},
			})
			return
		}
		ctx := ctxutil.WithUserKey(c.Request.Context(), key)
		if userkey.IsTemporary(userID) {
			ctx = ctxutil.WithTemporaryUser(ctx)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (am *AuthMiddleware) userIDFromToken(tokenString string) (string, error) {
	if len(am.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	for _, field := range []string{"sub", "userId", "user_id"} {
		if v, ok := claims[field].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", fmt.Errorf("token has no subject")
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"message": msg, "code": "unauthorized"},
	})
}

func extractTokenFromAll(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

package ctxutil

import "context"

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

type userKeyCtxKey struct{}

// WithUserKey stores the hashed user key derived by the auth middleware.
func WithUserKey(ctx context.Context, userKey string) context.Context {
	return context.WithValue(Default(ctx), userKeyCtxKey{}, userKey)
}

// UserKey returns the hashed user key for the request, or "" when unauthenticated.
func UserKey(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userKeyCtxKey{}).(string)
	return v
}

type temporaryUserCtxKey struct{}

// WithTemporaryUser marks the request as coming from a free-trial account.
func WithTemporaryUser(ctx context.Context) context.Context {
	return context.WithValue(Default(ctx), temporaryUserCtxKey{}, true)
}

func IsTemporaryUser(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(temporaryUserCtxKey{}).(bool)
	return v
}

package genlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker stores locks as SET NX PX keys whose value is the attempt token.
type RedisLocker struct {
	rdb    redis.UniversalClient
	policy FailurePolicy
	log    *logger.Logger
	// OnBackendError is called for every absorbed backend failure.
	OnBackendError func(err *content.LockBackendError)
}

func NewRedisLocker(rdb redis.UniversalClient, policy FailurePolicy, baseLog *logger.Logger) *RedisLocker {
	if policy == "" {
		policy = FailOpen
	}
	return &RedisLocker{rdb: rdb, policy: policy, log: baseLog.With("component", "RedisLocker")}
}

func (l *RedisLocker) Policy() FailurePolicy { return l.policy }

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		l.absorb("acquire", key, err)
		if l.policy == FailClosed {
			return Lease{}, false
		}
		return Lease{Key: key, Token: token, Degraded: true}, true
	}
	if !ok {
		return Lease{}, false
	}
	return Lease{Key: key, Token: token}, true
}

func (l *RedisLocker) Release(ctx context.Context, lease Lease) {
	if !lease.Valid() {
		return
	}
	// the holder may be returning after its request context ended
	ctx = context.WithoutCancel(ctx)
	if err := releaseScript.Run(ctx, l.rdb, []string{lease.Key}, lease.Token).Err(); err != nil {
		l.absorb("release", lease.Key, err)
	}
}

// Held is true when the key carries this lease's token or when nobody holds it.
// A backend error is answered by the failure policy.
func (l *RedisLocker) Held(ctx context.Context, lease Lease) bool {
	if !lease.Valid() {
		return false
	}
	cur, err := l.rdb.Get(ctx, lease.Key).Result()
	if errors.Is(err, redis.Nil) {
		return true
	}
	if err != nil {
		l.absorb("held", lease.Key, err)
		return l.policy == FailOpen
	}
	return cur == lease.Token
}

func (l *RedisLocker) absorb(op, key string, err error) {
	lbe := &content.LockBackendError{Op: op, Err: err}
	l.log.Warn("Lock backend unavailable", "op", op, "lock_key", key, "policy", string(l.policy), "error", lbe)
	if l.OnBackendError != nil {
		l.OnBackendError(lbe)
	}
}

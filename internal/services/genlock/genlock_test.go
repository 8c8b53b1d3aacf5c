package genlock

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

const lockKey = "daily_horoscope:generating:u1:"

func newRedisLocker(t *testing.T, policy FailurePolicy) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, policy, logger.Nop()), mr
}

func TestRedisLocker_AcquireIsExclusive(t *testing.T) {
	l, mr := newRedisLocker(t, FailOpen)
	ctx := context.Background()

	lease, ok := l.TryAcquire(ctx, lockKey, DefaultTTL)
	require.True(t, ok)
	assert.False(t, lease.Degraded)
	v, err := mr.Get(lockKey)
	require.NoError(t, err)
	assert.Equal(t, lease.Token, v, "the lock value is the attempt token")
	assert.Equal(t, DefaultTTL, mr.TTL(lockKey))

	_, ok = l.TryAcquire(ctx, lockKey, DefaultTTL)
	assert.False(t, ok)

	_, ok = l.TryAcquire(ctx, "daily_horoscope:generating:u2:", DefaultTTL)
	assert.True(t, ok, "other keys are independent")
}

func TestRedisLocker_ReleaseIsCompareAndDelete(t *testing.T) {
	l, mr := newRedisLocker(t, FailOpen)
	ctx := context.Background()

	lease, ok := l.TryAcquire(ctx, lockKey, DefaultTTL)
	require.True(t, ok)

	l.Release(ctx, Lease{Key: lockKey, Token: "someone-else"})
	assert.True(t, mr.Exists(lockKey), "a foreign token must not delete the lock")

	l.Release(ctx, lease)
	assert.False(t, mr.Exists(lockKey))

	l.Release(ctx, lease)
	l.Release(ctx, Lease{})

	_, ok = l.TryAcquire(ctx, lockKey, DefaultTTL)
	assert.True(t, ok)
}

func TestRedisLocker_ExpiresAfterTTLAndNotBefore(t *testing.T) {
	l, mr := newRedisLocker(t, FailOpen)
	ctx := context.Background()

	_, ok := l.TryAcquire(ctx, lockKey, DefaultTTL)
	require.True(t, ok)

	mr.FastForward(DefaultTTL - time.Second)
	_, ok = l.TryAcquire(ctx, lockKey, DefaultTTL)
	assert.False(t, ok, "lock must still be held just before its TTL")

	mr.FastForward(2 * time.Second)
	_, ok = l.TryAcquire(ctx, lockKey, DefaultTTL)
	assert.True(t, ok, "lock must self-heal once the TTL passes")
}

func TestRedisLocker_Held(t *testing.T) {
	l, mr := newRedisLocker(t, FailOpen)
	ctx := context.Background()

	lease, ok := l.TryAcquire(ctx, lockKey, DefaultTTL)
	require.True(t, ok)
	assert.True(t, l.Held(ctx, lease))

	mr.FastForward(DefaultTTL + time.Second)
	assert.True(t, l.Held(ctx, lease), "an expired key with no new holder is not a takeover")

	other, ok := l.TryAcquire(ctx, lockKey, DefaultTTL)
	require.True(t, ok)
	assert.False(t, l.Held(ctx, lease))
	assert.True(t, l.Held(ctx, other))
	assert.False(t, l.Held(ctx, Lease{}))
}

func TestRedisLocker_FailOpenOnOutage(t *testing.T) {
	l, mr := newRedisLocker(t, FailOpen)
	var absorbed atomic.Int32
	l.OnBackendError = func(err *content.LockBackendError) {
		assert.NotEmpty(t, err.Op)
		absorbed.Add(1)
	}
	mr.Close()
	ctx := context.Background()

	lease, ok := l.TryAcquire(ctx, lockKey, DefaultTTL)
	assert.True(t, ok)
	assert.True(t, lease.Degraded)
	assert.True(t, l.Held(ctx, lease))
	l.Release(ctx, lease)
	assert.Equal(t, int32(3), absorbed.Load())
}

func TestRedisLocker_FailClosedOnOutage(t *testing.T) {
	l, mr := newRedisLocker(t, FailClosed)
	mr.Close()
	_, ok := l.TryAcquire(context.Background(), lockKey, DefaultTTL)
	assert.False(t, ok)
	assert.Equal(t, FailClosed, l.Policy())
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailOpen, p)
	p, err = ParseFailurePolicy(" Closed ")
	require.NoError(t, err)
	assert.Equal(t, FailClosed, p)
	_, err = ParseFailurePolicy("sometimes")
	assert.Error(t, err)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLocker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryLocker(clock.Now)
	ctx := context.Background()

	lease, ok := m.TryAcquire(ctx, lockKey, DefaultTTL)
	require.True(t, ok)
	_, ok = m.TryAcquire(ctx, lockKey, DefaultTTL)
	assert.False(t, ok)

	clock.Advance(DefaultTTL - time.Second)
	_, ok = m.TryAcquire(ctx, lockKey, DefaultTTL)
	assert.False(t, ok)

	clock.Advance(time.Second)
	next, ok := m.TryAcquire(ctx, lockKey, DefaultTTL)
	require.True(t, ok)
	assert.False(t, m.Held(ctx, lease))

	m.Release(ctx, lease)
	assert.True(t, m.Held(ctx, next), "a stale release must not free the new holder's lock")
	m.Release(ctx, next)
	_, ok = m.TryAcquire(ctx, lockKey, DefaultTTL)
	assert.True(t, ok)
}

func TestMemoryLocker_PrunesAbandonedLocks(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryLocker(clock.Now)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, ok := m.TryAcquire(ctx, content.NewKey("crashed", content.KindMoonPhase, "phase-"+strconv.Itoa(i)).LockKey(), DefaultTTL)
		require.True(t, ok)
	}
	clock.Advance(DefaultTTL + time.Second)

	_, ok := m.TryAcquire(ctx, lockKey, DefaultTTL)
	require.True(t, ok)
	m.mu.Lock()
	n := len(m.locks)
	m.mu.Unlock()
	assert.Equal(t, 1, n, "only the live lease remains")
}

func TestMemoryLocker_SingleWinnerUnderContention(t *testing.T) {
	m := NewMemoryLocker(nil)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.TryAcquire(context.Background(), lockKey, DefaultTTL); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

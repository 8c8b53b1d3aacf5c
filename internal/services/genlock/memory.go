package genlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pruneEvery bounds how often TryAcquire scans for expired entries.
const pruneEvery = time.Minute

// MemoryLocker is a process-local Locker for single-instance deployments and tests.
// Entries left behind by crashed holders are dropped once they expire.
type MemoryLocker struct {
	mu         sync.Mutex
	now        func() time.Time
	locks      map[string]memEntry
	lastPruned time.Time
}

type memEntry struct {
	token   string
	expires time.Time
}

func NewMemoryLocker(now func() time.Time) *MemoryLocker {
	if now == nil {
		now = time.Now
	}
	return &MemoryLocker{now: now, locks: make(map[string]memEntry)}
}

func (m *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneLocked(now)
	if e, ok := m.locks[key]; ok && now.Before(e.expires) {
		return Lease{}, false
	}
	token := uuid.NewString()
	m.locks[key] = memEntry{token: token, expires: now.Add(ttl)}
	return Lease{Key: key, Token: token}, true
}

func (m *MemoryLocker) pruneLocked(now time.Time) {
	if now.Sub(m.lastPruned) < pruneEvery {
		return
	}
	m.lastPruned = now
	for k, e := range m.locks {
		if !now.Before(e.expires) {
			delete(m.locks, k)
		}
	}
}

func (m *MemoryLocker) Release(_ context.Context, lease Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.locks[lease.Key]; ok && e.token == lease.Token {
		delete(m.locks, lease.Key)
	}
}

func (m *MemoryLocker) Held(_ context.Context, lease Lease) bool {
	if !lease.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[lease.Key]
	if !ok || !m.now().Before(e.expires) {
		return true
	}
	return e.token == lease.Token
}

// Package genlock provides the short-lived keyed lock that keeps concurrent callers from
// starting duplicate generations of the same content.
//
// A lock is best effort. It expires after its TTL, which is the only recovery from a
// crashed holder. Each acquisition stores a unique attempt token, so release is
// compare-and-delete and a holder can check whether it still owns the key before it
// persists.
package genlock

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL exceeds the worst observed generation time (~100s).
const DefaultTTL = 180 * time.Second

// Lease is the result of a successful acquisition.
type Lease struct {
	Key   string
	Token string
	// Degraded is set when the lock backend was unreachable and the lease was granted
	// under the fail-open policy. Nothing is stored for it.
	Degraded bool
}

func (l Lease) Valid() bool { return l.Key != "" && l.Token != "" }

type Locker interface {
	// TryAcquire never blocks waiting for the lock. ok is false when another attempt
	// holds it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool)
	// Release deletes the key only when it still carries the lease's token. Idempotent.
	Release(ctx context.Context, lease Lease)
	// Held reports whether no other attempt has taken the key over.
	Held(ctx context.Context, lease Lease) bool
}

// FailurePolicy decides what a lock backend outage means for callers.
type FailurePolicy string

const (
	// FailOpen grants the lease. Duplicate generation is preferred over blocking
	// content entirely.
	FailOpen FailurePolicy = "open"
	// FailClosed denies the lease; callers report generating until the backend returns.
	FailClosed FailurePolicy = "closed"
)

func ParseFailurePolicy(raw string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	default:
		return "", fmt.Errorf("unknown lock failure policy %q", raw)
	}
}

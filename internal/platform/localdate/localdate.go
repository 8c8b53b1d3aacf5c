// Package localdate resolves "today" in a user's own timezone.
//
// The calendar date string (YYYY-MM-DD) produced here is the only freshness key for
// daily content. An unknown or empty timezone resolves to UTC and is never an error.
package localdate

import (
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

const Layout = "2006-01-02"

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

// Location loads tz, falling back to UTC. "Local" is rejected so the server's own
// zone never leaks into a user's day boundary.
func Location(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "Local") {
		return time.UTC
	}
	locMu.RLock()
	loc, ok := locCache[tz]
	locMu.RUnlock()
	if ok {
		return loc
	}
	loaded, err := time.LoadLocation(tz)
	if err != nil {
		// Unknown zones are not cached.
		return time.UTC
	}
	locMu.Lock()
	locCache[tz] = loaded
	locMu.Unlock()
	return loaded
}

// Valid reports whether tz names a loadable IANA zone.
func Valid(tz string) bool {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "Local") {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// LocalToday returns now's calendar date in tz.
func LocalToday(tz string, now time.Time) string {
	return now.In(Location(tz)).Format(Layout)
}

// LocalTimestamp returns now in tz as RFC 3339 with the zone offset.
func LocalTimestamp(tz string, now time.Time) string {
	return now.In(Location(tz)).Format(time.RFC3339)
}

// IsDate reports whether s is a well formed YYYY-MM-DD date.
func IsDate(s string) bool {
	if len(s) != len(Layout) {
		return false
	}
	_, err := time.Parse(Layout, s)
	return err == nil
}

// Resolver binds the helpers to a clock.
type Resolver struct {
	Now func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{Now: time.Now}
}

func (r *Resolver) now() time.Time {
	if r == nil || r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Resolver) Today(tz string) string {
	return LocalToday(tz, r.now())
}

func (r *Resolver) Timestamp(tz string) string {
	return LocalTimestamp(tz, r.now())
}

func (r *Resolver) Instant() time.Time {
	return r.now().UTC()
}

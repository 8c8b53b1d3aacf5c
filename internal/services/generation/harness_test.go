package generation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/dbctx"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/localdate"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/genlock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory ArtifactRepo with failure injection.
type memStore struct {
	mu     sync.Mutex
	rows   []*content.Artifact
	clock  func() time.Time
	getErr error
	putErr error
	puts   atomic.Int32
}

func (s *memStore) GetLatest(_ dbctx.Context, key content.Key) (*content.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	var best *content.Artifact
	for _, a := range s.rows {
		if a.Key() != key {
			continue
		}
		if best == nil || a.CreatedAt.After(best.CreatedAt) || a.CreatedAt.Equal(best.CreatedAt) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *memStore) Put(_ dbctx.Context, a *content.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock().UTC()
	}
	cp := *a
	s.rows = append(s.rows, &cp)
	s.puts.Add(1)
	return nil
}

func (s *memStore) PurgeByUser(_ dbctx.Context, userKey string, kinds []content.Kind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[content.Kind]bool{}
	for _, k := range kinds {
		want[k] = true
	}
	var kept []*content.Artifact
	var n int64
	for _, a := range s.rows {
		if a.UserKey == userKey && want[a.Kind] {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return n, nil
}

func (s *memStore) PurgeStale(_ dbctx.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*content.Artifact
	var n int64
	for _, a := range s.rows {
		if a.LocalDateStamp == "" && a.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return n, nil
}

func (s *memStore) PruneHistory(_ dbctx.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newest := map[content.Key]time.Time{}
	for _, a := range s.rows {
		if t, ok := newest[a.Key()]; !ok || a.CreatedAt.After(t) {
			newest[a.Key()] = a.CreatedAt
		}
	}
	var kept []*content.Artifact
	var n int64
	for _, a := range s.rows {
		if a.CreatedAt.Before(before) && a.CreatedAt.Before(newest[a.Key()]) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return n, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memStore) stamps(key content.Key) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.rows {
		if a.Key() == key {
			out = append(out, a.LocalDateStamp)
		}
	}
	sort.Strings(out)
	return out
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*content.Profile
	err      error
}

func (f *fakeProfiles) Profile(_ dbctx.Context, userKey string) (*content.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.profiles[userKey]; ok {
		cp := *p
		return &cp, nil
	}
	return &content.Profile{UserKey: userKey, Language: content.DefaultLanguage}, nil
}

func (f *fakeProfiles) set(p *content.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UserKey] = p
}

type fakeGenerator struct {
	calls   atomic.Int32
	err     error
	block   chan struct{}
	started chan struct{}
	during  func()
	date    string
	lastReq atomic.Pointer[GenerateRequest]
}

func (g *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	g.calls.Add(1)
	g.lastReq.Store(&req)
	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.during != nil {
		g.during()
	}
	if g.err != nil {
		return nil, g.err
	}
	res := &GenerateResult{
		Texts:                Texts{Full: "full " + string(req.Kind), Brief: "brief"},
		GeneratedAtLocalDate: g.date,
	}
	if req.Language != content.DefaultLanguage {
		res.Translated = &Texts{Full: "translated " + req.Language}
	}
	return res, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (d *fakeDispatcher) Name() string { return "fake" }

func (d *fakeDispatcher) Dispatch(_ context.Context, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	keys []content.Key
}

func (n *fakeNotifier) ContentReady(_ context.Context, key content.Key) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys = append(n.keys, key)
	return errors.New("nobody listening")
}

type harness struct {
	clock    *fakeClock
	store    *memStore
	profiles *fakeProfiles
	gen      *fakeGenerator
	locker   genlock.Locker
	notifier *fakeNotifier
	orch     *Orchestrator
	inv      *Invoker
	svc      *Service
}

type harnessOpt func(*harness, *ServiceDeps)

func withLocker(l genlock.Locker) harnessOpt {
	return func(h *harness, _ *ServiceDeps) { h.locker = l }
}

func withDispatcher(d Dispatcher) harnessOpt {
	return func(_ *harness, sd *ServiceDeps) { sd.Dispatcher = d }
}

func newHarness(t *testing.T, start time.Time, opts ...harnessOpt) *harness {
	t.Helper()
	clock := &fakeClock{now: start}
	h := &harness{
		clock:    clock,
		store:    &memStore{clock: clock.Now},
		profiles: &fakeProfiles{profiles: map[string]*content.Profile{}},
		gen:      &fakeGenerator{},
		locker:   genlock.NewMemoryLocker(clock.Now),
		notifier: &fakeNotifier{},
	}
	sd := ServiceDeps{Sweep: SweepConfig{LegacyGrace: 24 * time.Hour, HistoryRetention: 7 * 24 * time.Hour}}
	for _, o := range opts {
		o(h, &sd)
	}
	log := logger.Nop()
	dates := &localdate.Resolver{Now: clock.Now}
	h.orch = NewOrchestrator(OrchestratorDeps{
		Store:    h.store,
		Profiles: h.profiles,
		Dates:    dates,
		Locker:   h.locker,
		Log:      log,
	})
	h.inv = NewInvoker(InvokerDeps{
		Store:     h.store,
		Profiles:  h.profiles,
		Generator: h.gen,
		Locker:    h.locker,
		Dates:     dates,
		Notifier:  h.notifier,
		Timeout:   time.Minute,
		Log:       log,
	})
	sd.Orchestrator = h.orch
	sd.Invoker = h.inv
	sd.Store = h.store
	sd.Locker = h.locker
	sd.Log = log
	h.svc = NewService(sd)
	return h
}

package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	contentrepo "github.com/wsabol/psychic-chat-poc-sub001/internal/data/repos/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/observability"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/dbctx"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/genlock"
)

// Job is a generation attempt handed to a background worker together with its lease.
type Job struct {
	Key        content.Key `json:"key"`
	LeaseToken string      `json:"lease_token"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

func (j Job) Lease() genlock.Lease {
	return genlock.Lease{Key: j.Key.LockKey(), Token: j.LeaseToken}
}

// Dispatcher hands jobs to background workers (Redis queue or Temporal).
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
	Name() string
}

type SweepConfig struct {
	// LegacyGrace is how long rows without a local date stamp are kept.
	LegacyGrace time.Duration
	// HistoryRetention bounds superseded rows. Zero keeps history forever.
	HistoryRetention time.Duration
}

type SweepResult struct {
	Stale   int64 `json:"stale"`
	History int64 `json:"history"`
}

type Result struct {
	Artifact *content.Artifact
	Status   content.Status
}

type ServiceDeps struct {
	Orchestrator *Orchestrator
	Invoker      *Invoker
	Dispatcher   Dispatcher
	Store        contentrepo.ArtifactRepo
	Locker       genlock.Locker
	Sweep        SweepConfig
	Metrics      *observability.Metrics
	Log          *logger.Logger
}

// Service is the entry point for request handlers, workers and the sweeper.
type Service struct {
	orch     *Orchestrator
	inv      *Invoker
	disp     Dispatcher
	store    contentrepo.ArtifactRepo
	locker   genlock.Locker
	sweepCfg SweepConfig
	metrics  *observability.Metrics
	log      *logger.Logger
}

func NewService(d ServiceDeps) *Service {
	return &Service{
		orch:     d.Orchestrator,
		inv:      d.Invoker,
		disp:     d.Dispatcher,
		store:    d.Store,
		locker:   d.Locker,
		sweepCfg: d.Sweep,
		metrics:  d.Metrics,
		log:      d.Log.With("service", "ContentService"),
	}
}

// Fetch returns content for key. With a dispatcher configured the lock winner enqueues
// a job and reports generating; when enqueue fails it generates synchronously.
func (s *Service) Fetch(ctx context.Context, key content.Key) (Result, error) {
	a, status, err := s.orch.GetOrGenerate(ctx, key, s.generate)
	return Result{Artifact: a, Status: status}, err
}

func (s *Service) generate(ctx context.Context, key content.Key, lease genlock.Lease) (*content.Artifact, error) {
	if s.disp != nil {
		job := Job{Key: key, LeaseToken: lease.Token, EnqueuedAt: time.Now().UTC()}
		err := s.disp.Dispatch(ctx, job)
		if err == nil {
			s.metrics.IncJob(s.disp.Name(), "dispatched")
			return nil, content.ErrHandedOff
		}
		s.metrics.IncJob(s.disp.Name(), "dispatch_failed")
		s.log.Warn("Dispatch failed, generating synchronously",
			"dispatcher", s.disp.Name(), "user_key", key.UserKey, "kind", string(key.Kind), "error", err)
	}
	return s.inv.Invoke(ctx, key, lease)
}

// RunJob executes a dispatched job on the worker side. The job's lease is released on
// every path.
func (s *Service) RunJob(ctx context.Context, job Job) error {
	if err := job.Key.Validate(); err != nil {
		return err
	}
	lease := job.Lease()
	dispatcher := "worker"
	if s.disp != nil {
		dispatcher = s.disp.Name()
	}

	fresh, err := s.orch.IsFresh(ctx, job.Key)
	if err != nil {
		s.locker.Release(ctx, lease)
		s.metrics.IncJob(dispatcher, "error")
		return err
	}
	if fresh {
		s.locker.Release(ctx, lease)
		s.metrics.IncJob(dispatcher, "skipped")
		return nil
	}

	started := time.Now()
	if _, err := s.inv.Invoke(ctx, job.Key, lease); err != nil {
		s.metrics.IncJob(dispatcher, "error")
		s.metrics.ObserveGeneration(string(job.Key.Kind), "error", time.Since(started))
		return fmt.Errorf("run job %s: %w", job.Key.String(), err)
	}
	s.metrics.IncJob(dispatcher, "done")
	s.metrics.ObserveGeneration(string(job.Key.Kind), "generated", time.Since(started))
	return nil
}

// InvalidateUser deletes every cached kind for userKey. Called when a profile changes
// (birth data, timezone, language) so the next request regenerates.
func (s *Service) InvalidateUser(ctx context.Context, userKey string) (int64, error) {
	userKey = strings.TrimSpace(userKey)
	if userKey == "" {
		return 0, fmt.Errorf("%w: missing user", content.ErrInvalidKey)
	}
	n, err := s.store.PurgeByUser(dbctx.New(ctx), userKey, content.AllKinds())
	if err != nil {
		return 0, err
	}
	s.metrics.AddPurged("profile_change", n)
	s.log.Info("Invalidated user content", "user_key", userKey, "deleted_rows", n)
	return n, nil
}

// Sweep removes unstamped rows past the grace period and superseded history.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	dbc := dbctx.New(ctx)

	n, err := s.store.PurgeStale(dbc, now.Add(-s.sweepCfg.LegacyGrace))
	if err != nil {
		return res, err
	}
	res.Stale = n
	s.metrics.AddPurged("unstamped", n)

	if s.sweepCfg.HistoryRetention > 0 {
		n, err = s.store.PruneHistory(dbc, now.Add(-s.sweepCfg.HistoryRetention))
		if err != nil {
			return res, err
		}
		res.History = n
		s.metrics.AddPurged("history", n)
	}
	s.log.Info("Swept content store", "stale_rows", res.Stale, "history_rows", res.History)
	return res, nil
}

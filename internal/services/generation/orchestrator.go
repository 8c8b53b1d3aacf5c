// Package generation coordinates per-user content generation: it serves fresh
// artifacts, lets exactly one attempt per key regenerate stale ones, and reports
// "generating" to everyone else.
package generation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	contentrepo "github.com/wsabol/psychic-chat-poc-sub001/internal/data/repos/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/observability"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/ctxutil"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/dbctx"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/localdate"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/freshness"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/genlock"
)

// StorageFailurePolicy is fixed: a content store failure is reported as an error and
// never answered by generating blind.
const StorageFailurePolicy = "closed"

// ProfileSource supplies the timezone, language and trial flag of a user.
type ProfileSource interface {
	Profile(dbc dbctx.Context, userKey string) (*content.Profile, error)
}

// GenerateFunc runs one generation attempt while lease is held. Returning
// content.ErrHandedOff means a background worker took over the attempt and its lease.
type GenerateFunc func(ctx context.Context, key content.Key, lease genlock.Lease) (*content.Artifact, error)

type OrchestratorDeps struct {
	Store    contentrepo.ArtifactRepo
	Profiles ProfileSource
	Dates    *localdate.Resolver
	Fresh    *freshness.Evaluator
	Locker   genlock.Locker
	LockTTL  time.Duration
	Metrics  *observability.Metrics
	Log      *logger.Logger
}

type Orchestrator struct {
	store    contentrepo.ArtifactRepo
	profiles ProfileSource
	dates    *localdate.Resolver
	fresh    *freshness.Evaluator
	locker   genlock.Locker
	ttl      time.Duration
	metrics  *observability.Metrics
	tracer   trace.Tracer
	log      *logger.Logger

	profileGroup singleflight.Group
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Dates == nil {
		d.Dates = localdate.NewResolver()
	}
	if d.Fresh == nil {
		d.Fresh = freshness.NewEvaluator()
	}
	if d.LockTTL <= 0 {
		d.LockTTL = genlock.DefaultTTL
	}
	return &Orchestrator{
		store:    d.Store,
		profiles: d.Profiles,
		dates:    d.Dates,
		fresh:    d.Fresh,
		locker:   d.Locker,
		ttl:      d.LockTTL,
		metrics:  d.Metrics,
		tracer:   otel.Tracer("github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"),
		log:      d.Log.With("service", "GenerationOrchestrator"),
	}
}

// GetOrGenerate returns the current artifact for key when it is fresh for the user's
// today. Otherwise it tries to take the key's lock without waiting: the winner runs fn,
// everyone else gets StatusGenerating.
//
// A content store failure yields StatusError (fail closed). A lock backend failure is
// absorbed by the locker's policy.
func (o *Orchestrator) GetOrGenerate(ctx context.Context, key content.Key, fn GenerateFunc) (*content.Artifact, content.Status, error) {
	ctx, span := observability.StartSpan(ctx, o.tracer, "content.GetOrGenerate",
		trace.WithAttributes(
			observability.AttrContentKind.String(string(key.Kind)),
			observability.AttrContentVariant.String(key.Variant),
		))
	defer span.End()

	a, status, err := o.getOrGenerate(ctx, key, fn)
	span.SetAttributes(observability.AttrContentStatus.String(string(status)))
	observability.RecordError(span, err)
	o.metrics.IncRequest(string(key.Kind), string(status))
	return a, status, err
}

func (o *Orchestrator) getOrGenerate(ctx context.Context, key content.Key, fn GenerateFunc) (*content.Artifact, content.Status, error) {
	if err := key.Validate(); err != nil {
		return nil, content.StatusError, err
	}
	log := o.log.With("user_key", key.UserKey, "kind", string(key.Kind), "variant", key.Variant)

	existing, fresh, err := o.lookup(ctx, key)
	if err != nil {
		log.Error("Content lookup failed", "error", err)
		return nil, content.StatusError, err
	}
	if fresh {
		log.Debug("Serving fresh content", "artifact_id", existing.ID, "local_date", existing.LocalDateStamp)
		return existing, content.StatusFresh, nil
	}

	lease, ok := o.locker.TryAcquire(ctx, key.LockKey(), o.ttl)
	if !ok {
		o.metrics.IncLock("held")
		log.Debug("Generation already in progress")
		return nil, content.StatusGenerating, nil
	}
	if lease.Degraded {
		o.metrics.IncLock("fail_open")
		log.Warn("Lock backend unavailable, generating without lock")
	} else {
		o.metrics.IncLock("acquired")
	}

	// Releases outlive the request so a disconnected caller does not strand the lock.
	bg := context.WithoutCancel(ctx)
	started := time.Now()
	a, err := fn(ctx, key, lease)
	switch {
	case errors.Is(err, content.ErrHandedOff):
		log.Debug("Generation handed off", "lock_key", lease.Key)
		return nil, content.StatusGenerating, nil
	case errors.Is(err, content.ErrLeaseLost):
		// A newer attempt owns the key and is generating.
		o.metrics.ObserveGeneration(string(key.Kind), "lease_lost", time.Since(started))
		log.Warn("Generation superseded by a newer attempt", "lock_key", lease.Key)
		return nil, content.StatusGenerating, nil
	case err == nil && a == nil:
		err = &content.GeneratorError{Kind: key.Kind, Err: errors.New("no artifact returned")}
		fallthrough
	case err != nil:
		o.locker.Release(bg, lease)
		o.metrics.ObserveGeneration(string(key.Kind), "error", time.Since(started))
		log.Error("Generation failed", "error", err)
		return nil, content.StatusError, err
	}
	o.locker.Release(bg, lease)
	o.metrics.ObserveGeneration(string(key.Kind), "generated", time.Since(started))
	log.Debug("Generated content", "artifact_id", a.ID, "local_date", a.LocalDateStamp, "elapsed", time.Since(started).String())
	return a, content.StatusGenerated, nil
}

// IsFresh reports whether key currently has content valid for the user's today.
func (o *Orchestrator) IsFresh(ctx context.Context, key content.Key) (bool, error) {
	_, fresh, err := o.lookup(ctx, key)
	return fresh, err
}

func (o *Orchestrator) lookup(ctx context.Context, key content.Key) (*content.Artifact, bool, error) {
	profile := o.profile(ctx, key.UserKey)
	existing, err := o.store.GetLatest(dbctx.New(ctx), key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, nil
	}
	// Trial accounts keep whatever was generated first for the whole trial.
	if profile.Temporary || ctxutil.IsTemporaryUser(ctx) {
		return existing, true, nil
	}
	today := o.dates.Today(profile.Timezone)
	return existing, !o.fresh.IsStale(existing, today), nil
}

// profile never fails: an unreadable profile resolves as UTC with defaults.
// Concurrent lookups for the same user share one query.
func (o *Orchestrator) profile(ctx context.Context, userKey string) *content.Profile {
	fallback := &content.Profile{UserKey: userKey, Language: content.DefaultLanguage}
	if o.profiles == nil {
		return fallback
	}
	v, err, _ := o.profileGroup.Do(userKey, func() (interface{}, error) {
		return o.profiles.Profile(dbctx.New(context.WithoutCancel(ctx)), userKey)
	})
	if err != nil {
		o.log.Warn("Profile lookup failed, using UTC", "user_key", userKey, "error", err)
		return fallback
	}
	p, _ := v.(*content.Profile)
	if p == nil {
		return fallback
	}
	return p
}

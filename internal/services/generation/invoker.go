package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	contentrepo "github.com/wsabol/psychic-chat-poc-sub001/internal/data/repos/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/observability"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/dbctx"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/localdate"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/genlock"
)

// Texts is one language rendition of generated content.
type Texts struct {
	Full  string
	Brief string
}

type GenerateRequest struct {
	Profile  *content.Profile
	Kind     content.Kind
	Variant  string
	Language string
	// LocalDate is the user's today when the attempt started.
	LocalDate      string
	LocalTimestamp string
}

type GenerateResult struct {
	Texts
	// Translated is set when Language is not the primary language.
	Translated *Texts
	// GeneratedAtLocalDate overrides the stamp when it is a valid YYYY-MM-DD.
	GeneratedAtLocalDate string
	Extra                map[string]any
}

// Generator is the external content producer. It is slow (tens of seconds) and may fail.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// Notifier tells listeners that new content for a key was persisted.
type Notifier interface {
	ContentReady(ctx context.Context, key content.Key) error
}

type InvokerDeps struct {
	Store     contentrepo.ArtifactRepo
	Profiles  ProfileSource
	Generator Generator
	Locker    genlock.Locker
	Dates     *localdate.Resolver
	Notifier  Notifier
	Timeout   time.Duration
	Metrics   *observability.Metrics
	Log       *logger.Logger
}

// Invoker runs one generation attempt synchronously: generate, persist, release.
// It never retries a failed generator call.
type Invoker struct {
	store    contentrepo.ArtifactRepo
	profiles ProfileSource
	gen      Generator
	locker   genlock.Locker
	dates    *localdate.Resolver
	notifier Notifier
	timeout  time.Duration
	metrics  *observability.Metrics
	log      *logger.Logger
}

func NewInvoker(d InvokerDeps) *Invoker {
	if d.Dates == nil {
		d.Dates = localdate.NewResolver()
	}
	return &Invoker{
		store:    d.Store,
		profiles: d.Profiles,
		gen:      d.Generator,
		locker:   d.Locker,
		dates:    d.Dates,
		notifier: d.Notifier,
		timeout:  d.Timeout,
		metrics:  d.Metrics,
		log:      d.Log.With("service", "SyncFallbackInvoker"),
	}
}

// Invoke generates content for key under lease and persists it. The lease is released
// on every path. Nothing is written when the lease was taken over meanwhile.
//
// The attempt is detached from the caller's cancellation: a client that disconnects
// mid-generation polls for the result later. Only the generation timeout bounds it.
func (i *Invoker) Invoke(ctx context.Context, key content.Key, lease genlock.Lease) (*content.Artifact, error) {
	base := context.WithoutCancel(ctx)
	defer i.locker.Release(base, lease)

	profile, err := i.profile(base, key.UserKey)
	if err != nil {
		return nil, err
	}

	started := i.dates.Instant()
	localDate := localdate.LocalToday(profile.Timezone, started)
	localTS := localdate.LocalTimestamp(profile.Timezone, started)
	language := profile.ContentLanguage()

	gctx := base
	if i.timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(base, i.timeout)
		defer cancel()
	}
	res, err := i.gen.Generate(gctx, GenerateRequest{
		Profile:        profile,
		Kind:           key.Kind,
		Variant:        key.Variant,
		Language:       language,
		LocalDate:      localDate,
		LocalTimestamp: localTS,
	})
	if err == nil && res == nil {
		err = errors.New("empty result")
	}
	if err != nil {
		return nil, &content.GeneratorError{Kind: key.Kind, Err: err}
	}

	stamp := localDate
	generatedAt := localTS
	if d := res.GeneratedAtLocalDate; localdate.IsDate(d) && d != localDate {
		stamp = d
		generatedAt = d
	}

	a, err := buildArtifact(key, res, language, stamp, generatedAt)
	if err != nil {
		return nil, &content.GeneratorError{Kind: key.Kind, Err: err}
	}
	a.AttemptToken = lease.Token

	if !i.locker.Held(base, lease) {
		i.metrics.IncLock("lease_lost")
		i.log.Warn("Lease lost before persist, discarding", "user_key", key.UserKey, "kind", string(key.Kind), "variant", key.Variant)
		return nil, content.ErrLeaseLost
	}
	if err := i.store.Put(dbctx.New(base), a); err != nil {
		return nil, err
	}

	if i.notifier != nil {
		if err := i.notifier.ContentReady(base, key); err != nil {
			i.log.Warn("Ready notification failed", "user_key", key.UserKey, "kind", string(key.Kind), "error", err)
		}
	}
	return a, nil
}

func (i *Invoker) profile(ctx context.Context, userKey string) (*content.Profile, error) {
	if i.profiles == nil {
		return &content.Profile{UserKey: userKey, Language: content.DefaultLanguage}, nil
	}
	p, err := i.profiles.Profile(dbctx.New(ctx), userKey)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &content.Profile{UserKey: userKey, Language: content.DefaultLanguage}
	}
	return p, nil
}

func buildArtifact(key content.Key, res *GenerateResult, language, stamp, generatedAt string) (*content.Artifact, error) {
	payload := func(text string) (json.RawMessage, error) {
		obj := make(map[string]any, len(res.Extra)+5)
		for k, v := range res.Extra {
			obj[k] = v
		}
		obj["text"] = text
		obj["kind"] = string(key.Kind)
		obj["generated_at"] = generatedAt
		obj["local_date"] = stamp
		if key.Variant != "" {
			obj["variant"] = key.Variant
		}
		b, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return b, nil
	}

	a := &content.Artifact{
		UserKey:        key.UserKey,
		Kind:           key.Kind,
		Variant:        key.Variant,
		LanguageCode:   language,
		LocalDateStamp: stamp,
	}
	var err error
	if a.FullContent, err = payload(res.Full); err != nil {
		return nil, err
	}
	if res.Brief != "" {
		if a.BriefContent, err = payload(res.Brief); err != nil {
			return nil, err
		}
	}
	if res.Translated != nil {
		if a.FullContentLang, err = payload(res.Translated.Full); err != nil {
			return nil, err
		}
		if res.Translated.Brief != "" {
			if a.BriefContentLang, err = payload(res.Translated.Brief); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

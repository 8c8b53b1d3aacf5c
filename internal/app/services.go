package app

import (
	"context"
	"errors"
	"fmt"

	redisclient "github.com/wsabol/psychic-chat-poc-sub001/internal/clients/redis"
	contentrepo "github.com/wsabol/psychic-chat-poc-sub001/internal/data/repos/content"
	userrepo "github.com/wsabol/psychic-chat-poc-sub001/internal/data/repos/user"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/observability"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/localdate"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/openai"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/sealbox"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/freshness"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/genlock"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/oracle"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/temporalx/contentgen"
)

type Repos struct {
	Artifacts   contentrepo.ArtifactRepo
	Preferences userrepo.PreferencesRepo
}

type Services struct {
	Locker   genlock.Locker
	Queue    *redisclient.Queue
	Notifier *redisclient.Notifier
	Content  *generation.Service
}

func wireRepos(log *logger.Logger, cfg Config, clients Clients) (Repos, error) {
	log.Info("Wiring repos...")
	sealer, err := sealbox.New(cfg.Security.ContentKey)
	if err != nil {
		return Repos{}, fmt.Errorf("init content sealer: %w", err)
	}
	if !sealer.Enabled() {
		log.Warn("CONTENT_ENCRYPTION_KEY not set; content is stored unencrypted")
	}
	theDB := clients.Postgres.DB()
	return Repos{
		Artifacts:   contentrepo.NewArtifactRepo(theDB, sealer, log),
		Preferences: userrepo.NewPreferencesRepo(theDB, log),
	}, nil
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, repos Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	var s Services

	if clients.Redis != nil {
		policy, _ := genlock.ParseFailurePolicy(cfg.Lock.FailurePolicy)
		rl := genlock.NewRedisLocker(clients.Redis, policy, log)
		rl.OnBackendError = func(e *content.LockBackendError) { metrics.IncLockBackendError(e.Op) }
		s.Locker = rl
		s.Queue = redisclient.NewQueue(clients.Redis, cfg.Worker.Queue, log)
		s.Notifier = redisclient.NewNotifier(clients.Redis, log)
	} else {
		s.Locker = genlock.NewMemoryLocker(nil)
	}

	gen, err := wireGenerator(log, cfg)
	if err != nil {
		return Services{}, err
	}

	dates := localdate.NewResolver()
	orch := generation.NewOrchestrator(generation.OrchestratorDeps{
		Store:    repos.Artifacts,
		Profiles: repos.Preferences,
		Dates:    dates,
		Fresh:    freshness.NewEvaluator(),
		Locker:   s.Locker,
		LockTTL:  cfg.Lock.TTL,
		Metrics:  metrics,
		Log:      log,
	})
	invDeps := generation.InvokerDeps{
		Store:     repos.Artifacts,
		Profiles:  repos.Preferences,
		Generator: gen,
		Locker:    s.Locker,
		Dates:     dates,
		Timeout:   cfg.Generation.Timeout,
		Metrics:   metrics,
		Log:       log,
	}
	if s.Notifier != nil {
		invDeps.Notifier = s.Notifier
	}
	inv := generation.NewInvoker(invDeps)

	svcDeps := generation.ServiceDeps{
		Orchestrator: orch,
		Invoker:      inv,
		Store:        repos.Artifacts,
		Locker:       s.Locker,
		Sweep: generation.SweepConfig{
			LegacyGrace:      cfg.Sweep.LegacyGrace,
			HistoryRetention: cfg.Sweep.HistoryRetention,
		},
		Metrics: metrics,
		Log:     log,
	}
	switch cfg.Generation.Dispatcher {
	case DispatcherRedis:
		svcDeps.Dispatcher = s.Queue
	case DispatcherTemporal:
		svcDeps.Dispatcher = contentgen.NewDispatcher(clients.Temporal, clients.TemporalCfg.TaskQueue, cfg.Lock.TTL, log)
	}
	s.Content = generation.NewService(svcDeps)
	log.Info("Content service ready",
		"dispatcher", cfg.Generation.Dispatcher,
		"lock_ttl", cfg.Lock.TTL.String(),
		"lock_failure_policy", cfg.Lock.FailurePolicy,
		"storage_failure_policy", generation.StorageFailurePolicy,
	)
	return s, nil
}

var errGeneratorUnconfigured = errors.New("generator not configured: OPENAI_API_KEY is empty")

// unconfiguredGenerator lets processes that never generate (the sweeper) start without
// model credentials. Every attempt fails and is reported as a generator error.
type unconfiguredGenerator struct{}

func (unconfiguredGenerator) Generate(context.Context, generation.GenerateRequest) (*generation.GenerateResult, error) {
	return nil, errGeneratorUnconfigured
}

func wireGenerator(log *logger.Logger, cfg Config) (generation.Generator, error) {
	if cfg.OpenAI.APIKey == "" {
		log.Warn("OPENAI_API_KEY not set; content generation will fail")
		return unconfiguredGenerator{}, nil
	}
	llm, err := openai.NewClient(log, openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Timeout:     cfg.OpenAI.Timeout,
		MaxRetries:  cfg.OpenAI.MaxRetries,
		Temperature: cfg.OpenAI.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	catalog, err := oracle.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return oracle.NewGenerator(llm, catalog, log), nil
}

package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	httpserver "github.com/wsabol/psychic-chat-poc-sub001/internal/http"
	httpH "github.com/wsabol/psychic-chat-poc-sub001/internal/http/handlers"
	httpMW "github.com/wsabol/psychic-chat-poc-sub001/internal/http/middleware"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/jobs/sweeper"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/jobs/worker"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/observability"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/userkey"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics

	shutdownOTel func(context.Context) error
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Endpoint:    cfg.Telemetry.Endpoint,
		Headers:     observability.ParseHeaders(cfg.Telemetry.Headers),
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		if metrics, err = observability.NewMetrics(log); err != nil {
			log.Warn("Metrics disabled", "error", err)
			metrics = nil
		}
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	reposet, err := wireRepos(log, cfg, clients)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}
	serviceset, err := wireServices(log, cfg, clients, reposet, metrics)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Metrics:      metrics,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Serve runs the HTTP API until ctx is done. With WORKER_INLINE the background
// worker and sweeper run in the same process.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Cfg.ValidateServe(); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	server := httpserver.NewServer(a.Cfg.HTTP.Addr, a.routerConfig())
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)
		return server.Run(ctx)
	})
	if a.Cfg.Worker.Inline {
		if err := a.startBackground(ctx, g); err != nil {
			return err
		}
	}
	return g.Wait()
}

// RunWorker consumes dispatched jobs and sweeps until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.Metrics != nil && a.Cfg.Metrics.Addr != "" {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)
	}
	if err := a.startBackground(ctx, g); err != nil {
		return err
	}
	return g.Wait()
}

// SweepOnce runs a single sweep pass.
func (a *App) SweepOnce(ctx context.Context) error {
	res, err := a.Services.Content.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	a.Log.Info("Sweep complete", "stale_rows", res.Stale, "history_rows", res.History)
	return nil
}

func (a *App) startBackground(ctx context.Context, g *errgroup.Group) error {
	switch a.Cfg.Generation.Dispatcher {
	case DispatcherRedis:
		w := worker.NewWorker(a.Log, a.Services.Queue, a.Services.Content, worker.Config{
			Concurrency:    a.Cfg.Worker.Concurrency,
			DequeueTimeout: a.Cfg.Worker.DequeueTimeout,
		})
		g.Go(func() error { return w.Run(ctx) })
	case DispatcherTemporal:
		r, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Clients.TemporalCfg, a.Services.Content, a.Cfg.Worker.Concurrency)
		if err != nil {
			return err
		}
		g.Go(func() error { return r.Run(ctx) })
	default:
		a.Log.Info("Synchronous dispatcher configured; no job consumer started")
	}
	s := sweeper.NewRunner(a.Log, a.Services.Content, a.Cfg.Sweep.Interval)
	g.Go(func() error { return s.Run(ctx) })
	return nil
}

func (a *App) routerConfig() httpserver.RouterConfig {
	cfg := httpserver.RouterConfig{
		Log:            a.Log,
		ServiceName:    a.Cfg.ServiceName,
		CORSOrigins:    a.Cfg.HTTP.CORSOrigins,
		Metrics:        a.Metrics,
		AuthMiddleware: httpMW.NewAuthMiddleware(a.Log, a.Cfg.Security.JWTSecret, userkey.New(a.Cfg.Security.UserKeySalt)),
		ContentHandler: httpH.NewContentHandler(a.Log, a.Services.Content, a.Cfg.Generation.RetryAfter),
		HealthHandler:  httpH.NewHealthHandler(a.pingers()),
	}
	if a.Services.Notifier != nil {
		cfg.EventsHandler = httpH.NewEventsHandler(a.Log, a.Services.Notifier)
	}
	return cfg
}

func (a *App) pingers() map[string]httpH.Pinger {
	deps := map[string]httpH.Pinger{}
	if a.Clients.Postgres != nil {
		theDB := a.Clients.Postgres.DB()
		deps["postgres"] = httpH.PingFunc(func(ctx context.Context) error {
			sqlDB, err := theDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	if a.Clients.Redis != nil {
		rdb := a.Clients.Redis
		deps["redis"] = httpH.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	return deps
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.Metrics != nil {
		_ = a.Metrics.Shutdown(ctx)
	}
	if a.shutdownOTel != nil {
		_ = a.shutdownOTel(ctx)
	}
	a.Log.Sync()
}

package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	redisclient "github.com/wsabol/psychic-chat-poc-sub001/internal/clients/redis"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/data/db"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/temporalx"
)

type Clients struct {
	Postgres    *db.PostgresService
	Redis       *goredis.Client
	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	pg, err := db.NewPostgresService(ctx, log, db.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return c, fmt.Errorf("init postgres: %w", err)
	}
	c.Postgres = pg
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, pg.DB()); err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("postgres migrate: %w", err)
		}
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redisclient.NewClient(ctx, log, redisclient.Config{
			Addr:           cfg.Redis.Addr,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			DialTimeout:    cfg.Redis.DialTimeout,
			ConnectMaxWait: cfg.Redis.ConnectMaxWait,
		})
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = rdb
	} else {
		log.Warn("REDIS_ADDR not set; generation locks are process-local")
	}

	if cfg.Generation.Dispatcher == DispatcherTemporal {
		c.TemporalCfg = temporalx.LoadConfig()
		tc, err := temporalx.NewClient(ctx, log, c.TemporalCfg)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init temporal: %w", err)
		}
		if tc == nil {
			c.Close()
			return Clients{}, fmt.Errorf("GENERATION_DISPATCHER=temporal requires TEMPORAL_ADDRESS")
		}
		c.Temporal = tc
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Postgres != nil {
		_ = c.Postgres.Close()
	}
}

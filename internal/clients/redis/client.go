package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	// ConnectMaxWait bounds the startup retry loop.
	ConnectMaxWait time.Duration
}

// NewClient dials Redis and pings it, retrying with exponential backoff until
// ConnectMaxWait elapses.
func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	maxWait := cfg.ConnectMaxWait
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	log = log.With("client", "Redis", "addr", addr)
	_, err := backoff.Retry(ctx, func() (string, error) {
		pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return rdb.Ping(pingCtx).Result()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("Redis not ready, retrying", "error", err, "retry_in", next.String())
		}),
	)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("Connected to Redis")
	return rdb, nil
}

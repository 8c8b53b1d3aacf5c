package sweeper

import (
	"context"
	"time"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (generation.SweepResult, error)
}

// Runner calls Sweep once at start and then every interval.
type Runner struct {
	log      *logger.Logger
	target   Sweeper
	interval time.Duration
	now      func() time.Time
}

func NewRunner(baseLog *logger.Logger, target Sweeper, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		log:      baseLog.With("component", "ContentSweeper"),
		target:   target,
		interval: interval,
		now:      time.Now,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting content sweeper", "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Content sweeper stopped")
			return nil
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps and logs; a failure waits for the next tick.
func (r *Runner) RunOnce(ctx context.Context) {
	res, err := r.target.Sweep(ctx, r.now().UTC())
	if err != nil {
		r.log.Warn("Sweep failed", "error", err)
		return
	}
	if res.Stale > 0 || res.History > 0 {
		r.log.Info("Sweep removed rows", "stale_rows", res.Stale, "history_rows", res.History)
	}
}

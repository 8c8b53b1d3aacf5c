package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

// JobSource hands out dispatched generation jobs.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (generation.Job, bool, error)
}

// JobRunner executes one job and releases its lease.
type JobRunner interface {
	RunJob(ctx context.Context, job generation.Job) error
}

type Config struct {
	Concurrency    int
	DequeueTimeout time.Duration
}

type Worker struct {
	log    *logger.Logger
	source JobSource
	runner JobRunner
	cfg    Config
}

func NewWorker(baseLog *logger.Logger, source JobSource, runner JobRunner, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 5 * time.Second
	}
	return &Worker{
		log:    baseLog.With("component", "ContentWorker"),
		source: source,
		runner: runner,
		cfg:    cfg,
	}
}

// Run starts the pool and blocks until ctx is done and every loop has returned.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting content worker pool", "concurrency", w.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
	return nil
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second

	for {
		if ctx.Err() != nil {
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		}
		job, ok, err := w.source.Dequeue(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				continue
			}
			wait := bo.NextBackOff()
			w.log.Warn("Dequeue failed", "worker_id", workerID, "error", err, "retry_in", wait.String())
			sleep(ctx, wait)
			continue
		}
		bo.Reset()
		if !ok {
			continue
		}
		w.handle(ctx, workerID, job)
	}
}

func (w *Worker) handle(ctx context.Context, workerID int, job generation.Job) {
	log := w.log.With("worker_id", workerID, "job_key", job.Key.String())
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job handler panic", "panic", fmt.Sprint(r))
		}
	}()
	started := time.Now()
	if err := w.runner.RunJob(ctx, job); err != nil {
		log.Warn("Job failed", "error", err, "elapsed", time.Since(started).String())
		return
	}
	log.Debug("Job done", "elapsed", time.Since(started).String())
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

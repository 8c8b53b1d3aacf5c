package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/temporalx"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/temporalx/contentgen"
)

type Runner struct {
	log         *logger.Logger
	tc          temporalsdkclient.Client
	cfg         temporalx.Config
	jobs        contentgen.JobRunner
	concurrency int
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, jobs contentgen.JobRunner, concurrency int) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if jobs == nil {
		return nil, fmt.Errorf("temporal worker missing job runner")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		log:         log.With("component", "TemporalWorker"),
		tc:          tc,
		cfg:         cfg,
		jobs:        jobs,
		concurrency: concurrency,
	}, nil
}

// Run starts polling, retrying transient start failures, and blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	attempt := 0
	w, err := backoff.Retry(ctx, func() (worker.Worker, error) {
		attempt++
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			return w, nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) {
			if !r.cfg.AutoRegisterNamespace {
				return nil, backoff.Permanent(fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr))
			}
			if err := temporalx.EnsureNamespace(ctx, r.cfg, r.log); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		return nil, startErr
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(60*time.Second),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("Temporal worker failed to start; retrying", "task_queue", r.cfg.TaskQueue, "retry_in", next.String(), "error", err)
		}),
	)
	if err != nil {
		return err
	}
	r.log.Info("Temporal worker started", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "attempts", attempt)

	<-ctx.Done()
	w.Stop()
	return nil
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.concurrency,
	})
	Register(w, &contentgen.Activities{Log: r.log, Runner: r.jobs})
	return w
}

// Register binds the content workflow and activity under their stable names.
func Register(reg worker.Registry, acts *contentgen.Activities) {
	reg.RegisterWorkflowWithOptions(contentgen.Workflow, workflow.RegisterOptions{Name: contentgen.WorkflowName})
	reg.RegisterActivityWithOptions(acts.Run, activity.RegisterOptions{Name: contentgen.ActivityRun})
}

package contentgen

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

type JobRunner interface {
	RunJob(ctx context.Context, job generation.Job) error
}

type Activities struct {
	Log    *logger.Logger
	Runner JobRunner
}

func (a *Activities) Run(ctx context.Context, job generation.Job) error {
	if a == nil || a.Runner == nil {
		return fmt.Errorf("contentgen: activity not configured")
	}
	info := activity.GetInfo(ctx)
	if a.Log != nil {
		a.Log.Debug("Running content job",
			"workflow_id", info.WorkflowExecution.ID, "user_key", job.Key.UserKey, "kind", string(job.Key.Kind))
	}
	return a.Runner.RunJob(ctx, job)
}

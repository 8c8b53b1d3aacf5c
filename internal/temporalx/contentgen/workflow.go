package contentgen

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

func Workflow(ctx workflow.Context, in Input) error {
	if in.Job.LeaseToken == "" {
		return fmt.Errorf("contentgen: missing lease token")
	}
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	// One attempt: a retry after the lease expired would race the next caller.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	return workflow.ExecuteActivity(ctx, ActivityRun, in.Job).Get(ctx, nil)
}

package contentgen

import (
	"context"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

// Dispatcher starts one content_generate workflow per leased job.
type Dispatcher struct {
	tc        temporalsdkclient.Client
	taskQueue string
	timeout   time.Duration
	log       *logger.Logger
}

func NewDispatcher(tc temporalsdkclient.Client, taskQueue string, timeout time.Duration, baseLog *logger.Logger) *Dispatcher {
	return &Dispatcher{
		tc:        tc,
		taskQueue: taskQueue,
		timeout:   timeout,
		log:       baseLog.With("component", "TemporalDispatcher"),
	}
}

func (d *Dispatcher) Name() string { return "temporal" }

func (d *Dispatcher) Dispatch(ctx context.Context, job generation.Job) error {
	if d == nil || d.tc == nil {
		return fmt.Errorf("contentgen: temporal client is not configured")
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                       WorkflowID(job),
		TaskQueue:                d.taskQueue,
		WorkflowExecutionTimeout: d.timeout + time.Minute,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	run, err := d.tc.ExecuteWorkflow(ctx, opts, WorkflowName, Input{Job: job, Timeout: d.timeout})
	if err != nil {
		return fmt.Errorf("start %s workflow: %w", WorkflowName, err)
	}
	d.log.Debug("Dispatched content job", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}

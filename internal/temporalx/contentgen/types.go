package contentgen

import (
	"time"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

const (
	WorkflowName = "content_generate"
	ActivityRun  = "content_generate_run"
)

// Input is the workflow argument. Timeout bounds the single activity attempt and
// matches the lock TTL so a run never outlives its lease.
type Input struct {
	Job     generation.Job `json:"job"`
	Timeout time.Duration  `json:"timeout"`
}

// WorkflowID is unique per lease so a retried dispatch of the same lease dedupes.
func WorkflowID(job generation.Job) string {
	return "content-generate:" + job.Key.LockKey() + ":" + job.LeaseToken
}

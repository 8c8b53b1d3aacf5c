package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

const DefaultQueueName = "content:generate"

// Queue is a Redis list of generation jobs: LPUSH to enqueue, BRPOP to take.
type Queue struct {
	rdb  goredis.UniversalClient
	name string
	log  *logger.Logger
}

func NewQueue(rdb goredis.UniversalClient, name string, baseLog *logger.Logger) *Queue {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultQueueName
	}
	return &Queue{rdb: rdb, name: name, log: baseLog.With("component", "RedisQueue", "queue", name)}
}

func (q *Queue) Name() string { return "redis" }

// Dispatch enqueues job.
func (q *Queue) Dispatch(ctx context.Context, job generation.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Dequeue waits up to timeout for a job. ok is false when none arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (job generation.Job, ok bool, err error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, goredis.Nil) {
		return generation.Job{}, false, nil
	}
	if err != nil {
		return generation.Job{}, false, err
	}
	if len(res) != 2 {
		return generation.Job{}, false, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		// a poison message is dropped; its lease expires on its own
		q.log.Warn("Dropping undecodable job", "error", err)
		return generation.Job{}, false, nil
	}
	return job, true, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

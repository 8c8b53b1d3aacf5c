package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

// ReadyMessage is published when new content for a user was persisted.
type ReadyMessage struct {
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	Variant   string `json:"variant,omitempty"`
	Timestamp string `json:"timestamp"`
}

func ReadyChannel(userKey string) string {
	return "response-ready:" + userKey
}

type Notifier struct {
	rdb goredis.UniversalClient
	log *logger.Logger
	now func() time.Time
}

func NewNotifier(rdb goredis.UniversalClient, baseLog *logger.Logger) *Notifier {
	return &Notifier{rdb: rdb, log: baseLog.With("component", "RedisNotifier"), now: time.Now}
}

func (n *Notifier) ContentReady(ctx context.Context, key content.Key) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	raw, err := json.Marshal(ReadyMessage{
		Type:      "message_ready",
		Kind:      string(key.Kind),
		Variant:   key.Variant,
		Timestamp: n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, ReadyChannel(key.UserKey), raw).Err()
}

// Subscribe forwards ready messages for userKey to onMsg until ctx is done.
// It returns once the subscription is confirmed.
func (n *Notifier) Subscribe(ctx context.Context, userKey string, onMsg func(ReadyMessage)) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := n.rdb.Subscribe(ctx, ReadyChannel(userKey))
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var msg ReadyMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					n.log.Warn("bad ready payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/warden/pkg/observability"
)

// DefaultQueueKey is the Redis list holding pending notifications
const DefaultQueueKey = "warden:notifications"

// ErrQueueEmpty is returned by Dequeue when nothing arrived before the timeout
var ErrQueueEmpty = errors.New("notification queue empty")

// Queue hands messages to the delivery worker
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Message, error)
}

// RedisQueue is a Sink backed by a Redis list. Producers LPUSH, the worker
// BRPOPs, so messages are delivered in enqueue order.
type RedisQueue struct {
	client  *redis.Client
	key     string
	metrics *observability.Metrics
}

// NewRedisQueue creates a queue on key. An empty key uses DefaultQueueKey.
func NewRedisQueue(client *redis.Client, key string, metrics *observability.Metrics) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key, metrics: metrics}
}

// Notify implements Sink
func (q *RedisQueue) Notify(ctx context.Context, to Recipient, eventType string, payload map[string]any) error {
	return q.Enqueue(ctx, NewMessage(to, eventType, payload))
}

// Enqueue pushes a message onto the queue
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	q.metrics.ObserveNotificationEnqueued(msg.EventType)
	return nil
}

// Dequeue blocks up to timeout for the oldest message
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue notification: %w", err)
	}
	// BRPOP replies with [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(result))
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	return &msg, nil
}

// Len returns the number of pending messages
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

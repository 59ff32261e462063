package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/gigboard/internal/models"
)

const (
	pushTimeout = 250 * time.Millisecond
	popTimeout  = time.Second
)

// RedisQueue is an Emitter backed by a Redis list. Emit pushes onto the
// list; Consume pops, persists and publishes. Producers and consumers may
// run in different processes.
type RedisQueue struct {
	client   *redis.Client
	key      string
	store    Store
	hub      *Hub
	observer Observer
}

// NewRedisQueue creates a queue on the given list key
func NewRedisQueue(client *redis.Client, key string, store Store, hub *Hub, observer Observer) *RedisQueue {
	if key == "" {
		key = "gigboard:notifications"
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &RedisQueue{
		client:   client,
		key:      key,
		store:    store,
		hub:      hub,
		observer: observer,
	}
}

// Emit pushes n onto the list. Failures are logged and counted.
func (q *RedisQueue) Emit(ctx context.Context, n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		q.observer.NotificationDropped("encode_error")
		slog.Error("failed to encode notification", "error", err, "id", n.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		q.observer.NotificationDropped("redis_error")
		slog.Warn("failed to queue notification",
			"error", err,
			"kind", n.Kind,
			"recipient", n.RecipientID,
		)
		return
	}
	q.observer.NotificationQueued()
}

// Len returns the number of queued notifications
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Start runs Consume in a goroutine
func (q *RedisQueue) Start(ctx context.Context) {
	go func() {
		if err := q.Consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("notification consumer stopped", "error", err)
		}
	}()
}

// Consume delivers queued notifications until ctx is done
func (q *RedisQueue) Consume(ctx context.Context) error {
	slog.Info("notification consumer started", "key", q.key)

	for {
		n, err := q.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("notification consumer stopped")
				return ctx.Err()
			}
			slog.Error("failed to pop notification", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(popTimeout):
			}
			continue
		}
		if n == nil {
			continue
		}
		deliver(ctx, q.store, q.hub, q.observer, *n)
	}
}

// pop waits up to popTimeout for one notification. It returns nil, nil on timeout.
func (q *RedisQueue) pop(ctx context.Context) (*models.Notification, error) {
	res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}

	var n models.Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		q.observer.NotificationDropped("decode_error")
		slog.Error("dropping undecodable notification", "error", err)
		return nil, nil
	}
	return &n, nil
}

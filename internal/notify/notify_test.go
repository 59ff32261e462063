package notify

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/gigboard/internal/models"
)

type recordingStore struct {
	mu    sync.Mutex
	saved []models.Notification
	err   error
	block chan struct{}
}

func (s *recordingStore) CreateNotification(_ context.Context, n *models.Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *n)
	return nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type countingObserver struct {
	mu        sync.Mutex
	queued    int
	delivered int
	dropped   map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{dropped: make(map[string]int)}
}

func (o *countingObserver) NotificationQueued() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queued++
}

func (o *countingObserver) NotificationDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[reason]++
}

func (o *countingObserver) NotificationDelivered() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered++
}

func notification(recipient string) models.Notification {
	return models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipient,
		SenderID:    "sender",
		PostID:      "post-1",
		Kind:        models.KindApplicationAccepted,
		Message:     "accepted",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestDispatcher_DeliversAndPublishes(t *testing.T) {
	store := &recordingStore{}
	hub := NewHub()
	obs := newCountingObserver()
	d := NewDispatcher(store, 8, WithHub(hub), WithObserver(obs), WithWorkers(2))

	sub := hub.Subscribe("u1")
	defer hub.Unsubscribe(sub)

	d.Start(context.Background())
	d.Emit(context.Background(), notification("u1"))
	d.Emit(context.Background(), notification("u2"))

	select {
	case n := <-sub.C:
		assert.Equal(t, "u1", n.RecipientID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not published")
	}

	d.Close()
	assert.Equal(t, 2, store.count())
	assert.Equal(t, 2, obs.delivered)
	assert.Equal(t, 2, obs.queued)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	store := &recordingStore{block: make(chan struct{})}
	obs := newCountingObserver()
	d := NewDispatcher(store, 1, WithObserver(obs))

	// Worker not started: the second Emit finds the queue full
	d.Emit(context.Background(), notification("u1"))
	d.Emit(context.Background(), notification("u1"))
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1, obs.dropped["queue_full"])

	close(store.block)
	d.Start(context.Background())
	d.Close()
	assert.Equal(t, 1, store.count())

	// Emit after Close never panics
	d.Emit(context.Background(), notification("u1"))
	assert.Equal(t, 1, obs.dropped["closed"])
}

func TestDispatcher_StoreErrorIsCounted(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	obs := newCountingObserver()
	d := NewDispatcher(store, 4, WithObserver(obs))

	d.Start(context.Background())
	d.Emit(context.Background(), notification("u1"))
	d.Close()

	assert.Equal(t, 1, obs.dropped["store_error"])
	assert.Equal(t, 0, obs.delivered)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("u1")
	b := hub.Subscribe("u1")
	assert.Equal(t, 2, hub.Subscribers("u1"))

	hub.Publish(notification("u1"))
	assert.Len(t, a.C, 1)
	assert.Len(t, b.C, 1)

	hub.Unsubscribe(a)
	hub.Unsubscribe(a) // second call is a no-op
	assert.Equal(t, 1, hub.Subscribers("u1"))

	_, open := <-a.C
	assert.True(t, open) // buffered value still readable
	_, open = <-a.C
	assert.False(t, open)

	// A full subscriber does not block Publish
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(notification("u1"))
	}
	assert.Len(t, b.C, subscriberBuffer)

	hub.Unsubscribe(b)
	assert.Equal(t, 0, hub.Subscribers("u1"))
}

func TestEmitterFunc(t *testing.T) {
	var got models.Notification
	var e Emitter = EmitterFunc(func(_ context.Context, n models.Notification) { got = n })
	e.Emit(context.Background(), notification("u9"))
	assert.Equal(t, "u9", got.RecipientID)

	NopEmitter{}.Emit(context.Background(), notification("u9"))
}

func TestRedisQueue_Integration(t *testing.T) {
	addr := os.Getenv("GIGBOARD_REDIS_ADDR_INTEGRATION")
	if addr == "" {
		t.Skip("set GIGBOARD_REDIS_ADDR_INTEGRATION to run redis integration tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	key := "gigboard:test:" + uuid.NewString()
	defer client.Del(context.Background(), key)

	store := &recordingStore{}
	hub := NewHub()
	sub := hub.Subscribe("u1")
	q := NewRedisQueue(client, key, store, hub, nil)

	q.Emit(context.Background(), notification("u1"))
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	select {
	case got := <-sub.C:
		assert.Equal(t, "u1", got.RecipientID)
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not consumed")
	}
	assert.Equal(t, 1, store.count())
}

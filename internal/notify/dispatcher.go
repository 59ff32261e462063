package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/terra-clan/gigboard/internal/models"
)

const deliverTimeout = 5 * time.Second

// Dispatcher is an in-process Emitter. Notifications are queued on a
// bounded channel and persisted by background workers; a full queue drops
// the notification.
type Dispatcher struct {
	store    Store
	hub      *Hub
	observer Observer
	workers  int

	mu     sync.RWMutex
	closed bool
	queue  chan models.Notification
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithHub publishes every persisted notification to hub
func WithHub(hub *Hub) DispatcherOption {
	return func(d *Dispatcher) {
		d.hub = hub
	}
}

// WithObserver reports queue statistics to o
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithWorkers sets the number of delivery goroutines
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// NewDispatcher creates a dispatcher with a queue of bufferSize notifications
func NewDispatcher(store Store, bufferSize int, opts ...DispatcherOption) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	d := &Dispatcher{
		store:    store,
		observer: nopObserver{},
		workers:  1,
		queue:    make(chan models.Notification, bufferSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the delivery workers
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("notification dispatcher started", "workers", d.workers, "buffer", cap(d.queue))

	// Deliveries in flight at shutdown still complete
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Emit queues n without blocking
func (d *Dispatcher) Emit(_ context.Context, n models.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.observer.NotificationDropped("closed")
		slog.Warn("notification dropped, dispatcher closed", "kind", n.Kind, "recipient", n.RecipientID)
		return
	}

	select {
	case d.queue <- n:
		d.observer.NotificationQueued()
	default:
		d.observer.NotificationDropped("queue_full")
		slog.Warn("notification dropped, queue full",
			"kind", n.Kind,
			"recipient", n.RecipientID,
			"post_id", n.PostID,
		)
	}
}

// Len returns the number of queued notifications
func (d *Dispatcher) Len() int {
	return len(d.queue)
}

// Close stops accepting notifications and waits for the queue to drain
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	slog.Info("notification dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		deliver(ctx, d.store, d.hub, d.observer, n)
	}
}

// deliver persists n and publishes it to live subscribers
func deliver(ctx context.Context, store Store, hub *Hub, observer Observer, n models.Notification) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	if err := store.CreateNotification(ctx, &n); err != nil {
		observer.NotificationDropped("store_error")
		slog.Error("failed to persist notification",
			"error", err,
			"id", n.ID,
			"kind", n.Kind,
			"recipient", n.RecipientID,
		)
		return
	}

	observer.NotificationDelivered()
	if hub != nil {
		hub.Publish(n)
	}
}

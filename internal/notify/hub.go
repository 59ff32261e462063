package notify

import (
	"sync"

	"github.com/terra-clan/gigboard/internal/models"
)

const subscriberBuffer = 16

// Subscription receives notifications addressed to one recipient
type Subscription struct {
	RecipientID string
	C           <-chan models.Notification

	ch chan models.Notification
}

// Hub fans persisted notifications out to live subscribers
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for recipientID
func (h *Hub) Subscribe(recipientID string) *Subscription {
	ch := make(chan models.Notification, subscriberBuffer)
	sub := &Subscription{RecipientID: recipientID, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[recipientID] == nil {
		h.subs[recipientID] = make(map[*Subscription]struct{})
	}
	h.subs[recipientID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.RecipientID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.RecipientID)
	}
	close(sub.ch)
}

// Publish sends n to every subscriber of its recipient. Slow subscribers
// miss the notification; it is still persisted.
func (h *Hub) Publish(n models.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[n.RecipientID] {
		select {
		case sub.ch <- n:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers for recipientID
func (h *Hub) Subscribers(recipientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[recipientID])
}

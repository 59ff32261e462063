// Package notify delivers lifecycle notifications off the request path.
// Emitters never block and never fail the operation that triggered them.
package notify

import (
	"context"

	"github.com/terra-clan/gigboard/internal/models"
)

// Emitter accepts a notification for best-effort delivery
type Emitter interface {
	Emit(ctx context.Context, n models.Notification)
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(ctx context.Context, n models.Notification)

// Emit calls f(ctx, n)
func (f EmitterFunc) Emit(ctx context.Context, n models.Notification) {
	f(ctx, n)
}

// NopEmitter discards every notification
type NopEmitter struct{}

// Emit does nothing
func (NopEmitter) Emit(context.Context, models.Notification) {}

// Store persists delivered notifications
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Observer receives delivery statistics
type Observer interface {
	NotificationQueued()
	NotificationDropped(reason string)
	NotificationDelivered()
}

type nopObserver struct{}

func (nopObserver) NotificationQueued()        {}
func (nopObserver) NotificationDropped(string) {}
func (nopObserver) NotificationDelivered()     {}

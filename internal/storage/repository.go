package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/gigboard/internal/models"
)

// Common errors
var (
	// ErrVersionConflict means the stored aggregate changed since it was read.
	// The write was not applied.
	ErrVersionConflict = errors.New("version conflict")
	// ErrOutcomeUnknown means a write was sent but its result could not be confirmed.
	ErrOutcomeUnknown = errors.New("write outcome unknown")
	// ErrNotFound is returned by writes that target a missing record.
	// Reads return nil, nil instead.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicatePayment means the post already has a payment that is not failed
	ErrDuplicatePayment = errors.New("post already has an active payment")
	// ErrStatusConflict means the payment left the expected status before the update
	ErrStatusConflict = errors.New("payment status changed")
	// ErrHasPayments means the post still has payment records and cannot be deleted
	ErrHasPayments = errors.New("post has payment records")
)

// Repository defines the interface for marketplace persistence
type Repository interface {
	// Posts (aggregate with embedded applications, finalization and reviews)
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// SavePost replaces the whole aggregate if the stored version equals
	// expectedVersion, and sets p.Version to the new version.
	SavePost(ctx context.Context, p *models.Post, expectedVersion int64) error
	// DeletePost removes a post at expectedVersion. Posts with payment
	// records are kept (ErrHasPayments).
	DeletePost(ctx context.Context, id string, expectedVersion int64) error
	ListPosts(ctx context.Context, filters models.PostFilters) ([]*models.Post, error)
	ListPaidPostsWithoutPayment(ctx context.Context, updatedBefore time.Time) ([]*models.Post, error)

	// Payments
	CreatePayment(ctx context.Context, pay *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	// UpdatePayment returns ErrStatusConflict when upd.From is set and the
	// stored status differs from it.
	UpdatePayment(ctx context.Context, id string, upd models.PaymentUpdate) (*models.Payment, error)
	ListPaymentsByPost(ctx context.Context, postID string) ([]*models.Payment, error)
	ListUnsyncedPayments(ctx context.Context) ([]*models.Payment, error)

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, filters models.NotificationFilters) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// PaymentTx is implemented by stores that can claim a post as paid and
// insert its payment in a single transaction.
type PaymentTx interface {
	ClaimAndCreatePayment(ctx context.Context, p *models.Post, expectedVersion int64, pay *models.Payment) error
}

// Package lifecycle implements the project lifecycle of a job post: its
// applications, the delivery hand-off, payment and reviews. Every
// mutation is a version-checked write of the whole Post aggregate.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/terra-clan/gigboard/internal/models"
	"github.com/terra-clan/gigboard/internal/notify"
	"github.com/terra-clan/gigboard/internal/observability"
	"github.com/terra-clan/gigboard/internal/payments"
	"github.com/terra-clan/gigboard/internal/storage"
)

const (
	defaultChargeTimeout      = time.Minute
	defaultCompensateAttempts = 3
)

// Observer records the outcome of each operation
type Observer interface {
	ObserveOperation(op, outcome string, d time.Duration)
}

// CategoryChecker reports whether a category id exists
type CategoryChecker interface {
	Has(id string) bool
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}

// Engine validates and applies lifecycle transitions
type Engine struct {
	repo       storage.Repository
	emitter    notify.Emitter
	gateway    payments.Gateway
	categories CategoryChecker
	observer   Observer

	now   func() time.Time
	newID func() string

	chargeTimeout      time.Duration
	compensateAttempts int
}

// Option configures an Engine
type Option func(*Engine)

// WithEmitter sets the notification emitter
func WithEmitter(em notify.Emitter) Option {
	return func(e *Engine) {
		e.emitter = em
	}
}

// WithGateway sets the payment gateway
func WithGateway(g payments.Gateway) Option {
	return func(e *Engine) {
		e.gateway = g
	}
}

// WithCategories validates Post categories against c
func WithCategories(c CategoryChecker) Option {
	return func(e *Engine) {
		e.categories = c
	}
}

// WithObserver reports operation outcomes to o
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides uuid generation
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// WithChargeTimeout sets how long a pending payment without a gateway
// charge is left alone before it is treated as failed
func WithChargeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.chargeTimeout = d
		}
	}
}

// New creates an Engine over repo
func New(repo storage.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:               repo,
		emitter:            notify.NopEmitter{},
		gateway:            payments.NewMockGateway(),
		observer:           nopObserver{},
		now:                func() time.Time { return time.Now().UTC() },
		newID:              uuid.NewString,
		chargeTimeout:      defaultChargeTimeout,
		compensateAttempts: defaultCompensateAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run wraps an operation with a span and an outcome metric
func run[T any](ctx context.Context, e *Engine, op string, fn func(ctx context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle."+op, attrs...)
	start := time.Now()

	out, err := fn(ctx)

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "internal"
		}
	}
	e.observer.ObserveOperation(op, outcome, time.Since(start))
	observability.EndSpan(span, err)
	return out, err
}

// loadPost returns the current Post or NotFound
func (e *Engine) loadPost(ctx context.Context, id string) (*models.Post, error) {
	p, err := e.repo.GetPost(ctx, id)
	if err != nil {
		slog.Error("failed to load post", "error", err, "post_id", id)
		return nil, unavailable(err, "failed to load post")
	}
	if p == nil {
		return nil, notFound("post %s not found", id)
	}
	return p, nil
}

// savePost persists p if the stored version still equals expected
func (e *Engine) savePost(ctx context.Context, p *models.Post, expected int64) error {
	p.UpdatedAt = e.now()
	if err := e.repo.SavePost(ctx, p, expected); err != nil {
		return e.storeErr(err, p.ID, "failed to save post")
	}
	return nil
}

// storeErr maps a store write error onto the taxonomy
func (e *Engine) storeErr(err error, postID, msg string) error {
	switch {
	case errors.Is(err, storage.ErrVersionConflict):
		return conflict("post %s was modified concurrently, reload and retry", postID)
	case errors.Is(err, storage.ErrNotFound):
		return notFound("post %s not found", postID)
	case errors.Is(err, storage.ErrOutcomeUnknown):
		slog.Warn("store write outcome unknown", "error", err, "post_id", postID)
		return unavailable(err, "%s: outcome unknown", msg)
	default:
		slog.Error(msg, "error", err, "post_id", postID)
		return unavailable(err, "%s", msg)
	}
}

// emit hands a notification to the emitter. It never fails the caller.
func (e *Engine) emit(ctx context.Context, recipientID, senderID, postID string, kind models.NotificationKind, message string) {
	e.emitter.Emit(ctx, models.Notification{
		ID:          e.newID(),
		RecipientID: recipientID,
		SenderID:    senderID,
		PostID:      postID,
		Kind:        kind,
		Message:     message,
		CreatedAt:   e.now(),
	})
}

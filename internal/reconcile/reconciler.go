// Package reconcile repairs payments left half-done by interrupted requests.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/terra-clan/gigboard/internal/models"
)

// Store is the part of the repository the reconciler scans
type Store interface {
	ListUnsyncedPayments(ctx context.Context) ([]*models.Payment, error)
	ListPaidPostsWithoutPayment(ctx context.Context, updatedBefore time.Time) ([]*models.Post, error)
}

// Engine performs the repairs
type Engine interface {
	VerifyPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	ReleaseStaleClaim(ctx context.Context, postID string) error
}

// Observer receives reconcile metrics
type Observer interface {
	ReconcileRun(err error)
	ReconcileRepair(action string)
}

type nopObserver struct{}

func (nopObserver) ReconcileRun(error)     {}
func (nopObserver) ReconcileRepair(string) {}

// Repair actions reported to the observer
const (
	ActionVerified     = "verified"
	ActionResynced     = "resynced"
	ActionClaimRelease = "claim_released"
)

// Reconciler periodically re-verifies pending payments, re-syncs settled
// payments with their post, and releases stale paid claims
type Reconciler struct {
	store    Store
	engine   Engine
	observer Observer
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithObserver sets the metrics observer
func WithObserver(o Observer) Option {
	return func(r *Reconciler) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a reconciler. Work younger than grace is left to the request handling it.
func New(store Store, engine Engine, interval, grace time.Duration, opts ...Option) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	r := &Reconciler{
		store:    store,
		engine:   engine,
		observer: nopObserver{},
		interval: interval,
		grace:    grace,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the reconcile loop in a goroutine
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Reconciler) run(ctx context.Context) {
	slog.Info("payment reconciler started", "interval", r.interval, "grace", r.grace)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("payment reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconcile pass and returns the number of repairs attempted
func (r *Reconciler) RunOnce(ctx context.Context) int {
	slog.Debug("running reconcile cycle")

	repaired, errPayments := r.reconcilePayments(ctx)
	released, errClaims := r.releaseClaims(ctx)

	err := errors.Join(errPayments, errClaims)
	r.observer.ReconcileRun(err)
	if repaired+released > 0 {
		slog.Info("reconcile cycle finished", "payments", repaired, "claims_released", released)
	}
	return repaired + released
}

func (r *Reconciler) reconcilePayments(ctx context.Context) (int, error) {
	list, err := r.store.ListUnsyncedPayments(ctx)
	if err != nil {
		slog.Error("failed to list unsynced payments", "error", err)
		return 0, err
	}

	cutoff := r.now().Add(-r.grace)
	var errs []error
	done := 0
	for _, pay := range list {
		action := ActionResynced
		if pay.Status == models.PaymentPending {
			if pay.CreatedAt.After(cutoff) {
				continue
			}
			action = ActionVerified
		}

		if _, err := r.engine.VerifyPayment(ctx, pay.ID); err != nil {
			slog.Error("failed to reconcile payment", "error", err, "payment_id", pay.ID, "post_id", pay.PostID)
			errs = append(errs, err)
			continue
		}
		r.observer.ReconcileRepair(action)
		done++
	}
	return done, errors.Join(errs...)
}

func (r *Reconciler) releaseClaims(ctx context.Context) (int, error) {
	posts, err := r.store.ListPaidPostsWithoutPayment(ctx, r.now().Add(-r.grace))
	if err != nil {
		slog.Error("failed to list stale paid claims", "error", err)
		return 0, err
	}

	var errs []error
	done := 0
	for _, p := range posts {
		slog.Info("releasing stale paid claim", "post_id", p.ID, "updated_at", p.UpdatedAt)
		if err := r.engine.ReleaseStaleClaim(ctx, p.ID); err != nil {
			slog.Error("failed to release stale claim", "error", err, "post_id", p.ID)
			errs = append(errs, err)
			continue
		}
		r.observer.ReconcileRepair(ActionClaimRelease)
		done++
	}
	return done, errors.Join(errs...)
}

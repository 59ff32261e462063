package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/gigboard/internal/lifecycle"
	"github.com/terra-clan/gigboard/internal/models"
	"github.com/terra-clan/gigboard/internal/payments"
	"github.com/terra-clan/gigboard/internal/storage"
)

var (
	client     = models.Actor{ID: "client-1", Role: models.RoleClient}
	freelancer = models.Actor{ID: "freelancer-1", Role: models.RoleFreelancer}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	runs    []error
	repairs []string
}

func (r *recorder) ReconcileRun(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, err)
}

func (r *recorder) ReconcileRepair(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repairs = append(r.repairs, action)
}

type fixture struct {
	repo    *storage.MemoryRepository
	gateway *payments.MockGateway
	engine  *lifecycle.Engine
	clock   *clock
	obs     *recorder
	rec     *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    storage.NewMemoryRepository(),
		gateway: payments.NewMockGateway(payments.WithSettlement(models.PaymentPending)),
		clock:   &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
		obs:     &recorder{},
	}
	f.engine = lifecycle.New(f.repo,
		lifecycle.WithGateway(f.gateway),
		lifecycle.WithClock(f.clock.Now),
	)
	f.rec = New(f.repo, f.engine, time.Minute, 2*time.Minute,
		WithObserver(f.obs),
		WithClock(f.clock.Now),
	)
	return f
}

func (f *fixture) staffedPost(t *testing.T) *models.Post {
	t.Helper()
	ctx := context.Background()
	p, err := f.engine.CreatePost(ctx, client, models.CreatePostRequest{
		Title: "API work", Description: "Build it", Budget: 5000, Duration: "1 month",
	})
	require.NoError(t, err)
	p, err = f.engine.Apply(ctx, freelancer, p.ID, models.ApplyRequest{CV: "cv", CoverLetter: "hi", BidAmount: 4500})
	require.NoError(t, err)
	p, err = f.engine.DecideApplication(ctx, client, p.ID, p.Applications[0].ID, models.ApplicationAccepted)
	require.NoError(t, err)
	return p
}

func TestSettlesPendingPaymentAfterGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.staffedPost(t)

	pay, err := f.engine.InitiatePayment(ctx, client, p.ID, 4500)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPending, pay.Status)
	require.NoError(t, f.gateway.Settle(pay.ID, models.PaymentSucceeded))

	assert.Zero(t, f.rec.RunOnce(ctx), "pending payments inside the grace period are left alone")

	f.clock.Advance(3 * time.Minute)
	assert.Equal(t, 1, f.rec.RunOnce(ctx))

	stored, err := f.repo.GetPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, stored.Status)

	post, err := f.repo.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, post.Paid)
	assert.Equal(t, []string{ActionVerified}, f.obs.repairs)

	assert.Zero(t, f.rec.RunOnce(ctx), "settled payments are not revisited")
}

func TestResyncsSucceededPaymentOnUnpaidPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.staffedPost(t)

	pay, err := f.engine.InitiatePayment(ctx, client, p.ID, 4500)
	require.NoError(t, err)
	require.NoError(t, f.gateway.Settle(pay.ID, models.PaymentSucceeded))
	_, err = f.repo.UpdatePayment(ctx, pay.ID, models.PaymentUpdate{Status: models.PaymentSucceeded})
	require.NoError(t, err)

	// Simulate the post write lost after the payment settled
	post, err := f.repo.GetPost(ctx, p.ID)
	require.NoError(t, err)
	post.Paid = false
	require.NoError(t, f.repo.SavePost(ctx, post, post.Version))

	assert.Equal(t, 1, f.rec.RunOnce(ctx))
	post, err = f.repo.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, post.Paid)
	assert.Equal(t, []string{ActionResynced}, f.obs.repairs)
}

func TestReleasesStaleClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.staffedPost(t)

	post, err := f.repo.GetPost(ctx, p.ID)
	require.NoError(t, err)
	post.Paid = true
	post.UpdatedAt = f.clock.Now()
	require.NoError(t, f.repo.SavePost(ctx, post, post.Version))

	assert.Zero(t, f.rec.RunOnce(ctx))

	f.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, f.rec.RunOnce(ctx))

	post, err = f.repo.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, post.Paid)
	assert.Equal(t, []string{ActionClaimRelease}, f.obs.repairs)

	_, err = f.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.NoError(t, err, "released post can be paid again")
}

type failingEngine struct{ err error }

func (e failingEngine) VerifyPayment(context.Context, string) (*models.Payment, error) {
	return nil, e.err
}

func (e failingEngine) ReleaseStaleClaim(context.Context, string) error { return e.err }

type staticStore struct {
	payments []*models.Payment
	posts    []*models.Post
	err      error
}

func (s staticStore) ListUnsyncedPayments(context.Context) ([]*models.Payment, error) {
	return s.payments, s.err
}

func (s staticStore) ListPaidPostsWithoutPayment(context.Context, time.Time) ([]*models.Post, error) {
	return s.posts, s.err
}

func TestReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	obs := &recorder{}
	store := staticStore{
		payments: []*models.Payment{{ID: "pay-1", Status: models.PaymentSucceeded}},
		posts:    []*models.Post{{ID: "post-1"}},
	}
	r := New(store, failingEngine{err: boom}, time.Minute, time.Minute, WithObserver(obs))

	assert.Zero(t, r.RunOnce(context.Background()))
	require.Len(t, obs.runs, 1)
	assert.ErrorIs(t, obs.runs[0], boom)
	assert.Empty(t, obs.repairs)

	obs2 := &recorder{}
	r = New(staticStore{err: boom}, failingEngine{}, time.Minute, time.Minute, WithObserver(obs2))
	r.RunOnce(context.Background())
	require.Len(t, obs2.runs, 1)
	assert.ErrorIs(t, obs2.runs[0], boom)
}

func TestStartStopsWithContext(t *testing.T) {
	obs := &recorder{}
	r := New(staticStore{}, failingEngine{}, 10*time.Millisecond, time.Minute, WithObserver(obs))

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	assert.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return len(obs.runs) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
}

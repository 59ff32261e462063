package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terra-clan/gigboard/internal/models"
	"github.com/terra-clan/gigboard/internal/payments"
	"github.com/terra-clan/gigboard/internal/storage"
)

var (
	client     = models.Actor{ID: "client-1", Role: models.RoleClient}
	otherOwner = models.Actor{ID: "client-2", Role: models.RoleClient}
	f1         = models.Actor{ID: "freelancer-1", Role: models.RoleFreelancer}
	f2         = models.Actor{ID: "freelancer-2", Role: models.RoleFreelancer}
	f3         = models.Actor{ID: "freelancer-3", Role: models.RoleFreelancer}
)

type captureEmitter struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (c *captureEmitter) Emit(_ context.Context, n models.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureEmitter) kinds() []models.NotificationKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Kind)
	}
	return out
}

func (c *captureEmitter) count(kind models.NotificationKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, sent := range c.sent {
		if sent.Kind == kind {
			n++
		}
	}
	return n
}

func (c *captureEmitter) last() models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// faultRepo lets a test intercept writes. Each hook receives the real
// write as a func and decides whether and when to call it.
type faultRepo struct {
	*storage.MemoryRepository

	savePost      func(p *models.Post, save func() error) error
	createPayment func(pay *models.Payment, create func() error) error
	updatePayment func(id string, upd models.PaymentUpdate) error
	deletePost    func(id string)
}

func newFaultRepo() *faultRepo {
	return &faultRepo{MemoryRepository: storage.NewMemoryRepository()}
}

func (r *faultRepo) SavePost(ctx context.Context, p *models.Post, expected int64) error {
	save := func() error { return r.MemoryRepository.SavePost(ctx, p, expected) }
	if r.savePost != nil {
		return r.savePost(p, save)
	}
	return save()
}

func (r *faultRepo) CreatePayment(ctx context.Context, pay *models.Payment) error {
	create := func() error { return r.MemoryRepository.CreatePayment(ctx, pay) }
	if r.createPayment != nil {
		return r.createPayment(pay, create)
	}
	return create()
}

func (r *faultRepo) UpdatePayment(ctx context.Context, id string, upd models.PaymentUpdate) (*models.Payment, error) {
	if r.updatePayment != nil {
		if err := r.updatePayment(id, upd); err != nil {
			return nil, err
		}
	}
	return r.MemoryRepository.UpdatePayment(ctx, id, upd)
}

func (r *faultRepo) DeletePost(ctx context.Context, id string, expected int64) error {
	if r.deletePost != nil {
		r.deletePost(id)
	}
	return r.MemoryRepository.DeletePost(ctx, id, expected)
}

// txRepo adds the single-transaction payment capability to the memory store
type txRepo struct {
	*storage.MemoryRepository
	mu    sync.Mutex
	calls int
}

func (r *txRepo) ClaimAndCreatePayment(ctx context.Context, p *models.Post, expected int64, pay *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	existing, err := r.ListPaymentsByPost(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Status != models.PaymentFailed {
			return storage.ErrDuplicatePayment
		}
	}
	if err := r.SavePost(ctx, p, expected); err != nil {
		return err
	}
	return r.CreatePayment(ctx, pay)
}

type harness struct {
	engine  *Engine
	repo    storage.Repository
	emitter *captureEmitter
	gateway *payments.MockGateway
	clock   *fakeClock
}

func newHarness(t *testing.T, repo storage.Repository, opts ...payments.MockOption) *harness {
	t.Helper()
	if repo == nil {
		repo = storage.NewMemoryRepository()
	}
	h := &harness{
		repo:    repo,
		emitter: &captureEmitter{},
		gateway: payments.NewMockGateway(opts...),
		clock:   newFakeClock(),
	}
	h.engine = New(repo,
		WithEmitter(h.emitter),
		WithGateway(h.gateway),
		WithClock(h.clock.Now),
	)
	return h
}

func (h *harness) createPost(t *testing.T) *models.Post {
	t.Helper()
	p, err := h.engine.CreatePost(context.Background(), client, models.CreatePostRequest{
		Title:          "Build a REST API",
		Description:    "Go service with Postgres",
		RequiredSkills: []string{"go", "sql"},
		Budget:         5000,
		Duration:       "1-3 months",
	})
	require.NoError(t, err)
	return p
}

func (h *harness) apply(t *testing.T, postID string, who models.Actor, bid float64) *models.Application {
	t.Helper()
	p, err := h.engine.Apply(context.Background(), who, postID, models.ApplyRequest{
		CV:          "cv-" + who.ID,
		CoverLetter: "I can do it",
		BidAmount:   bid,
	})
	require.NoError(t, err)
	return p.ApplicationByFreelancer(who.ID)
}

// staffedPost returns a post with f1 accepted at a bid of 4500
func (h *harness) staffedPost(t *testing.T) *models.Post {
	t.Helper()
	p := h.createPost(t)
	app := h.apply(t, p.ID, f1, 4500)
	p, err := h.engine.DecideApplication(context.Background(), client, p.ID, app.ID, models.ApplicationAccepted)
	require.NoError(t, err)
	return p
}

// completedPost returns a staffed post whose delivery was accepted
func (h *harness) completedPost(t *testing.T) *models.Post {
	t.Helper()
	ctx := context.Background()
	p := h.staffedPost(t)
	_, err := h.engine.SubmitFinalization(ctx, f1, p.ID, models.SubmitFinalizationRequest{Files: []string{"api.zip"}})
	require.NoError(t, err)
	p, err = h.engine.AcceptFinalization(ctx, client, p.ID)
	require.NoError(t, err)
	return p
}

func (h *harness) reload(t *testing.T, postID string) *models.Post {
	t.Helper()
	p, err := h.repo.GetPost(context.Background(), postID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

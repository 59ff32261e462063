package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/gigboard/internal/models"
	"github.com/terra-clan/gigboard/internal/payments"
	"github.com/terra-clan/gigboard/internal/storage"
)

func TestInitiatePayment_NoPayee(t *testing.T) {
	h := newHarness(t, nil)
	p := h.createPost(t)
	h.apply(t, p.ID, f1, 5000)

	_, err := h.engine.InitiatePayment(context.Background(), client, p.ID, 5000)
	assert.True(t, IsKind(err, KindConflict))
	assert.False(t, h.reload(t, p.ID).Paid)
}

func TestInitiatePayment_Succeeds(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.staffedPost(t)

	pay, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, pay.Status)
	assert.Equal(t, f1.ID, pay.FreelancerID)
	assert.Equal(t, client.ID, pay.ClientID)
	assert.Equal(t, "mock", pay.Provider)
	assert.NotEmpty(t, pay.TransactionID)

	assert.True(t, h.reload(t, p.ID).Paid)
	assert.Equal(t, models.KindProjectPaid, h.emitter.last().Kind)
	assert.Equal(t, f1.ID, h.emitter.last().RecipientID)

	view, err := h.engine.GetPaymentStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusView{Status: models.PaymentSucceeded, PaymentID: pay.ID, Paid: true}, *view)

	// Second payment is always a conflict
	_, err = h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindConflict))

	receipt, err := h.engine.ReceiptFor(ctx, f1, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, pay.ID, receipt.ID)
	_, err = h.engine.ReceiptFor(ctx, f2, pay.ID)
	assert.True(t, IsKind(err, KindForbidden))
	_, err = h.engine.ReceiptFor(ctx, client, "missing")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestInitiatePayment_Guards(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.staffedPost(t)

	_, err := h.engine.InitiatePayment(ctx, client, "missing", 0)
	assert.True(t, IsKind(err, KindValidation), "amount is checked first")

	_, err = h.engine.InitiatePayment(ctx, client, "missing", 100)
	assert.True(t, IsKind(err, KindNotFound))

	_, err = h.engine.InitiatePayment(ctx, otherOwner, p.ID, 4500)
	assert.True(t, IsKind(err, KindForbidden))

	_, err = h.engine.InitiatePayment(ctx, f1, p.ID, 4500)
	assert.True(t, IsKind(err, KindForbidden))

	_, err = h.engine.InitiatePayment(ctx, client, p.ID, 5000)
	assert.True(t, IsKind(err, KindValidation), "must match the accepted bid")

	assert.False(t, h.reload(t, p.ID).Paid)
}

func TestGetPaymentStatus_NoPayment(t *testing.T) {
	h := newHarness(t, nil)
	p := h.createPost(t)

	view, err := h.engine.GetPaymentStatus(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusView{Status: models.PaymentPending, Paid: false}, *view)

	_, err = h.engine.GetPaymentStatus(context.Background(), "missing")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestInitiatePayment_DeclinedIsCompensated(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.staffedPost(t)

	h.gateway.FailNextCharge(payments.ErrDeclined)
	_, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindUnavailable))
	assert.False(t, h.reload(t, p.ID).Paid)

	view, err := h.engine.GetPaymentStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, view.Status)

	// The client can retry
	pay, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, pay.Status)

	list, err := h.repo.ListPaymentsByPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestInitiatePayment_PaymentWriteFailureIsCompensated(t *testing.T) {
	repo := newFaultRepo()
	h := newHarness(t, repo)
	ctx := context.Background()
	p := h.staffedPost(t)

	repo.createPayment = func(*models.Payment, func() error) error {
		return errors.New("insert payments: check violation")
	}
	_, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindUnavailable))
	assert.False(t, h.reload(t, p.ID).Paid)

	repo.createPayment = nil
	_, err = h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	require.NoError(t, err)
}

func TestInitiatePayment_CompensationRetriesConflicts(t *testing.T) {
	repo := newFaultRepo()
	h := newHarness(t, repo)
	ctx := context.Background()
	p := h.staffedPost(t)

	repo.createPayment = func(*models.Payment, func() error) error {
		return errors.New("insert payments: check violation")
	}
	conflicts := 0
	repo.savePost = func(post *models.Post, save func() error) error {
		if !post.Paid && conflicts < 2 {
			conflicts++
			return storage.ErrVersionConflict
		}
		return save()
	}

	_, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindUnavailable))
	assert.Equal(t, 2, conflicts)
	assert.False(t, h.reload(t, p.ID).Paid)
}

func TestInitiatePayment_UnknownOutcomeIsNotCompensated(t *testing.T) {
	repo := newFaultRepo()
	h := newHarness(t, repo)
	ctx := context.Background()
	p := h.staffedPost(t)

	repo.createPayment = func(*models.Payment, func() error) error {
		return fmt.Errorf("insert payments: %w: broken pipe", storage.ErrOutcomeUnknown)
	}
	_, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindUnavailable))

	// The claim stays until the reconciler proves no payment exists
	assert.True(t, h.reload(t, p.ID).Paid)
	require.NoError(t, h.engine.ReleaseStaleClaim(ctx, p.ID))
	assert.False(t, h.reload(t, p.ID).Paid)
}

func TestInitiatePayment_ClaimOutcomeUnknown(t *testing.T) {
	repo := newFaultRepo()
	h := newHarness(t, repo)
	ctx := context.Background()
	p := h.staffedPost(t)

	// The claim write reaches the store but the reply is lost
	repo.savePost = func(_ *models.Post, save func() error) error {
		if err := save(); err != nil {
			return err
		}
		return fmt.Errorf("update posts: %w", storage.ErrOutcomeUnknown)
	}
	_, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindUnavailable))
	repo.savePost = nil

	// No payment was attempted, so a retry sees the claim
	_, err = h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindConflict))

	list, err := repo.ListPaymentsByPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInitiatePayment_GatewayUnreachable(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.staffedPost(t)

	h.gateway.FailNextCharge(errors.New("gateway timeout"))
	_, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindUnavailable))
	assert.True(t, h.reload(t, p.ID).Paid)

	view, err := h.engine.GetPaymentStatus(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPending, view.Status)

	// Too early to decide the charge was never made
	pay, err := h.engine.VerifyPayment(ctx, view.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, pay.Status)

	h.clock.Advance(2 * time.Minute)
	pay, err = h.engine.VerifyPayment(ctx, view.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, pay.Status)
	assert.False(t, h.reload(t, p.ID).Paid)
}

func TestInitiatePayment_AsyncGateway(t *testing.T) {
	h := newHarness(t, nil, payments.WithSettlement(models.PaymentPending))
	ctx := context.Background()
	p := h.staffedPost(t)
	before := len(h.emitter.kinds())

	pay, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, pay.Status)
	assert.Len(t, h.emitter.kinds(), before, "no project_paid until settled")

	// Still pending at the gateway
	again, err := h.engine.VerifyPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, again.Status)

	require.NoError(t, h.gateway.Settle(pay.ID, models.PaymentSucceeded))
	settled, err := h.engine.VerifyPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, settled.Status)
	assert.Equal(t, models.KindProjectPaid, h.emitter.last().Kind)
	assert.True(t, h.reload(t, p.ID).Paid)

	// Idempotent once terminal
	count := len(h.emitter.kinds())
	settled, err = h.engine.VerifyPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, settled.Status)
	assert.Len(t, h.emitter.kinds(), count)
}

func TestVerifyPayment_ResyncsPaidFlag(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.staffedPost(t)

	pay, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	require.NoError(t, err)

	// Simulate a lost Post.paid write
	stored := h.reload(t, p.ID)
	stored.Paid = false
	require.NoError(t, h.repo.SavePost(ctx, stored, stored.Version))

	got, err := h.engine.VerifyPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, got.Status)
	assert.True(t, h.reload(t, p.ID).Paid)

	_, err = h.engine.VerifyPayment(ctx, "missing")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestReceiptFor_PendingConflicts(t *testing.T) {
	h := newHarness(t, nil, payments.WithSettlement(models.PaymentPending))
	p := h.staffedPost(t)

	pay, err := h.engine.InitiatePayment(context.Background(), client, p.ID, 4500)
	require.NoError(t, err)

	_, err = h.engine.ReceiptFor(context.Background(), client, pay.ID)
	assert.True(t, IsKind(err, KindConflict))
}

func TestInitiatePayment_Transactional(t *testing.T) {
	repo := &txRepo{MemoryRepository: storage.NewMemoryRepository()}
	h := newHarness(t, repo)
	ctx := context.Background()
	p := h.staffedPost(t)

	pay, err := h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, pay.Status)
	assert.Equal(t, 1, repo.calls)
	assert.True(t, h.reload(t, p.ID).Paid)

	_, err = h.engine.InitiatePayment(ctx, client, p.ID, 4500)
	assert.True(t, IsKind(err, KindConflict))
	assert.Equal(t, 1, repo.calls, "already paid is rejected before the transaction")
}

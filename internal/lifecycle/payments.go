package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/terra-clan/gigboard/internal/models"
	"github.com/terra-clan/gigboard/internal/payments"
	"github.com/terra-clan/gigboard/internal/storage"
)

// InitiatePayment pays the accepted freelancer of a post.
//
// The post is first claimed (paid=true, version-checked) together with a
// pending Payment, then the gateway is charged and the Payment settled.
// A confirmed failure after the claim releases it again. When an outcome
// is unknown nothing is rolled back and the reconciler settles the Payment
// from the gateway's record.
func (e *Engine) InitiatePayment(ctx context.Context, actor models.Actor, postID string, amount float64) (*models.Payment, error) {
	return run(ctx, e, "initiate_payment", func(ctx context.Context) (*models.Payment, error) {
		if !validAmount(amount) {
			return nil, invalid("amount must be a positive number")
		}

		p, err := e.loadPost(ctx, postID)
		if err != nil {
			return nil, err
		}
		if p.Paid {
			return nil, conflict("post %s is already paid", postID)
		}
		if p.ClientID != actor.ID {
			return nil, forbidden("only the post owner can pay for it")
		}
		accepted := p.AcceptedApplication()
		if accepted == nil {
			return nil, conflict("post %s has no accepted application to pay", postID)
		}
		if !sameAmount(amount, accepted.BidAmount) {
			return nil, invalid("amount %.2f does not match the agreed bid %.2f", amount, accepted.BidAmount)
		}

		now := e.now()
		pay := &models.Payment{
			ID:           e.newID(),
			PostID:       postID,
			ClientID:     p.ClientID,
			FreelancerID: accepted.FreelancerID,
			Amount:       amount,
			Status:       models.PaymentPending,
			Provider:     e.gateway.Name(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		claimed := p.Clone()
		claimed.Paid = true
		claimed.UpdatedAt = now
		if err := e.reserve(ctx, claimed, p.Version, pay); err != nil {
			return nil, err
		}

		return e.charge(ctx, claimed, pay)
	}, attribute.String("post_id", postID))
}

// reserve claims the post and records the pending payment
func (e *Engine) reserve(ctx context.Context, claimed *models.Post, expected int64, pay *models.Payment) error {
	if tx, ok := e.repo.(storage.PaymentTx); ok {
		err := tx.ClaimAndCreatePayment(ctx, claimed, expected, pay)
		if errors.Is(err, storage.ErrDuplicatePayment) {
			return conflict("post %s already has an active payment", claimed.ID)
		}
		if err != nil {
			return e.storeErr(err, claimed.ID, "failed to reserve payment")
		}
		return nil
	}

	if err := e.repo.SavePost(ctx, claimed, expected); err != nil {
		return e.storeErr(err, claimed.ID, "failed to claim post for payment")
	}

	if err := e.repo.CreatePayment(ctx, pay); err != nil {
		if errors.Is(err, storage.ErrOutcomeUnknown) {
			slog.Warn("payment record outcome unknown, leaving claim for reconciliation",
				"error", err,
				"post_id", claimed.ID,
				"payment_id", pay.ID,
			)
			return unavailable(err, "payment could not be confirmed, it will be reconciled")
		}

		// The record was never written: undo the claim
		if relErr := e.releaseClaim(ctx, claimed.ID); relErr != nil {
			slog.Error("failed to release payment claim", "error", relErr, "post_id", claimed.ID)
		}
		if errors.Is(err, storage.ErrDuplicatePayment) {
			return conflict("post %s already has an active payment", claimed.ID)
		}
		slog.Error("failed to record payment", "error", err, "post_id", claimed.ID)
		return unavailable(err, "failed to record payment")
	}
	return nil
}

// charge asks the gateway to move the funds and settles the payment record.
// The charge is bounded by chargeTimeout so that VerifyPayment only gives
// up on a charge that can no longer be in flight.
func (e *Engine) charge(ctx context.Context, claimed *models.Post, pay *models.Payment) (*models.Payment, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, e.chargeTimeout)
	res, err := e.gateway.Charge(chargeCtx, payments.ChargeRequest{
		PaymentID:    pay.ID,
		PostID:       pay.PostID,
		ClientID:     pay.ClientID,
		FreelancerID: pay.FreelancerID,
		Amount:       pay.Amount,
	})
	cancel()
	if err != nil {
		if errors.Is(err, payments.ErrDeclined) {
			return nil, e.declined(ctx, pay, err)
		}
		slog.Warn("charge outcome unknown, payment left pending",
			"error", err,
			"post_id", pay.PostID,
			"payment_id", pay.ID,
		)
		return nil, unavailable(err, "payment gateway unavailable, payment %s will be re-verified", pay.ID)
	}
	if res.Status == models.PaymentFailed {
		return nil, e.declined(ctx, pay, payments.ErrDeclined)
	}

	updated, err := e.repo.UpdatePayment(ctx, pay.ID, models.PaymentUpdate{
		From:          models.PaymentPending,
		Status:        res.Status,
		TransactionID: res.TransactionID,
	})
	if errors.Is(err, storage.ErrStatusConflict) {
		return e.settledElsewhere(ctx, pay, res)
	}
	if err != nil {
		slog.Error("charge succeeded but payment record was not updated",
			"error", err,
			"post_id", pay.PostID,
			"payment_id", pay.ID,
			"transaction_id", res.TransactionID,
		)
		return nil, unavailable(err, "payment %s was charged but not recorded, it will be re-verified", pay.ID)
	}

	slog.Info("payment initiated",
		"post_id", pay.PostID,
		"payment_id", updated.ID,
		"status", updated.Status,
		"amount", updated.Amount,
	)
	if updated.Status == models.PaymentSucceeded {
		e.notifyPaid(ctx, claimed.Title, updated)
	}
	return updated, nil
}

// settledElsewhere handles a charge result that arrived after the payment
// already left pending. A payment that was failed meanwhile keeps its
// status and the charge is reported for refund.
func (e *Engine) settledElsewhere(ctx context.Context, pay *models.Payment, res *payments.ChargeResult) (*models.Payment, error) {
	current, err := e.repo.GetPayment(ctx, pay.ID)
	if err != nil {
		return nil, unavailable(err, "failed to reload payment %s", pay.ID)
	}
	if current == nil {
		return nil, notFound("payment %s not found", pay.ID)
	}
	if current.Status != models.PaymentFailed {
		return current, nil
	}

	slog.Error("charge completed after payment was marked failed, refund required",
		"post_id", pay.PostID,
		"payment_id", pay.ID,
		"transaction_id", res.TransactionID,
		"amount", pay.Amount,
	)
	return nil, conflict("payment %s was already settled as %s", pay.ID, current.Status)
}

// declined marks the payment failed and releases the post claim
func (e *Engine) declined(ctx context.Context, pay *models.Payment, cause error) error {
	_, err := e.repo.UpdatePayment(ctx, pay.ID, models.PaymentUpdate{
		From:   models.PaymentPending,
		Status: models.PaymentFailed,
	})
	if err != nil && !errors.Is(err, storage.ErrStatusConflict) {
		slog.Error("failed to mark declined payment", "error", err, "payment_id", pay.ID)
		return unavailable(cause, "payment was declined")
	}
	if err := e.releaseClaim(ctx, pay.PostID); err != nil {
		slog.Error("failed to release payment claim", "error", err, "post_id", pay.PostID)
	}
	slog.Info("payment declined", "post_id", pay.PostID, "payment_id", pay.ID)
	return unavailable(cause, "payment was declined")
}

// releaseClaim reverts Post.paid when the post has no active payment.
// Version conflicts are retried a bounded number of times.
func (e *Engine) releaseClaim(ctx context.Context, postID string) error {
	var lastErr error
	for attempt := 0; attempt < e.compensateAttempts; attempt++ {
		p, err := e.repo.GetPost(ctx, postID)
		if err != nil {
			lastErr = err
			continue
		}
		if p == nil || !p.Paid {
			return nil
		}

		active, err := e.activePayment(ctx, postID)
		if err != nil {
			lastErr = err
			continue
		}
		if active != nil {
			return nil
		}

		expected := p.Version
		p.Paid = false
		p.UpdatedAt = e.now()
		err = e.repo.SavePost(ctx, p, expected)
		if err == nil {
			slog.Info("payment claim released", "post_id", postID)
			return nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if errors.Is(err, storage.ErrOutcomeUnknown) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("release claim on post %s after %d attempts: %w", postID, e.compensateAttempts, lastErr)
}

// syncPaid marks the post paid after its payment succeeded
func (e *Engine) syncPaid(ctx context.Context, postID string) error {
	var lastErr error
	for attempt := 0; attempt < e.compensateAttempts; attempt++ {
		p, err := e.repo.GetPost(ctx, postID)
		if err != nil {
			lastErr = err
			continue
		}
		if p == nil || p.Paid {
			return nil
		}

		expected := p.Version
		p.Paid = true
		p.UpdatedAt = e.now()
		err = e.repo.SavePost(ctx, p, expected)
		if err == nil {
			slog.Info("post paid flag re-synced", "post_id", postID)
			return nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("sync paid on post %s after %d attempts: %w", postID, e.compensateAttempts, lastErr)
}

// activePayment returns the post's most recent payment that is not failed
func (e *Engine) activePayment(ctx context.Context, postID string) (*models.Payment, error) {
	list, err := e.repo.ListPaymentsByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Status != models.PaymentFailed {
			return list[i], nil
		}
	}
	return nil, nil
}

// VerifyPayment re-affirms a payment against the gateway and re-syncs
// Post.paid. Calling it repeatedly has no further effect once the payment
// is terminal and the post agrees with it.
func (e *Engine) VerifyPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return run(ctx, e, "verify_payment", func(ctx context.Context) (*models.Payment, error) {
		pay, err := e.repo.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, unavailable(err, "failed to load payment")
		}
		if pay == nil {
			return nil, notFound("payment %s not found", paymentID)
		}

		switch pay.Status {
		case models.PaymentFailed:
			return pay, nil

		case models.PaymentPending:
			res, err := e.gateway.Lookup(ctx, pay.ID)
			switch {
			case errors.Is(err, payments.ErrChargeNotFound):
				if e.now().Sub(pay.CreatedAt) < e.chargeTimeout {
					return pay, nil
				}
				// The charge was never made
				res = &payments.ChargeResult{Status: models.PaymentFailed}
			case err != nil:
				return nil, unavailable(err, "payment gateway unavailable")
			}
			if res.Status == models.PaymentPending {
				return pay, nil
			}

			updated, err := e.repo.UpdatePayment(ctx, pay.ID, models.PaymentUpdate{
				From:          models.PaymentPending,
				Status:        res.Status,
				TransactionID: res.TransactionID,
			})
			if errors.Is(err, storage.ErrStatusConflict) {
				// Settled by the charging request meanwhile
				return e.resync(ctx, pay.ID)
			}
			if err != nil {
				return nil, unavailable(err, "failed to update payment")
			}
			pay = updated

			if pay.Status == models.PaymentFailed {
				if err := e.releaseClaim(ctx, pay.PostID); err != nil {
					return nil, unavailable(err, "failed to release payment claim")
				}
				slog.Info("pending payment settled as failed", "payment_id", pay.ID, "post_id", pay.PostID)
				return pay, nil
			}

			if err := e.syncPaid(ctx, pay.PostID); err != nil {
				return nil, unavailable(err, "failed to sync post paid flag")
			}
			slog.Info("pending payment settled", "payment_id", pay.ID, "post_id", pay.PostID)
			if p, err := e.repo.GetPost(ctx, pay.PostID); err == nil && p != nil {
				e.notifyPaid(ctx, p.Title, pay)
			}
			return pay, nil

		default:
			if err := e.syncPaid(ctx, pay.PostID); err != nil {
				return nil, unavailable(err, "failed to sync post paid flag")
			}
			return pay, nil
		}
	}, attribute.String("payment_id", paymentID))
}

// resync reloads a payment and aligns Post.paid with it without notifying
func (e *Engine) resync(ctx context.Context, paymentID string) (*models.Payment, error) {
	pay, err := e.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, unavailable(err, "failed to reload payment %s", paymentID)
	}
	if pay == nil {
		return nil, notFound("payment %s not found", paymentID)
	}
	if pay.Status == models.PaymentSucceeded {
		if err := e.syncPaid(ctx, pay.PostID); err != nil {
			return nil, unavailable(err, "failed to sync post paid flag")
		}
	}
	return pay, nil
}

// GetPaymentStatus projects a post's payment state. A post without a
// payment reports pending.
func (e *Engine) GetPaymentStatus(ctx context.Context, postID string) (*models.PaymentStatusView, error) {
	return run(ctx, e, "get_payment_status", func(ctx context.Context) (*models.PaymentStatusView, error) {
		p, err := e.loadPost(ctx, postID)
		if err != nil {
			return nil, err
		}

		list, err := e.repo.ListPaymentsByPost(ctx, postID)
		if err != nil {
			return nil, unavailable(err, "failed to load payments")
		}

		view := &models.PaymentStatusView{Status: models.PaymentPending, Paid: p.Paid}
		var chosen *models.Payment
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].Status != models.PaymentFailed {
				chosen = list[i]
				break
			}
		}
		if chosen == nil && len(list) > 0 {
			chosen = list[len(list)-1]
		}
		if chosen != nil {
			view.Status = chosen.Status
			view.PaymentID = chosen.ID
		}
		return view, nil
	}, attribute.String("post_id", postID))
}

// ReceiptFor returns the settled payment for the receipt renderer. Only
// the paying client and the paid freelancer may see it.
func (e *Engine) ReceiptFor(ctx context.Context, actor models.Actor, paymentID string) (*models.Payment, error) {
	return run(ctx, e, "receipt", func(ctx context.Context) (*models.Payment, error) {
		pay, err := e.repo.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, unavailable(err, "failed to load payment")
		}
		if pay == nil {
			return nil, notFound("payment %s not found", paymentID)
		}
		if actor.ID != pay.ClientID && actor.ID != pay.FreelancerID {
			return nil, forbidden("not a party to payment %s", paymentID)
		}
		if pay.Status != models.PaymentSucceeded {
			return nil, conflict("payment %s is %s", paymentID, pay.Status)
		}
		return pay, nil
	}, attribute.String("payment_id", paymentID))
}

// ReleaseStaleClaim un-claims a post marked paid that has no active
// payment, as left behind by an interrupted payment.
func (e *Engine) ReleaseStaleClaim(ctx context.Context, postID string) error {
	_, err := run(ctx, e, "release_stale_claim", func(ctx context.Context) (struct{}, error) {
		if err := e.releaseClaim(ctx, postID); err != nil {
			return struct{}{}, unavailable(err, "failed to release payment claim")
		}
		return struct{}{}, nil
	}, attribute.String("post_id", postID))
	return err
}

func (e *Engine) notifyPaid(ctx context.Context, title string, pay *models.Payment) {
	e.emit(ctx, pay.FreelancerID, pay.ClientID, pay.PostID, models.KindProjectPaid,
		fmt.Sprintf("Payment of %.2f received for %q", pay.Amount, title))
}

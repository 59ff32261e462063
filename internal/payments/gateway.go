// Package payments defines the payment gateway collaborator used by the
// lifecycle engine to move funds from a client to a freelancer.
package payments

import (
	"context"
	"errors"

	"github.com/terra-clan/gigboard/internal/models"
)

var (
	// ErrDeclined means the gateway refused the charge. No funds moved.
	ErrDeclined = errors.New("payment declined")
	// ErrChargeNotFound means the gateway has no record of the payment
	ErrChargeNotFound = errors.New("charge not found")
)

// ChargeRequest describes a single charge. PaymentID doubles as the
// idempotency key: charging the same payment twice returns the first result.
type ChargeRequest struct {
	PaymentID    string
	PostID       string
	ClientID     string
	FreelancerID string
	Amount       float64
}

// ChargeResult is the gateway's view of a charge
type ChargeResult struct {
	Status        models.PaymentStatus
	TransactionID string
}

// Gateway moves funds and reports on charges it has seen
type Gateway interface {
	// Name is stored as Payment.Provider
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	// Lookup returns the current state of the charge made for paymentID,
	// or ErrChargeNotFound if none was made.
	Lookup(ctx context.Context, paymentID string) (*ChargeResult, error)
}

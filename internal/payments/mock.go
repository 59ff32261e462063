package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/terra-clan/gigboard/internal/models"
)

// MockGateway is an in-process gateway. By default every charge settles
// immediately as succeeded.
type MockGateway struct {
	mu        sync.Mutex
	settle    models.PaymentStatus
	charges   map[string]*ChargeResult
	chargeErr error
}

// MockOption configures a MockGateway
type MockOption func(*MockGateway)

// WithSettlement sets the status new charges start in. Use
// models.PaymentPending to simulate an asynchronous gateway.
func WithSettlement(status models.PaymentStatus) MockOption {
	return func(g *MockGateway) {
		g.settle = status
	}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(opts ...MockOption) *MockGateway {
	g := &MockGateway{
		settle:  models.PaymentSucceeded,
		charges: make(map[string]*ChargeResult),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the provider tag
func (g *MockGateway) Name() string {
	return "mock"
}

// FailNextCharge makes the next Charge call return err without recording a charge
func (g *MockGateway) FailNextCharge(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeErr = err
}

// Charge records a charge for the payment
func (g *MockGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.chargeErr != nil {
		err := g.chargeErr
		g.chargeErr = nil
		return nil, err
	}

	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrDeclined)
	}

	if existing, ok := g.charges[req.PaymentID]; ok {
		cp := *existing
		return &cp, nil
	}

	res := &ChargeResult{
		Status:        g.settle,
		TransactionID: "mock_" + uuid.NewString(),
	}
	g.charges[req.PaymentID] = res

	cp := *res
	return &cp, nil
}

// Lookup returns the recorded charge for a payment
func (g *MockGateway) Lookup(_ context.Context, paymentID string) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.charges[paymentID]
	if !ok {
		return nil, ErrChargeNotFound
	}
	cp := *res
	return &cp, nil
}

// Settle moves a recorded charge to a final status, as an asynchronous
// gateway callback would.
func (g *MockGateway) Settle(paymentID string, status models.PaymentStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.charges[paymentID]
	if !ok {
		return ErrChargeNotFound
	}
	res.Status = status
	return nil
}

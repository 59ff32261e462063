package models

import (
	"time"
)

// PaymentStatus represents the settlement state of a payment
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// IsTerminal returns true if the payment status can no longer change
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

// Payment records funds moving from the client to the accepted freelancer.
// It is stored independently of the Post aggregate.
type Payment struct {
	ID            string        `json:"id"`
	PostID        string        `json:"post_id"`
	ClientID      string        `json:"client_id"`
	FreelancerID  string        `json:"freelancer_id"`
	Amount        float64       `json:"amount"`
	Status        PaymentStatus `json:"status"`
	Provider      string        `json:"provider"`
	TransactionID string        `json:"transaction_id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// PaymentUpdate carries the mutable fields of a payment. When From is set
// the update only applies while the payment is still in that status.
type PaymentUpdate struct {
	From          PaymentStatus
	Status        PaymentStatus
	TransactionID string
}

// PaymentStatusView is the read-only projection returned by GetPaymentStatus
type PaymentStatusView struct {
	Status    PaymentStatus `json:"status"`
	PaymentID string        `json:"payment_id,omitempty"`
	Paid      bool          `json:"paid"`
}

// Package receipt renders a plain-text receipt for a settled payment.
package receipt

import (
	"errors"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/terra-clan/gigboard/internal/models"
)

// ErrNotSettled is returned for payments that have not succeeded
var ErrNotSettled = errors.New("payment is not settled")

const receiptTemplate = `GIGBOARD PAYMENT RECEIPT
========================
Receipt:        {{ .Payment.ID }}
Transaction:    {{ .Payment.TransactionID }}
Provider:       {{ .Payment.Provider }}
Project:        {{ .Payment.PostID }}
Paid by:        {{ .Payment.ClientID }}
Paid to:        {{ .Payment.FreelancerID }}
Amount:         {{ printf "%.2f" .Payment.Amount }}
Status:         {{ .Payment.Status }}
Paid at:        {{ .Payment.UpdatedAt.Format "2006-01-02 15:04:05 MST" }}
Issued at:      {{ .IssuedAt.Format "2006-01-02 15:04:05 MST" }}
`

// Renderer writes receipts from immutable payment snapshots
type Renderer struct {
	tmpl *template.Template
	now  func() time.Time
}

// NewRenderer creates a renderer with the built-in layout
func NewRenderer() *Renderer {
	return &Renderer{
		tmpl: template.Must(template.New("receipt").Parse(receiptTemplate)),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ContentType is the media type of rendered receipts
func (r *Renderer) ContentType() string {
	return "text/plain; charset=utf-8"
}

// Render writes the receipt for pay to w
func (r *Renderer) Render(w io.Writer, pay models.Payment) error {
	if pay.Status != models.PaymentSucceeded {
		return fmt.Errorf("%w: %s", ErrNotSettled, pay.Status)
	}

	data := struct {
		Payment  models.Payment
		IssuedAt time.Time
	}{
		Payment:  pay,
		IssuedAt: r.now(),
	}
	if err := r.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render receipt: %w", err)
	}
	return nil
}

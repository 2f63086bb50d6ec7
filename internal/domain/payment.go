package domain

import "time"

// PaymentState is the provider-agnostic state of a payment attempt
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStatePaid      PaymentState = "paid"
	PaymentStateCancelled PaymentState = "cancelled"
)

// PaymentRecord is one provider's view of a single payment attempt for a
// booking. Created when the attempt starts, updated idempotently as the
// provider's view changes, never deleted (audit trail).
type PaymentRecord struct {
	ID            int64
	BookingID     int64
	Provider      string // "click", "payme"
	ProviderTxID  string
	State         PaymentState
	ProviderState int // raw provider-specific status code, kept for audit
	Amount        float64

	CreatedAt   time.Time
	PerformedAt *time.Time
	CancelledAt *time.Time
	UpdatedAt   time.Time
}

// IsTerminalPaid returns true if the provider reports the attempt as paid
func (p *PaymentRecord) IsTerminalPaid() bool {
	return p.State == PaymentStatePaid
}

// IsCancelled returns true if the provider reports the attempt as cancelled
func (p *PaymentRecord) IsCancelled() bool {
	return p.State == PaymentStateCancelled
}

package domain

import (
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusSelected  BookingStatus = "selected"
	StatusApproved  BookingStatus = "approved"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
)

// statusTransitions is the allowed transition table. Status is the single
// source of truth for workflow position; anything outside this table is an
// invalid transition.
var statusTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusSelected, StatusApproved, StatusRejected},
	StatusSelected:  {StatusApproved, StatusRejected},
	StatusApproved:  {},
	StatusRejected:  {},
	StatusCancelled: {},
}

// Booking represents a reservation request for a place in the system
type Booking struct {
	ID        int64
	RequestID string // human-facing unique reference, generated at creation, never reused
	UserID    int64  // client
	PlaceID   int64  // host is derived via place ownership

	CheckInDate  time.Time
	CheckOutDate time.Time
	TimeSlots    TimeSlots // empty for full-range bookings

	Status BookingStatus

	// Payment
	PaidAt            *time.Time
	PaidToHost        bool // broker-confirmed settlement to the host, one-way
	PaidToHostAt      *time.Time
	PaymentProviderID *string
	PaymentResponse   *string // opaque provider payload, kept for audit

	// Lifecycle timestamps, each set at most once on first entry into the status
	SelectedAt  *time.Time
	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	CancelledAt *time.Time

	// RefundPolicy is snapshotted from the place at creation time and is
	// immutable afterwards: refunds follow the rules in force when the
	// booking was made.
	RefundPolicy *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransitionTo reports whether the transition table allows moving from the
// current status to the target status
func (b *Booking) CanTransitionTo(target BookingStatus) bool {
	for _, allowed := range statusTransitions[b.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no transitions are defined out of the status
func (b *Booking) IsTerminal() bool {
	return len(statusTransitions[b.Status]) == 0
}

// IsCompeting returns true if the booking is an uncommitted claim on its
// slots (pending or selected). Competing bookings may freely overlap each
// other until a host or agent picks a winner.
func (b *Booking) IsCompeting() bool {
	return b.Status == StatusPending || b.Status == StatusSelected
}

// IsApproved returns true if the booking is approved
func (b *Booking) IsApproved() bool {
	return b.Status == StatusApproved
}

// IsPaid returns true if a client payment has been recorded
func (b *Booking) IsPaid() bool {
	return b.PaidAt != nil
}

// AcceptsPayment reports whether a payment confirmation may still be applied.
// A late payment signal must never resurrect a rejected or cancelled booking.
func (b *Booking) AcceptsPayment() bool {
	for _, s := range PayableStatuses {
		if b.Status == s {
			return true
		}
	}
	return false
}

// UsesTimeSlots returns true if the booking occupies discrete time slots
// rather than a full date range
func (b *Booking) UsesTimeSlots() bool {
	return len(b.TimeSlots) > 0
}

// ValidStatus reports whether s is one of the known wire statuses
func ValidStatus(s BookingStatus) bool {
	_, ok := statusTransitions[s]
	return ok
}

// CompetingStatuses список статусов конкурирующих (незакреплённых) заявок.
// Используется при авто-отклонении проигравших заявок после approve.
var CompetingStatuses = []BookingStatus{
	StatusPending,
	StatusSelected,
}

// PayableStatuses список статусов, в которых заявка принимает подтверждение
// оплаты. Rejected и cancelled сюда не входят: поздний платёжный сигнал по
// терминальной заявке отклоняется.
var PayableStatuses = []BookingStatus{
	StatusPending,
	StatusSelected,
	StatusApproved,
}

// PlaceBookingsFilter фильтр для выборки бронирований площадки
type PlaceBookingsFilter struct {
	PlaceID   int64           // Обязательный параметр
	StartDate *time.Time      // Начало периода (опционально)
	EndDate   *time.Time      // Конец периода (опционально)
	Status    *BookingStatus  // Фильтр по статусу (опционально)
	Statuses  []BookingStatus // Фильтр по набору статусов (опционально, приоритетнее Status)
	ExcludeID *int64          // Исключить бронирование по ID (опционально)
}

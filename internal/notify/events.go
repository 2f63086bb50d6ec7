package notify

// EventType тип события уведомления
type EventType string

// События жизненного цикла бронирования. Доставка (SMS, i18n-шаблоны)
// принадлежит notification-воркеру; этот сервис только публикует события.
const (
	EventBookingRequested EventType = "booking.requested"
	EventBookingSelected  EventType = "booking.selected"
	EventBookingApproved  EventType = "booking.approved"
	EventBookingPaid      EventType = "booking.payment_received"
	EventBookingRejected  EventType = "booking.rejected"
	EventPayoutDue        EventType = "booking.payout_due"
	EventPayoutDone       EventType = "booking.payout_done"
)

// Event полезная нагрузка события уведомления
type Event struct {
	UserID    int64                  `json:"userId"`
	EventType EventType              `json:"eventType"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

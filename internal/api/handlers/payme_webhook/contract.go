package payme_webhook

import (
	"context"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
)

// BookingRepository интерфейс репозитория бронирований
type BookingRepository interface {
	GetByRequestID(ctx context.Context, requestID string) (*domain.Booking, error)
}

// PaymentRepository интерфейс аудит-репозитория платёжных транзакций
type PaymentRepository interface {
	Upsert(ctx context.Context, record *domain.PaymentRecord) error
}

// PaymentApplier применяет подтверждённую оплату к бронированию
type PaymentApplier interface {
	MarkPaid(ctx context.Context, bookingID int64, providerTxID string, providerResponse string) (bool, error)
}

type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

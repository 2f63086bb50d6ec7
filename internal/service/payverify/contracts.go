package payverify

import (
	"context"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	"github.com/m04kA/SMC-ReservationService/internal/integrations/click"
)

// BookingRepository интерфейс репозитория бронирований
type BookingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
}

// PaymentRepository интерфейс аудит-репозитория платёжных транзакций
type PaymentRepository interface {
	Upsert(ctx context.Context, record *domain.PaymentRecord) error
	GetLatestByBooking(ctx context.Context, bookingID int64) (*domain.PaymentRecord, error)
}

// PaymentStatusClient интерфейс опроса статуса платежа у провайдера
type PaymentStatusClient interface {
	GetPaymentStatus(ctx context.Context, requestID string) (click.StatusResult, error)
}

// PaymentApplier применяет подтверждённую оплату к бронированию.
// Реализуется сервисом bookings, применение идемпотентно.
type PaymentApplier interface {
	MarkPaid(ctx context.Context, bookingID int64, providerTxID string, providerResponse string) (bool, error)
}

// Counter счётчик метрики, nil-safe на уровне вызывающего
type Counter interface {
	Inc()
}

// Logger интерфейс для логирования
type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

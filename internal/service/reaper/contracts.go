package reaper

import (
	"context"
	"time"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
)

// BookingRepository интерфейс репозитория бронирований
type BookingRepository interface {
	GetCompetingUpTo(ctx context.Context, date time.Time) ([]*domain.Booking, error)
	Delete(ctx context.Context, id int64) error
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

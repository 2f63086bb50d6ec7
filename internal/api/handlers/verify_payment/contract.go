package verify_payment

import (
	"context"

	"github.com/m04kA/SMC-ReservationService/internal/service/payverify"
)

type PaymentVerifier interface {
	Check(ctx context.Context, bookingID int64) (payverify.Outcome, error)
	Watch(ctx context.Context, bookingID int64) (payverify.Outcome, error)
}

type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

package payout

import "context"

type BookingService interface {
	MarkPaidToHost(ctx context.Context, bookingID int64, agentID int64) error
}

type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Package payverify сверяет оплату бронирований с платёжным провайдером.
//
// Webhook остаётся основным каналом подтверждения; поллер служит страховкой
// на случай потерянного или задержавшегося webhook'а. Оба канала сходятся в
// идемпотентном MarkPaid, поэтому порядок их прихода не важен: первая запись
// побеждает, вторая молча ничего не делает.
package payverify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	bookingRepo "github.com/m04kA/SMC-ReservationService/internal/infra/storage/booking"
	paymentRepo "github.com/m04kA/SMC-ReservationService/internal/infra/storage/payment"
	"github.com/m04kA/SMC-ReservationService/internal/integrations/click"
	bookingsService "github.com/m04kA/SMC-ReservationService/internal/service/bookings"
)

// ProviderClick имя провайдера в аудит-записях поллера
const ProviderClick = "click"

// Outcome итог наблюдения за платежом
type Outcome string

const (
	// OutcomeAlreadyPaid оплата была применена до или во время наблюдения
	// другим каналом (webhook)
	OutcomeAlreadyPaid Outcome = "already_paid"
	// OutcomePaid оплата подтверждена и применена этим наблюдением
	OutcomePaid Outcome = "paid"
	// OutcomeCancelled провайдер сообщил об отмене или сбое платежа
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeRefused провайдер подтвердил оплату, но заявка уже в терминальном
	// статусе: платёж не применён
	OutcomeRefused Outcome = "refused"
	// OutcomeTimeout бюджет попыток исчерпан, платёж так и не подтвердился
	OutcomeTimeout Outcome = "timeout"
)

// maxAttempts бюджет опроса: ~9.5 минут суммарного ожидания
const maxAttempts = 15

// slowInterval пауза после транзиентного сбоя шлюза: частый повтор по
// недоступному провайдеру бессмысленен
const slowInterval = 60 * time.Second

// Verifier поллер статуса платежа с адаптивным расписанием
type Verifier struct {
	bookings BookingRepository
	payments PaymentRepository
	provider PaymentStatusClient
	applier  PaymentApplier

	sleep   func(ctx context.Context, d time.Duration) error
	counter Counter // опционально
	logger  Logger
}

// NewVerifier создает новый экземпляр поллера
func NewVerifier(
	bookings BookingRepository,
	payments PaymentRepository,
	provider PaymentStatusClient,
	applier PaymentApplier,
	counter Counter,
	logger Logger,
) *Verifier {
	return &Verifier{
		bookings: bookings,
		payments: payments,
		provider: provider,
		applier:  applier,
		sleep:    sleepCtx,
		counter:  counter,
		logger:   logger,
	}
}

// Watch наблюдает за платежом бронирования до терминального исхода или
// исчерпания бюджета попыток. Блокирует до завершения: вызывающий запускает
// наблюдение в отдельной горутине.
//
// Расписание пауз между попытками адаптивное: первые минуты платёж
// проверяется часто (клиент прямо сейчас на платёжной странице), дальше
// всё реже.
func (v *Verifier) Watch(ctx context.Context, bookingID int64) (Outcome, error) {
	booking, err := v.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrBookingNotFound) {
			return "", ErrBookingNotFound
		}
		return "", fmt.Errorf("%w: Watch - fetch booking: %v", ErrInternal, err)
	}

	if booking.IsPaid() {
		return OutcomeAlreadyPaid, nil
	}

	// Локальная запись авторитетнее опроса: webhook мог уже всё решить
	if outcome, done := v.checkLocalRecord(ctx, booking); done {
		return outcome, nil
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome, done, transient, err := v.poll(ctx, booking, attempt)
		if err != nil {
			return "", err
		}
		if done {
			return outcome, nil
		}

		if attempt == maxAttempts {
			break
		}
		interval := intervalFor(attempt)
		if transient {
			interval = slowInterval
		}
		if err := v.sleep(ctx, interval); err != nil {
			return "", err
		}
	}

	v.logger.Warn("payverify: booking id=%d payment not confirmed after %d attempts", bookingID, maxAttempts)
	return OutcomeTimeout, nil
}

// Check выполняет единичную сверку без расписания. Используется ручным
// эндпоинтом проверки оплаты.
func (v *Verifier) Check(ctx context.Context, bookingID int64) (Outcome, error) {
	booking, err := v.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrBookingNotFound) {
			return "", ErrBookingNotFound
		}
		return "", fmt.Errorf("%w: Check - fetch booking: %v", ErrInternal, err)
	}

	if booking.IsPaid() {
		return OutcomeAlreadyPaid, nil
	}

	if outcome, done := v.checkLocalRecord(ctx, booking); done {
		return outcome, nil
	}

	outcome, done, _, err := v.poll(ctx, booking, 1)
	if err != nil {
		return "", err
	}
	if !done {
		return OutcomeTimeout, nil
	}
	return outcome, nil
}

// poll выполняет одну попытку сверки. done=false означает "платёж ещё
// в ожидании, пробуем позже". Транзиентный сбой шлюза тоже тратит попытку,
// но помечается отдельно: следующая пауза берётся медленной.
func (v *Verifier) poll(ctx context.Context, booking *domain.Booking, attempt int) (outcome Outcome, done, transient bool, err error) {
	if v.counter != nil {
		v.counter.Inc()
	}

	result, err := v.provider.GetPaymentStatus(ctx, booking.RequestID)
	if err != nil {
		if errors.Is(err, click.ErrAuthFailed) {
			v.logger.Error("payverify: provider auth failed for booking id=%d: %v", booking.ID, err)
			return "", false, false, ErrProviderAuth
		}
		// Транзиентный сбой тратит попытку, но не прерывает наблюдение
		v.logger.Warn("payverify: attempt %d failed for booking id=%d: %v", attempt, booking.ID, err)
		return "", false, true, nil
	}

	switch {
	case result.IsPaid:
		outcome, done, err = v.applyPaid(ctx, booking, result)
		return outcome, done, false, err
	case result.IsCancelled:
		v.recordState(ctx, booking, result, domain.PaymentStateCancelled)
		v.logger.Info("payverify: booking id=%d payment cancelled by provider, status=%d",
			booking.ID, result.PaymentStatus)
		return OutcomeCancelled, true, false, nil
	default:
		// pending либо платёж ещё не создан у провайдера
		return "", false, false, nil
	}
}

// applyPaid фиксирует оплату: аудит-запись и идемпотентный MarkPaid
func (v *Verifier) applyPaid(ctx context.Context, booking *domain.Booking, result click.StatusResult) (Outcome, bool, error) {
	v.recordState(ctx, booking, result, domain.PaymentStatePaid)

	providerTxID := strconv.FormatInt(result.PaymentID, 10)
	response := fmt.Sprintf(`{"provider":"%s","payment_id":%d,"payment_status":%d}`,
		ProviderClick, result.PaymentID, result.PaymentStatus)

	applied, err := v.applier.MarkPaid(ctx, booking.ID, providerTxID, response)
	if err != nil {
		if errors.Is(err, bookingsService.ErrInvalidStateTransition) {
			// Заявка ушла в терминальный статус, пока платёж подтверждался:
			// поздний сигнал не применяется, наблюдение завершено
			v.logger.Warn("payverify: booking id=%d is terminal, late payment refused", booking.ID)
			return OutcomeRefused, true, nil
		}
		return "", false, fmt.Errorf("%w: applyPaid - mark paid: %v", ErrInternal, err)
	}

	if !applied {
		// Webhook успел первым, побочные эффекты уже отработали
		v.logger.Info("payverify: booking id=%d already marked paid, poller is a no-op", booking.ID)
		return OutcomeAlreadyPaid, true, nil
	}

	v.logger.Info("payverify: booking id=%d confirmed paid via polling, provider_tx=%s", booking.ID, providerTxID)
	return OutcomePaid, true, nil
}

// checkLocalRecord проверяет аудит-таблицу перед опросом провайдера
func (v *Verifier) checkLocalRecord(ctx context.Context, booking *domain.Booking) (Outcome, bool) {
	record, err := v.payments.GetLatestByBooking(ctx, booking.ID)
	if err != nil {
		if !errors.Is(err, paymentRepo.ErrRecordNotFound) {
			v.logger.Warn("payverify: local record lookup failed for booking id=%d: %v", booking.ID, err)
		}
		return "", false
	}

	if record.IsTerminalPaid() {
		// Запись есть, но PaidAt на бронировании пуст: webhook упал между
		// upsert'ом и MarkPaid. Дотягиваем применение здесь.
		applied, err := v.applier.MarkPaid(ctx, booking.ID, record.ProviderTxID, "")
		if err != nil {
			if errors.Is(err, bookingsService.ErrInvalidStateTransition) {
				return OutcomeRefused, true
			}
			v.logger.Error("payverify: failed to apply local paid record for booking id=%d: %v", booking.ID, err)
			return "", false
		}
		if applied {
			return OutcomePaid, true
		}
		return OutcomeAlreadyPaid, true
	}
	if record.IsCancelled() {
		return OutcomeCancelled, true
	}

	return "", false
}

// recordState обновляет аудит-запись платежа. Сбой аудита не прерывает
// сверку: MarkPaid остаётся источником истины для бронирования.
func (v *Verifier) recordState(ctx context.Context, booking *domain.Booking, result click.StatusResult, state domain.PaymentState) {
	record := &domain.PaymentRecord{
		BookingID:     booking.ID,
		Provider:      ProviderClick,
		ProviderTxID:  strconv.FormatInt(result.PaymentID, 10),
		State:         state,
		ProviderState: result.PaymentStatus,
	}
	if err := v.payments.Upsert(ctx, record); err != nil {
		v.logger.Warn("payverify: failed to upsert payment record for booking id=%d: %v", booking.ID, err)
	}
}

// intervalFor возвращает паузу после попытки attempt.
// Между 15 попытками 14 пауз: 3x10s + 6x30s + 4x60s + 1x120s = 570s.
func intervalFor(attempt int) time.Duration {
	switch {
	case attempt <= 3:
		return 10 * time.Second
	case attempt <= 9:
		return 30 * time.Second
	case attempt <= 13:
		return 60 * time.Second
	default:
		return 120 * time.Second
	}
}

// sleepCtx спит с уважением к отмене контекста
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

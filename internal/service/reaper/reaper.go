// Package reaper удаляет устаревшие незакреплённые заявки: pending и selected
// бронирования, все слоты которых уже прошли. Approved-бронирования не
// трогаются никогда: это подтверждённые обязательства и история платежей.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
)

// Reaper сервис чистки устаревших заявок
type Reaper struct {
	repo    BookingRepository
	loc     *time.Location // опорная таймзона для "слот прошёл"
	now     func() time.Time
	counter Counter // опционально
	logger  Logger
}

// New создает новый экземпляр Reaper. Таймзона задаёт смысл "прошлого":
// один и тот же момент может быть вчера в одной зоне и сегодня в другой.
func New(repo BookingRepository, loc *time.Location, counter Counter, logger Logger) *Reaper {
	if loc == nil {
		loc = time.UTC
	}
	return &Reaper{
		repo:    repo,
		loc:     loc,
		now:     time.Now,
		counter: counter,
		logger:  logger,
	}
}

// Sweep находит и удаляет устаревшие заявки. Возвращает количество удалённых.
// Кандидаты ограничиваются датой заезда не позже сегодняшней: заявка с датами
// в будущем устареть не может.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	nowLocal := now.In(r.loc)
	// Календарный день опорной таймзоны как чистая дата: колонки дат
	// хранятся без зоны, сравнение должно идти по дате, а не по моменту
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, time.UTC)

	candidates, err := r.repo.GetCompetingUpTo(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("reaper: Sweep - fetch candidates: %w", err)
	}

	reaped := 0
	for _, booking := range candidates {
		if !r.isExpired(booking, now) {
			continue
		}
		if err := r.repo.Delete(ctx, booking.ID); err != nil {
			// Конкурентное удаление или чужой Sweep, идём дальше
			r.logger.Warn("reaper: failed to delete booking id=%d: %v", booking.ID, err)
			continue
		}
		r.logger.Info("reaper: deleted expired booking id=%d, status=%s", booking.ID, booking.Status)
		if r.counter != nil {
			r.counter.Inc()
		}
		reaped++
	}

	return reaped, nil
}

// isExpired проверяет, что заявка полностью в прошлом относительно now
// в опорной таймзоне
func (r *Reaper) isExpired(booking *domain.Booking, now time.Time) bool {
	if !booking.IsCompeting() {
		return false
	}

	if booking.UsesTimeSlots() {
		return booking.TimeSlots.AllPast(now, r.loc)
	}

	// Полнодиапазонная заявка устарела, если дата выезда раньше сегодняшней
	if booking.CheckOutDate.IsZero() {
		return false
	}
	nowLocal := now.In(r.loc)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, r.loc)
	checkOut := time.Date(
		booking.CheckOutDate.Year(), booking.CheckOutDate.Month(), booking.CheckOutDate.Day(),
		0, 0, 0, 0, r.loc,
	)
	return checkOut.Before(today)
}

// Run запускает периодическую чистку до отмены контекста
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("reaper: started, interval=%s, timezone=%s", interval, r.loc)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper: stopped")
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reaper: sweep failed: %v", err)
			} else if n > 0 {
				r.logger.Info("reaper: sweep removed %d expired bookings", n)
			}
		}
	}
}

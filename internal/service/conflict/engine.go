// Package conflict принимает чистые решения о пересечении временных слотов.
// Никаких внешних вызовов и побочных эффектов: все функции детерминированы
// и возвращают структурированные результаты вместо ошибок.
package conflict

import (
	"github.com/m04kA/SMC-ReservationService/internal/domain"
)

// Result результат проверки заявки против подтверждённых бронирований
type Result struct {
	OK              bool
	ConflictingSlot *domain.TimeSlot // слот заявки, вызвавший конфликт (если OK == false)
}

// SlotsConflict reports whether two slots collide given a cooldown buffer in
// minutes. Slots on different dates never conflict. Malformed or zero-length
// slots never conflict (validation is the caller's responsibility). At zero
// cooldown the check is a strict [start, end) intersection, so back-to-back
// slots do not collide; a positive cooldown requires at least that many free
// minutes between the two slots, applied symmetrically in both directions.
func SlotsConflict(a, b domain.TimeSlot, cooldownMinutes int) bool {
	if a.Date != b.Date {
		return false
	}
	if !a.IsValid() || !b.IsValid() {
		return false
	}

	aStart, err := a.StartTime.Minutes()
	if err != nil {
		return false
	}
	aEnd, err := a.EndTime.Minutes()
	if err != nil {
		return false
	}
	bStart, err := b.StartTime.Minutes()
	if err != nil {
		return false
	}
	bEnd, err := b.EndTime.Minutes()
	if err != nil {
		return false
	}

	// Строгое пересечение интервалов [start, end)
	if aStart < bEnd && bStart < aEnd {
		return true
	}

	// Буфер: конец одного слота плюс cooldown дотягивается до начала другого
	if cooldownMinutes > 0 {
		if aStart <= bEnd+cooldownMinutes && bStart <= aEnd+cooldownMinutes {
			return true
		}
	}

	return false
}

// ValidateAgainstApproved проверяет слоты новой заявки против слотов
// подтверждённых бронирований. Заявки в статусах pending/selected здесь
// сознательно не учитываются: конкурирующие заявки сосуществуют, пока хост
// или агент не выберет победителя.
func ValidateAgainstApproved(proposed []domain.TimeSlot, approved []*domain.Booking, cooldownMinutes int) Result {
	if cooldownMinutes < 0 {
		cooldownMinutes = domain.DefaultCooldownMinutes
	}

	for _, slot := range proposed {
		for _, booking := range approved {
			if !booking.IsApproved() {
				continue
			}
			for _, taken := range booking.TimeSlots {
				if SlotsConflict(slot, taken, cooldownMinutes) {
					conflicting := slot
					return Result{OK: false, ConflictingSlot: &conflicting}
				}
			}
		}
	}

	return Result{OK: true}
}

// ResolveOnApproval возвращает конкурирующие заявки, которые нужно
// авто-отклонить после подтверждения победителя. Cooldown здесь не
// применяется: решение "слот занят" не является планировочным буфером, поэтому
// проигравшей считается заявка хотя бы с одним слотом, строго
// пересекающимся со слотами победителя.
func ResolveOnApproval(approved *domain.Booking, competitors []*domain.Booking) []*domain.Booking {
	losers := make([]*domain.Booking, 0)

	for _, competitor := range competitors {
		if competitor.ID == approved.ID {
			continue
		}
		if !competitor.IsCompeting() {
			continue
		}
		if Overlaps(approved, competitor) {
			losers = append(losers, competitor)
		}
	}

	return losers
}

// Overlaps проверяет пересечение двух бронирований: по слотам (без
// cooldown-буфера), если оба используют слоты, иначе по диапазону дат
// check-in/check-out.
func Overlaps(a, b *domain.Booking) bool {
	if a.UsesTimeSlots() && b.UsesTimeSlots() {
		for _, slotA := range a.TimeSlots {
			for _, slotB := range b.TimeSlots {
				if SlotsConflict(slotA, slotB, 0) {
					return true
				}
			}
		}
		return false
	}

	// Полнодиапазонные бронирования сравниваем по датам
	if a.CheckInDate.IsZero() || b.CheckInDate.IsZero() {
		return false
	}
	return !a.CheckInDate.After(b.CheckOutDate) && !b.CheckInDate.After(a.CheckOutDate)
}

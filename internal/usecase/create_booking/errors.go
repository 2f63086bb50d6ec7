package create_booking

import (
	"errors"
	"fmt"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
)

var (
	// ErrPlaceNotFound возвращается, когда площадка не найдена
	ErrPlaceNotFound = errors.New("create_booking: place not found")

	// ErrInvalidDate возвращается при дате бронирования в прошлом
	ErrInvalidDate = errors.New("create_booking: invalid booking date")

	// ErrPlaceClosed возвращается, когда площадка закрыта в запрошенный день
	ErrPlaceClosed = errors.New("create_booking: place is closed on this date")

	// ErrDateBlocked возвращается, когда дата заблокирована хостом
	ErrDateBlocked = errors.New("create_booking: date is blocked by the host")

	// ErrOutsideWorkingHours возвращается, когда слот выходит за рабочие часы
	ErrOutsideWorkingHours = errors.New("create_booking: slot is outside working hours")

	// ErrSlotConflict возвращается, когда слоты пересекаются с подтверждённым
	// бронированием (с учётом cooldown-буфера площадки)
	ErrSlotConflict = errors.New("create_booking: time slot conflicts with an approved booking")

	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("create_booking: invalid input data")

	// ErrInternal возвращается при внутренних ошибках usecase
	ErrInternal = errors.New("create_booking: internal error")
)

// SlotConflictError несёт слот, вызвавший конфликт. Совместим с
// errors.Is(err, ErrSlotConflict).
type SlotConflictError struct {
	Slot domain.TimeSlot
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("%v: %s %s-%s", ErrSlotConflict, e.Slot.Date, e.Slot.StartTime, e.Slot.EndTime)
}

// Is делает ошибку различимой через errors.Is(err, ErrSlotConflict)
func (e *SlotConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}

package bookings

import (
	"errors"
	"fmt"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
)

var (
	// ErrBookingNotFound возвращается, когда бронирование не найдено
	ErrBookingNotFound = errors.New("booking not found")

	// ErrPlaceNotFound возвращается, когда площадка не найдена
	ErrPlaceNotFound = errors.New("place not found")

	// ErrAccessDenied возвращается, когда у пользователя нет прав на операцию
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidStateTransition возвращается при переходе вне таблицы переходов
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrRequiresPaymentCheck возвращается, когда перевод в approved запрошен
	// без явного подтверждения оплаты и без агентского override. Это не
	// жёсткая ошибка, а запрос подтверждения: вызывающий повторяет операцию
	// с выставленным флагом.
	ErrRequiresPaymentCheck = errors.New("payment confirmation required")

	// ErrSlotConflict возвращается, когда слоты пересекаются с подтверждённым
	// бронированием. Конкретный слот доступен через SlotConflictError.
	ErrSlotConflict = errors.New("time slot conflicts with an approved booking")

	// ErrNotApproved возвращается при попытке отметить выплату хосту по
	// неподтверждённому бронированию
	ErrNotApproved = errors.New("booking is not approved")

	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input data")

	// ErrInternal возвращается при внутренних ошибках сервиса
	ErrInternal = errors.New("bookings service: internal error")
)

// MsgRequiresPaymentCheck текст подсказки для ErrRequiresPaymentCheck
const MsgRequiresPaymentCheck = "payment is not confirmed for this booking; " +
	"re-send the request with paymentConfirmed=true or agentApproval=true"

// SlotConflictError несёт слот, вызвавший конфликт с подтверждённым
// бронированием. Совместим с errors.Is(err, ErrSlotConflict).
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

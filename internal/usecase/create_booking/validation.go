package create_booking

import (
	"fmt"
	"time"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	"github.com/m04kA/SMC-ReservationService/internal/integrations/placeservice"
	"github.com/m04kA/SMC-ReservationService/pkg/types"
)

// validateRequest валидирует входные данные запроса
func validateRequest(req *Request) error {
	if req.UserID <= 0 {
		return fmt.Errorf("%w: userID must be positive", ErrInvalidInput)
	}

	if req.PlaceID <= 0 {
		return fmt.Errorf("%w: placeID must be positive", ErrInvalidInput)
	}

	if len(req.TimeSlots) == 0 {
		// Полнодиапазонная заявка: обе даты обязательны
		if req.CheckInDate == nil || req.CheckOutDate == nil {
			return fmt.Errorf("%w: either timeSlots or checkInDate/checkOutDate are required", ErrInvalidInput)
		}
		if req.CheckOutDate.Before(*req.CheckInDate) {
			return fmt.Errorf("%w: checkOutDate is before checkInDate", ErrInvalidInput)
		}
		return nil
	}

	for i, s := range req.TimeSlots {
		slot := domain.TimeSlot{
			Date:      s.Date,
			StartTime: types.TimeString(s.StartTime),
			EndTime:   types.TimeString(s.EndTime),
		}
		if !slot.IsValid() {
			return fmt.Errorf("%w: timeSlots[%d] is malformed (%s %s-%s)",
				ErrInvalidInput, i, s.Date, s.StartTime, s.EndTime)
		}
	}

	return nil
}

// validateDates проверяет, что окно заявки не в прошлом: сравнивается дата
// выезда, заявка с завершившимся окном не создаётся
func validateDates(checkOut time.Time, now time.Time) error {
	dateOnly := time.Date(checkOut.Year(), checkOut.Month(), checkOut.Day(), 0, 0, 0, 0, checkOut.Location())
	nowOnly := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if dateOnly.Before(nowOnly) {
		return ErrInvalidDate
	}
	return nil
}

// validateSlotAgainstPlace проверяет слот против расписания площадки:
// заблокированные даты, заблокированные дни недели и рабочие часы
func validateSlotAgainstPlace(place *placeservice.Place, slot domain.TimeSlot) error {
	date, err := slot.DateValue(time.UTC)
	if err != nil {
		return fmt.Errorf("%w: unparsable slot date %s", ErrInvalidInput, slot.Date)
	}

	for _, blocked := range place.BlockedDates {
		if blocked == slot.Date {
			return fmt.Errorf("%w: %s", ErrDateBlocked, slot.Date)
		}
	}

	weekday := int(date.Weekday())
	for _, blocked := range place.BlockedWeekdays {
		if blocked == weekday {
			return fmt.Errorf("%w: weekday %d", ErrDateBlocked, weekday)
		}
	}

	schedule := workingHoursForDay(place, date)
	if !schedule.IsOpen {
		return fmt.Errorf("%w: %s", ErrPlaceClosed, slot.Date)
	}

	// Пустые open/close означают круглосуточную работу
	if schedule.OpenTime != nil {
		open := types.TimeString(*schedule.OpenTime)
		if slot.StartTime.IsBefore(open) {
			return fmt.Errorf("%w: %s starts before %s", ErrOutsideWorkingHours, slot.StartTime, open)
		}
	}
	if schedule.CloseTime != nil {
		closeTime := types.TimeString(*schedule.CloseTime)
		if closeTime.IsBefore(slot.EndTime) {
			return fmt.Errorf("%w: %s ends after %s", ErrOutsideWorkingHours, slot.EndTime, closeTime)
		}
	}

	return nil
}

// workingHoursForDay возвращает расписание площадки на день недели даты
func workingHoursForDay(place *placeservice.Place, date time.Time) placeservice.DaySchedule {
	switch date.Weekday() {
	case time.Monday:
		return place.WorkingHours.Monday
	case time.Tuesday:
		return place.WorkingHours.Tuesday
	case time.Wednesday:
		return place.WorkingHours.Wednesday
	case time.Thursday:
		return place.WorkingHours.Thursday
	case time.Friday:
		return place.WorkingHours.Friday
	case time.Saturday:
		return place.WorkingHours.Saturday
	case time.Sunday:
		return place.WorkingHours.Sunday
	default:
		return placeservice.DaySchedule{IsOpen: false}
	}
}

package create_booking

import (
	"time"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	"github.com/m04kA/SMC-ReservationService/pkg/types"
)

// SlotRequest один запрошенный слот
type SlotRequest struct {
	Date      string `json:"date"`      // "2025-07-01"
	StartTime string `json:"startTime"` // "10:00"
	EndTime   string `json:"endTime"`   // "12:00"
}

// Request модель запроса на создание бронирования.
// Заявка либо занимает дискретные слоты (TimeSlots), либо полный диапазон
// дат (CheckInDate/CheckOutDate): одно из двух обязательно.
type Request struct {
	UserID  int64 // ID клиента
	PlaceID int64 // ID площадки

	CheckInDate  *time.Time    // Дата заезда (для полнодиапазонных заявок)
	CheckOutDate *time.Time    // Дата выезда
	TimeSlots    []SlotRequest // Дискретные слоты (опционально)
}

// Response модель ответа с созданным бронированием
type Response struct {
	ID        int64  // ID созданного бронирования
	RequestID string // Публичный референс заявки
	UserID    int64  // ID клиента
	PlaceID   int64  // ID площадки

	CheckInDate  time.Time        // Дата заезда
	CheckOutDate time.Time        // Дата выезда
	TimeSlots    domain.TimeSlots // Занятые слоты

	Status       string  // Статус бронирования (всегда pending при создании)
	RefundPolicy *string // Политика возврата, снятая с площадки

	CreatedAt time.Time // Время создания
	UpdatedAt time.Time // Время обновления
}

// toDomainSlots конвертирует запрошенные слоты в domain модель
func toDomainSlots(slots []SlotRequest) domain.TimeSlots {
	result := make(domain.TimeSlots, len(slots))
	for i, s := range slots {
		result[i] = domain.TimeSlot{
			Date:      s.Date,
			StartTime: types.TimeString(s.StartTime),
			EndTime:   types.TimeString(s.EndTime),
		}
	}
	return result
}

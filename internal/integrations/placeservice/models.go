package placeservice

// DaySchedule расписание площадки на один день недели
type DaySchedule struct {
	IsOpen    bool    `json:"isOpen"`
	OpenTime  *string `json:"openTime,omitempty"`  // "09:00"
	CloseTime *string `json:"closeTime,omitempty"` // "18:00"
}

// WeekSchedule расписание площадки по дням недели
type WeekSchedule struct {
	Monday    DaySchedule `json:"monday"`
	Tuesday   DaySchedule `json:"tuesday"`
	Wednesday DaySchedule `json:"wednesday"`
	Thursday  DaySchedule `json:"thursday"`
	Friday    DaySchedule `json:"friday"`
	Saturday  DaySchedule `json:"saturday"`
	Sunday    DaySchedule `json:"sunday"`
}

// Place бронируемая площадка. Запись принадлежит PlaceService и доступна
// этому сервису только на чтение.
type Place struct {
	ID              int64        `json:"id"`
	OwnerID         int64        `json:"ownerId"` // хост площадки
	Name            string       `json:"name"`
	CooldownMinutes int          `json:"cooldownMinutes"` // буфер между бронированиями
	WorkingHours    WeekSchedule `json:"workingHours"`
	BlockedDates    []string     `json:"blockedDates,omitempty"`    // "2025-07-01"
	BlockedWeekdays []int        `json:"blockedWeekdays,omitempty"` // 0 = Sunday
	RefundPolicy    *string      `json:"refundPolicy,omitempty"`
}

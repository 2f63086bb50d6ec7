package models

import (
	"errors"
	"time"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
)

var (
	// ErrInvalidStatus возвращается при некорректном статусе
	ErrInvalidStatus = errors.New("invalid booking status")
)

// Request модели

// UpdateStatusRequest запрос на перевод бронирования в новый статус
type UpdateStatusRequest struct {
	UserID           int64  `json:"userId"`
	Status           string `json:"status"`
	PaymentConfirmed bool   `json:"paymentConfirmed,omitempty"` // клиентская оплата подтверждена
	AgentApproval    bool   `json:"agentApproval,omitempty"`    // агентский override платёжного гейта
}

// CancelBookingRequest запрос клиента на отмену собственного бронирования
type CancelBookingRequest struct {
	UserID int64 `json:"userId"`
}

// GetUserBookingsRequest запрос на получение бронирований пользователя
type GetUserBookingsRequest struct {
	UserID int64   `json:"userId"`
	Status *string `json:"status,omitempty"`
}

// GetPlaceBookingsRequest запрос на получение бронирований площадки
type GetPlaceBookingsRequest struct {
	UserID    int64      `json:"userId"`
	PlaceID   int64      `json:"placeId"`
	StartDate *time.Time `json:"startDate,omitempty"` // Начало периода (опционально)
	EndDate   *time.Time `json:"endDate,omitempty"`   // Конец периода (опционально)
	Status    *string    `json:"status,omitempty"`    // Фильтр по статусу (опционально)
}

// ToDomainFilter конвертирует request в domain фильтр
func (r *GetPlaceBookingsRequest) ToDomainFilter() (domain.PlaceBookingsFilter, error) {
	filter := domain.PlaceBookingsFilter{
		PlaceID:   r.PlaceID,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
	}

	if r.Status != nil {
		status, err := ToDomainBookingStatus(*r.Status)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}

	return filter, nil
}

// Response модели

// TimeSlotResponse слот в ответе API
type TimeSlotResponse struct {
	Date      string `json:"date"`      // "2025-07-01"
	StartTime string `json:"startTime"` // "10:00"
	EndTime   string `json:"endTime"`   // "12:00"
}

// BookingResponse ответ с данными бронирования
type BookingResponse struct {
	ID        int64  `json:"id"`
	RequestID string `json:"requestId"`
	UserID    int64  `json:"userId"`
	PlaceID   int64  `json:"placeId"`

	CheckInDate  string             `json:"checkInDate"`  // "2025-07-01"
	CheckOutDate string             `json:"checkOutDate"` // "2025-07-03"
	TimeSlots    []TimeSlotResponse `json:"timeSlots,omitempty"`

	Status string `json:"status"`

	PaidAt            *string `json:"paidAt,omitempty"` // ISO 8601
	PaidToHost        bool    `json:"paidToHost"`
	PaidToHostAt      *string `json:"paidToHostAt,omitempty"`
	PaymentProviderID *string `json:"paymentProviderId,omitempty"`

	SelectedAt  *string `json:"selectedAt,omitempty"`
	ApprovedAt  *string `json:"approvedAt,omitempty"`
	RejectedAt  *string `json:"rejectedAt,omitempty"`
	CancelledAt *string `json:"cancelledAt,omitempty"`

	RefundPolicy *string `json:"refundPolicy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BookingListResponse ответ со списком бронирований
type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
}

// Методы конвертации

// FromDomainBooking конвертирует domain модель в DTO
func FromDomainBooking(b *domain.Booking) *BookingResponse {
	if b == nil {
		return nil
	}

	resp := &BookingResponse{
		ID:                b.ID,
		RequestID:         b.RequestID,
		UserID:            b.UserID,
		PlaceID:           b.PlaceID,
		CheckInDate:       b.CheckInDate.Format(domain.DateFormat),
		CheckOutDate:      b.CheckOutDate.Format(domain.DateFormat),
		Status:            string(b.Status),
		PaidToHost:        b.PaidToHost,
		PaymentProviderID: b.PaymentProviderID,
		RefundPolicy:      b.RefundPolicy,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}

	if len(b.TimeSlots) > 0 {
		resp.TimeSlots = make([]TimeSlotResponse, len(b.TimeSlots))
		for i, slot := range b.TimeSlots {
			resp.TimeSlots[i] = TimeSlotResponse{
				Date:      slot.Date,
				StartTime: slot.StartTime.String(),
				EndTime:   slot.EndTime.String(),
			}
		}
	}

	resp.PaidAt = formatTime(b.PaidAt)
	resp.PaidToHostAt = formatTime(b.PaidToHostAt)
	resp.SelectedAt = formatTime(b.SelectedAt)
	resp.ApprovedAt = formatTime(b.ApprovedAt)
	resp.RejectedAt = formatTime(b.RejectedAt)
	resp.CancelledAt = formatTime(b.CancelledAt)

	return resp
}

// FromDomainBookingList конвертирует список domain моделей в DTO
func FromDomainBookingList(bookings []*domain.Booking) *BookingListResponse {
	if bookings == nil {
		return &BookingListResponse{
			Bookings: []BookingResponse{},
		}
	}

	resp := &BookingListResponse{
		Bookings: make([]BookingResponse, len(bookings)),
	}

	for i, booking := range bookings {
		if bookingResp := FromDomainBooking(booking); bookingResp != nil {
			resp.Bookings[i] = *bookingResp
		}
	}

	return resp
}

// ToDomainBookingStatus конвертирует строку в domain.BookingStatus с валидацией
func ToDomainBookingStatus(status string) (domain.BookingStatus, error) {
	s := domain.BookingStatus(status)
	if !domain.ValidStatus(s) {
		return "", ErrInvalidStatus
	}
	return s, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}

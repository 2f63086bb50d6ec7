package create_booking

import (
	"time"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	createBooking "github.com/m04kA/SMC-ReservationService/internal/usecase/create_booking"
)

// TimeSlotRequest слот в HTTP-запросе
type TimeSlotRequest struct {
	Date      string `json:"date"`      // "2025-07-01"
	StartTime string `json:"startTime"` // "10:00"
	EndTime   string `json:"endTime"`   // "12:00"
}

// CreateBookingRequest HTTP request model
type CreateBookingRequest struct {
	PlaceID      int64             `json:"placeId"`
	CheckInDate  *string           `json:"checkInDate,omitempty"`  // "2025-07-01"
	CheckOutDate *string           `json:"checkOutDate,omitempty"` // "2025-07-03"
	TimeSlots    []TimeSlotRequest `json:"timeSlots,omitempty"`
}

// TimeSlotResponse слот в HTTP-ответе
type TimeSlotResponse struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// BookingResponse HTTP response model
type BookingResponse struct {
	ID           int64              `json:"id"`
	RequestID    string             `json:"requestId"`
	UserID       int64              `json:"userId"`
	PlaceID      int64              `json:"placeId"`
	CheckInDate  string             `json:"checkInDate"`
	CheckOutDate string             `json:"checkOutDate"`
	TimeSlots    []TimeSlotResponse `json:"timeSlots,omitempty"`
	Status       string             `json:"status"`
	RefundPolicy *string            `json:"refundPolicy,omitempty"`
	CreatedAt    string             `json:"createdAt"`
	UpdatedAt    string             `json:"updatedAt"`
}

// ToUseCaseRequest конвертирует HTTP запрос в модель use case
func (r *CreateBookingRequest) ToUseCaseRequest(userID int64) (*createBooking.Request, error) {
	req := &createBooking.Request{
		UserID:  userID,
		PlaceID: r.PlaceID,
	}

	if r.CheckInDate != nil {
		checkIn, err := time.Parse(domain.DateFormat, *r.CheckInDate)
		if err != nil {
			return nil, err
		}
		req.CheckInDate = &checkIn
	}
	if r.CheckOutDate != nil {
		checkOut, err := time.Parse(domain.DateFormat, *r.CheckOutDate)
		if err != nil {
			return nil, err
		}
		req.CheckOutDate = &checkOut
	}

	for _, slot := range r.TimeSlots {
		req.TimeSlots = append(req.TimeSlots, createBooking.SlotRequest{
			Date:      slot.Date,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
		})
	}

	return req, nil
}

// FromUseCaseResponse конвертирует ответ use case в HTTP response
func FromUseCaseResponse(resp *createBooking.Response) *BookingResponse {
	result := &BookingResponse{
		ID:           resp.ID,
		RequestID:    resp.RequestID,
		UserID:       resp.UserID,
		PlaceID:      resp.PlaceID,
		CheckInDate:  resp.CheckInDate.Format(domain.DateFormat),
		CheckOutDate: resp.CheckOutDate.Format(domain.DateFormat),
		Status:       resp.Status,
		RefundPolicy: resp.RefundPolicy,
		CreatedAt:    resp.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    resp.UpdatedAt.Format(time.RFC3339),
	}

	for _, slot := range resp.TimeSlots {
		result.TimeSlots = append(result.TimeSlots, TimeSlotResponse{
			Date:      slot.Date,
			StartTime: slot.StartTime.String(),
			EndTime:   slot.EndTime.String(),
		})
	}

	return result
}

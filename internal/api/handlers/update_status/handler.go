package update_status

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/m04kA/SMC-ReservationService/internal/api/handlers"
	"github.com/m04kA/SMC-ReservationService/internal/api/middleware"
	bookingsService "github.com/m04kA/SMC-ReservationService/internal/service/bookings"
	"github.com/m04kA/SMC-ReservationService/internal/service/bookings/models"
)

const (
	msgInvalidRequestBody = "некорректное тело запроса"
	msgInvalidBookingID   = "некорректный ID бронирования"
	msgBookingNotFound    = "бронирование не найдено"
	msgPlaceNotFound      = "площадка не найдена"
	msgAccessDenied       = "недостаточно прав для изменения статуса"
	msgInvalidTransition  = "переход в указанный статус невозможен"
	msgSlotConflict       = "слоты пересекаются с подтверждённым бронированием"
	msgInvalidInput       = "некорректные данные запроса"
	msgUnauthorized       = "пользователь не аутентифицирован"
)

type Handler struct {
	service BookingService
	logger  Logger
}

func NewHandler(service BookingService, logger Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// statusUpdateBody тело запроса на смену статуса
type statusUpdateBody struct {
	Status           string `json:"status"`
	PaymentConfirmed bool   `json:"paymentConfirmed,omitempty"`
	AgentApproval    bool   `json:"agentApproval,omitempty"`
}

// Handle PATCH /api/v1/bookings/{bookingId}/status
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		handlers.RespondError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	bookingID, err := strconv.ParseInt(mux.Vars(r)["bookingId"], 10, 64)
	if err != nil || bookingID <= 0 {
		handlers.RespondBadRequest(w, msgInvalidBookingID)
		return
	}

	var body statusUpdateBody
	if err := handlers.DecodeJSON(r, &body); err != nil {
		h.logger.Warn("PATCH /bookings/%d/status - Invalid request body: %v", bookingID, err)
		handlers.RespondBadRequest(w, msgInvalidRequestBody)
		return
	}

	result, err := h.service.SetStatus(r.Context(), bookingID, &models.UpdateStatusRequest{
		UserID:           userID,
		Status:           body.Status,
		PaymentConfirmed: body.PaymentConfirmed,
		AgentApproval:    body.AgentApproval,
	})
	if err != nil {
		switch {
		case errors.Is(err, bookingsService.ErrBookingNotFound):
			h.logger.Warn("PATCH /bookings/%d/status - Booking not found", bookingID)
			handlers.RespondNotFound(w, msgBookingNotFound)

		case errors.Is(err, bookingsService.ErrPlaceNotFound):
			h.logger.Warn("PATCH /bookings/%d/status - Place not found", bookingID)
			handlers.RespondNotFound(w, msgPlaceNotFound)

		case errors.Is(err, bookingsService.ErrAccessDenied):
			h.logger.Warn("PATCH /bookings/%d/status - Access denied: user_id=%d", bookingID, userID)
			handlers.RespondForbidden(w, msgAccessDenied)

		case errors.Is(err, bookingsService.ErrRequiresPaymentCheck):
			// Не отказ, а запрос подтверждения: клиент повторяет запрос
			// с paymentConfirmed=true или agentApproval=true
			h.logger.Info("PATCH /bookings/%d/status - Payment check required: user_id=%d", bookingID, userID)
			handlers.RespondError(w, http.StatusUnprocessableEntity, bookingsService.MsgRequiresPaymentCheck)

		case errors.Is(err, bookingsService.ErrSlotConflict):
			h.logger.Warn("PATCH /bookings/%d/status - Slot conflict: user_id=%d", bookingID, userID)
			respondSlotConflict(w, err)

		case errors.Is(err, bookingsService.ErrInvalidStateTransition):
			h.logger.Warn("PATCH /bookings/%d/status - Invalid transition: %v", bookingID, err)
			handlers.RespondError(w, http.StatusConflict, msgInvalidTransition)

		case errors.Is(err, bookingsService.ErrInvalidInput):
			h.logger.Warn("PATCH /bookings/%d/status - Invalid input: %v", bookingID, err)
			handlers.RespondBadRequest(w, msgInvalidInput)

		default:
			h.logger.Error("PATCH /bookings/%d/status - Failed: user_id=%d, error=%v", bookingID, userID, err)
			handlers.RespondInternalError(w)
		}
		return
	}

	h.logger.Info("PATCH /bookings/%d/status - Status updated to %s by user_id=%d",
		bookingID, result.Status, userID)
	handlers.RespondJSON(w, http.StatusOK, result)
}

// respondSlotConflict пишет 409 с конфликтующим слотом в теле
func respondSlotConflict(w http.ResponseWriter, err error) {
	var conflictErr *bookingsService.SlotConflictError
	if errors.As(err, &conflictErr) {
		handlers.RespondJSON(w, http.StatusConflict, map[string]interface{}{
			"error": msgSlotConflict,
			"conflictingSlot": models.TimeSlotResponse{
				Date:      conflictErr.Slot.Date,
				StartTime: conflictErr.Slot.StartTime.String(),
				EndTime:   conflictErr.Slot.EndTime.String(),
			},
		})
		return
	}
	handlers.RespondError(w, http.StatusConflict, msgSlotConflict)
}

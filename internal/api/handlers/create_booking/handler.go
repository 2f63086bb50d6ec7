package create_booking

import (
	"errors"
	"net/http"

	"github.com/m04kA/SMC-ReservationService/internal/api/handlers"
	"github.com/m04kA/SMC-ReservationService/internal/api/middleware"
	createBooking "github.com/m04kA/SMC-ReservationService/internal/usecase/create_booking"
)

const (
	msgInvalidRequestBody = "некорректное тело запроса"
	msgInvalidDate        = "некорректный формат даты, ожидается YYYY-MM-DD"
	msgPlaceNotFound      = "площадка не найдена"
	msgSlotConflict       = "слоты пересекаются с подтверждённым бронированием"
	msgPlaceClosed        = "площадка закрыта в выбранную дату"
	msgDateBlocked        = "выбранная дата заблокирована хостом"
	msgOutsideHours       = "слот выходит за рабочие часы площадки"
	msgInvalidBookingDate = "некорректная дата бронирования"
	msgInvalidInput       = "некорректные данные заявки"
	msgUnauthorized       = "пользователь не аутентифицирован"
)

type Handler struct {
	useCase CreateBookingUseCase
	logger  Logger
}

func NewHandler(useCase CreateBookingUseCase, logger Logger) *Handler {
	return &Handler{
		useCase: useCase,
		logger:  logger,
	}
}

// Handle POST /api/v1/bookings
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		handlers.RespondError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req CreateBookingRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("POST /bookings - Invalid request body: %v", err)
		handlers.RespondBadRequest(w, msgInvalidRequestBody)
		return
	}

	useCaseReq, err := req.ToUseCaseRequest(userID)
	if err != nil {
		h.logger.Warn("POST /bookings - Failed to parse request: %v", err)
		handlers.RespondBadRequest(w, msgInvalidDate)
		return
	}

	result, err := h.useCase.Execute(r.Context(), useCaseReq)
	if err != nil {
		switch {
		case errors.Is(err, createBooking.ErrSlotConflict):
			h.logger.Warn("POST /bookings - Slot conflict: user_id=%d, place_id=%d", userID, req.PlaceID)
			respondSlotConflict(w, err)

		case errors.Is(err, createBooking.ErrPlaceNotFound):
			h.logger.Warn("POST /bookings - Place not found: place_id=%d", req.PlaceID)
			handlers.RespondNotFound(w, msgPlaceNotFound)

		case errors.Is(err, createBooking.ErrPlaceClosed):
			h.logger.Warn("POST /bookings - Place closed: user_id=%d, place_id=%d", userID, req.PlaceID)
			handlers.RespondBadRequest(w, msgPlaceClosed)

		case errors.Is(err, createBooking.ErrDateBlocked):
			h.logger.Warn("POST /bookings - Date blocked: user_id=%d, place_id=%d", userID, req.PlaceID)
			handlers.RespondBadRequest(w, msgDateBlocked)

		case errors.Is(err, createBooking.ErrOutsideWorkingHours):
			h.logger.Warn("POST /bookings - Outside working hours: user_id=%d, place_id=%d", userID, req.PlaceID)
			handlers.RespondBadRequest(w, msgOutsideHours)

		case errors.Is(err, createBooking.ErrInvalidDate):
			h.logger.Warn("POST /bookings - Invalid booking date: user_id=%d, place_id=%d", userID, req.PlaceID)
			handlers.RespondBadRequest(w, msgInvalidBookingDate)

		case errors.Is(err, createBooking.ErrInvalidInput):
			h.logger.Warn("POST /bookings - Invalid input: user_id=%d, place_id=%d: %v", userID, req.PlaceID, err)
			handlers.RespondBadRequest(w, msgInvalidInput)

		default:
			h.logger.Error("POST /bookings - Failed to create booking: user_id=%d, place_id=%d, error=%v",
				userID, req.PlaceID, err)
			handlers.RespondInternalError(w)
		}
		return
	}

	h.logger.Info("POST /bookings - Booking created successfully: booking_id=%d, user_id=%d, place_id=%d",
		result.ID, userID, req.PlaceID)
	handlers.RespondJSON(w, http.StatusCreated, FromUseCaseResponse(result))
}

// respondSlotConflict пишет 409 с конфликтующим слотом в теле
func respondSlotConflict(w http.ResponseWriter, err error) {
	var conflictErr *createBooking.SlotConflictError
	if errors.As(err, &conflictErr) {
		handlers.RespondJSON(w, http.StatusConflict, map[string]interface{}{
			"error": msgSlotConflict,
			"conflictingSlot": TimeSlotResponse{
				Date:      conflictErr.Slot.Date,
				StartTime: conflictErr.Slot.StartTime.String(),
				EndTime:   conflictErr.Slot.EndTime.String(),
			},
		})
		return
	}
	handlers.RespondError(w, http.StatusConflict, msgSlotConflict)
}

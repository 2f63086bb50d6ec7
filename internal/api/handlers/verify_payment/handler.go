package verify_payment

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/m04kA/SMC-ReservationService/internal/api/handlers"
	"github.com/m04kA/SMC-ReservationService/internal/service/payverify"
)

const (
	msgInvalidBookingID = "некорректный ID бронирования"
	msgBookingNotFound  = "бронирование не найдено"
	msgProviderAuth     = "ошибка авторизации у платёжного провайдера"
)

// watchTimeout ограничивает фоновое наблюдение сверх бюджета попыток
const watchTimeout = 15 * time.Minute

type Handler struct {
	verifier PaymentVerifier
	logger   Logger
}

func NewHandler(verifier PaymentVerifier, logger Logger) *Handler {
	return &Handler{
		verifier: verifier,
		logger:   logger,
	}
}

// verifyResponse результат единичной сверки
type verifyResponse struct {
	BookingID int64  `json:"bookingId"`
	Outcome   string `json:"outcome"`
	Watching  bool   `json:"watching"` // запущено ли фоновое наблюдение
}

// Handle POST /api/v1/bookings/{bookingId}/verify-payment
//
// Выполняет немедленную сверку с провайдером; если платёж ещё в ожидании,
// запускает фоновое наблюдение с адаптивным расписанием и сразу отвечает.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	bookingID, err := strconv.ParseInt(mux.Vars(r)["bookingId"], 10, 64)
	if err != nil || bookingID <= 0 {
		handlers.RespondBadRequest(w, msgInvalidBookingID)
		return
	}

	outcome, err := h.verifier.Check(r.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, payverify.ErrBookingNotFound):
			h.logger.Warn("POST /bookings/%d/verify-payment - Booking not found", bookingID)
			handlers.RespondNotFound(w, msgBookingNotFound)

		case errors.Is(err, payverify.ErrProviderAuth):
			h.logger.Error("POST /bookings/%d/verify-payment - Provider auth failed", bookingID)
			handlers.RespondError(w, http.StatusBadGateway, msgProviderAuth)

		default:
			h.logger.Error("POST /bookings/%d/verify-payment - Failed: %v", bookingID, err)
			handlers.RespondInternalError(w)
		}
		return
	}

	watching := false
	if outcome == payverify.OutcomeTimeout {
		// Платёж в ожидании: наблюдаем в фоне, не держим HTTP-запрос
		watching = true
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), watchTimeout)
			defer cancel()
			if result, err := h.verifier.Watch(ctx, bookingID); err != nil {
				h.logger.Error("verify-payment watch: booking id=%d failed: %v", bookingID, err)
			} else {
				h.logger.Info("verify-payment watch: booking id=%d finished with outcome=%s", bookingID, result)
			}
		}()
	}

	h.logger.Info("POST /bookings/%d/verify-payment - Outcome=%s, watching=%t", bookingID, outcome, watching)
	handlers.RespondJSON(w, http.StatusOK, verifyResponse{
		BookingID: bookingID,
		Outcome:   string(outcome),
		Watching:  watching,
	})
}

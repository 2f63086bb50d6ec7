// Package payme_webhook принимает уведомления платёжного провайдера Payme.
//
// Webhook и поллер Click сходятся в одном идемпотентном MarkPaid, поэтому
// дубликаты уведомлений и гонка webhook-против-поллера безопасны: применяется
// только первая запись об оплате.
package payme_webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m04kA/SMC-ReservationService/internal/api/handlers"
	"github.com/m04kA/SMC-ReservationService/internal/domain"
	bookingRepo "github.com/m04kA/SMC-ReservationService/internal/infra/storage/booking"
	bookingsService "github.com/m04kA/SMC-ReservationService/internal/service/bookings"
)

// ProviderPayme имя провайдера в аудит-записях webhook'а
const ProviderPayme = "payme"

// Коды состояния транзакции Payme
const (
	StatePending       = 1
	StatePaid          = 2
	StateCancelled     = -1
	StateCancelledPaid = -2 // отмена после оплаты (возврат)
)

const (
	msgInvalidRequestBody = "некорректное тело запроса"
	msgUnknownReference   = "заявка по указанному референсу не найдена"
)

type Handler struct {
	bookingRepo BookingRepository
	paymentRepo PaymentRepository
	applier     PaymentApplier
	logger      Logger
}

func NewHandler(bookingRepo BookingRepository, paymentRepo PaymentRepository, applier PaymentApplier, logger Logger) *Handler {
	return &Handler{
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		applier:     applier,
		logger:      logger,
	}
}

// webhookRequest уведомление Payme о смене состояния транзакции
type webhookRequest struct {
	TransactionID string  `json:"transactionId"`
	RequestID     string  `json:"requestId"` // merchant-референс бронирования
	State         int     `json:"state"`
	Amount        float64 `json:"amount"`
}

// webhookResponse подтверждение приёма уведомления
type webhookResponse struct {
	Accepted bool   `json:"accepted"`
	Applied  bool   `json:"applied"` // изменило ли уведомление состояние заявки
	State    string `json:"state"`
}

// Handle POST /webhooks/payme
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("POST /webhooks/payme - Invalid request body: %v", err)
		handlers.RespondBadRequest(w, msgInvalidRequestBody)
		return
	}

	if req.TransactionID == "" || req.RequestID == "" {
		h.logger.Warn("POST /webhooks/payme - Missing transactionId or requestId")
		handlers.RespondBadRequest(w, msgInvalidRequestBody)
		return
	}

	booking, err := h.bookingRepo.GetByRequestID(r.Context(), req.RequestID)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrBookingNotFound) {
			h.logger.Warn("POST /webhooks/payme - Unknown reference: request_id=%s", req.RequestID)
			handlers.RespondNotFound(w, msgUnknownReference)
			return
		}
		h.logger.Error("POST /webhooks/payme - Booking lookup failed: request_id=%s, error=%v", req.RequestID, err)
		handlers.RespondInternalError(w)
		return
	}

	state := normalizeState(req.State)

	// Аудит-запись провайдера обновляется идемпотентно при любом состоянии
	record := &domain.PaymentRecord{
		BookingID:     booking.ID,
		Provider:      ProviderPayme,
		ProviderTxID:  req.TransactionID,
		State:         state,
		ProviderState: req.State,
		Amount:        req.Amount,
	}
	if err := h.paymentRepo.Upsert(r.Context(), record); err != nil {
		h.logger.Error("POST /webhooks/payme - Failed to upsert payment record: booking_id=%d, error=%v",
			booking.ID, err)
		handlers.RespondInternalError(w)
		return
	}

	applied := false
	if state == domain.PaymentStatePaid {
		raw, _ := json.Marshal(req)
		applied, err = h.applier.MarkPaid(r.Context(), booking.ID, req.TransactionID, string(raw))
		if err != nil {
			if errors.Is(err, bookingsService.ErrInvalidStateTransition) {
				// Поздний сигнал по терминальной заявке: подтверждаем приём,
				// чтобы провайдер не повторял доставку, но ничего не применяем
				h.logger.Warn("POST /webhooks/payme - Late payment refused: booking_id=%d, status is terminal", booking.ID)
				handlers.RespondJSON(w, http.StatusOK, webhookResponse{
					Accepted: true,
					Applied:  false,
					State:    string(state),
				})
				return
			}
			h.logger.Error("POST /webhooks/payme - Failed to mark paid: booking_id=%d, error=%v", booking.ID, err)
			handlers.RespondInternalError(w)
			return
		}
	}

	h.logger.Info("POST /webhooks/payme - Processed: booking_id=%d, tx=%s, state=%d, applied=%t",
		booking.ID, req.TransactionID, req.State, applied)
	handlers.RespondJSON(w, http.StatusOK, webhookResponse{
		Accepted: true,
		Applied:  applied,
		State:    string(state),
	})
}

// normalizeState переводит код Payme в провайдер-независимое состояние
func normalizeState(state int) domain.PaymentState {
	switch state {
	case StatePaid:
		return domain.PaymentStatePaid
	case StateCancelled, StateCancelledPaid:
		return domain.PaymentStateCancelled
	default:
		return domain.PaymentStatePending
	}
}

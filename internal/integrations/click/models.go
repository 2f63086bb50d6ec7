package click

// Статусы платежа Click
const (
	PaymentStatusCreated    = 0
	PaymentStatusProcessing = 1
	PaymentStatusPaid       = 2
	PaymentStatusCancelled  = 3
	PaymentStatusFailed     = 4
	PaymentStatusExpired    = 5
	PaymentStatusDeleted    = -99
)

// Коды ошибок merchant API
const (
	errorCodeOK          = 0
	errorCodeNotFound    = -16 // платёж по референсу ещё не создан
	errorCodeAuthFailure = -1
)

// statusResponse ответ merchant API на запрос статуса платежа
type statusResponse struct {
	ErrorCode     int    `json:"error_code"`
	ErrorNote     string `json:"error_note"`
	PaymentID     int64  `json:"payment_id"`
	PaymentStatus int    `json:"payment_status"`
}

// StatusResult нормализованный статус платежа. Провайдер-специфичные коды
// не покидают этот пакет.
type StatusResult struct {
	IsPaid      bool
	IsPending   bool
	IsCancelled bool
	IsUnknown   bool // платёж по референсу не найден у провайдера

	PaymentID     int64 // идентификатор транзакции провайдера (если найдена)
	PaymentStatus int   // сырой код провайдера, сохраняется для аудита
}

// normalizeStatus переводит код Click в нормализованный результат
func normalizeStatus(status int, paymentID int64) StatusResult {
	result := StatusResult{PaymentID: paymentID, PaymentStatus: status}

	switch status {
	case PaymentStatusPaid:
		result.IsPaid = true
	case PaymentStatusCreated, PaymentStatusProcessing:
		result.IsPending = true
	case PaymentStatusCancelled, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusDeleted:
		result.IsCancelled = true
	default:
		result.IsUnknown = true
	}

	return result
}

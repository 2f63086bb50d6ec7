package click

import "errors"

var (
	// ErrGatewayUnavailable возвращается при транзиентных сбоях провайдера
	// (сеть, rate limiting, 5xx). Поллер такие ошибки не считает фатальными:
	// попытка расходуется, интервал увеличивается.
	ErrGatewayUnavailable = errors.New("click client: gateway unavailable")

	// ErrAuthFailed возвращается при ошибке аутентификации у провайдера.
	// Неретраябельная ошибка: опрос останавливается.
	ErrAuthFailed = errors.New("click client: authentication failed")

	// ErrInvalidResponse возвращается при некорректном ответе провайдера
	ErrInvalidResponse = errors.New("click client: invalid response")
)

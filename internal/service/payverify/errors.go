package payverify

import "errors"

var (
	// ErrBookingNotFound возвращается, когда бронирование не найдено
	ErrBookingNotFound = errors.New("booking not found")

	// ErrProviderAuth возвращается при невосстановимой ошибке авторизации
	// у платёжного провайдера. Повторы бессмысленны, опрос прекращается.
	ErrProviderAuth = errors.New("payment provider authorization failed")

	// ErrInternal возвращается при внутренних ошибках сервиса
	ErrInternal = errors.New("payverify service: internal error")
)

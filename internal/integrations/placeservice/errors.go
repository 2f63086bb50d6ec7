package placeservice

import "errors"

var (
	// ErrPlaceNotFound возвращается, когда площадка не найдена
	ErrPlaceNotFound = errors.New("place not found")

	// ErrInternal возвращается при внутренних ошибках клиента
	ErrInternal = errors.New("placeservice client: internal error")

	// ErrInvalidResponse возвращается при некорректном ответе от сервиса
	ErrInvalidResponse = errors.New("placeservice client: invalid response")
)

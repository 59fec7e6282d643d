package errs

import (
	"errors"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")

	ErrNotConnected = errors.New("realtime connection is not established")
	ErrUpstream     = errors.New("upstream error")
	ErrUnavailable  = errors.New("service unavailable")

	// ErrSessionMismatch — сигналинг ссылается на неизвестный sessionId.
	// Ожидаемо после reconnect/дубликатов: логируем и игнорируем, не эскалируем.
	ErrSessionMismatch = errors.New("unknown session id")
)

func ToHTTP(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package apperrors

import (
	"errors"
	"net/http"
)

var statusBySentinel = map[error]int{
	ErrValidation: http.StatusBadRequest,
	ErrNotFound:   http.StatusNotFound,
	ErrConflict:   http.StatusConflict,
	ErrForbidden:  http.StatusForbidden,
	ErrInternal:   http.StatusInternalServerError,

	ErrUpstream:        http.StatusBadGateway,
	ErrUnavailable:     http.StatusServiceUnavailable,
	ErrUpstreamTimeout: http.StatusGatewayTimeout,
}

// HTTPStatus maps err to a status code. The outermost *Error decides, so an
// internal failure wrapping a not-found cause still reports 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		if status, ok := statusBySentinel[appErr.Sentinel]; ok {
			return status
		}
	}
	for sentinel, status := range statusBySentinel {
		if errors.Is(err, sentinel) {
			return status
		}
	}
	return http.StatusInternalServerError
}

package errutil

import "net/http"

type CoreStatus string

const (
	StatusNotFound     CoreStatus = "NOT_FOUND"
	StatusForbidden    CoreStatus = "FORBIDDEN"
	StatusInvalidState CoreStatus = "INVALID_STATE"
	StatusConflict     CoreStatus = "CONFLICT"
	StatusBadRequest   CoreStatus = "BAD_REQUEST"
	StatusTimeout      CoreStatus = "TIMEOUT"
	StatusBadGateway   CoreStatus = "BAD_GATEWAY"
	StatusInternal     CoreStatus = "INTERNAL"
	StatusUnknown      CoreStatus = "UNKNOWN"
)

// HTTPStatus maps the status to the closest HTTP status code.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusNotFound:
		return http.StatusNotFound
	case StatusForbidden:
		return http.StatusForbidden
	case StatusInvalidState:
		return http.StatusUnprocessableEntity
	case StatusConflict:
		return http.StatusConflict
	case StatusBadRequest:
		return http.StatusBadRequest
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

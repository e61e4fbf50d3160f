package httpapi

import (
	"context"
	"errors"
	"net/http"

	apperrors "uvfleet/internal/platform/errors"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrInvalidDuration),
		errors.Is(err, apperrors.ErrPastDatetime):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrUnknownDevice),
		errors.Is(err, apperrors.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrSessionActive),
		errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrDeviceOffline),
		errors.Is(err, apperrors.ErrNotConnected),
		errors.Is(err, apperrors.ErrFleetFull):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrConnectFailed),
		errors.Is(err, apperrors.ErrCommandFailed):
		return http.StatusBadGateway
	case errors.Is(err, apperrors.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

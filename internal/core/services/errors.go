package services

import (
	"errors"
	"net/http"
	"time"

	"murmur/internal/core/domain"
	apperrors "murmur/pkg/errors"
)

// Every 401 carries the same message so callers learn nothing about the cause.
func errUnauthenticated(cause error) *apperrors.AppError {
	if cause == nil {
		cause = domain.ErrUnauthenticated
	} else if !errors.Is(cause, domain.ErrUnauthenticated) {
		cause = errors.Join(domain.ErrUnauthenticated, cause)
	}
	return apperrors.WrapError(cause, apperrors.ErrCodeUnauthorized, "unauthorized", http.StatusUnauthorized)
}

func errForbidden(message string) *apperrors.AppError {
	return apperrors.WrapError(domain.ErrForbidden, apperrors.ErrCodeForbidden, message, http.StatusForbidden)
}

func errInvalid(cause error, message string) *apperrors.AppError {
	return apperrors.WrapError(cause, apperrors.ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func errNotFound(cause error) *apperrors.AppError {
	return apperrors.WrapError(cause, apperrors.ErrCodeNotFound, cause.Error(), http.StatusNotFound)
}

// storeError maps a repository failure. Known domain errors pass through with
// their own status; anything else is a 500 unless the store reported itself down.
func storeError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}
	switch {
	case errors.Is(err, domain.ErrMessageNotFound), errors.Is(err, domain.ErrUserNotFound):
		return errNotFound(err)
	case errors.Is(err, domain.ErrEmailTaken):
		return apperrors.WrapError(err, apperrors.ErrCodeConflict, "email already registered", http.StatusConflict)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "store unavailable", http.StatusServiceUnavailable)
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "storage error", http.StatusInternalServerError)
	}
}

type nopMetrics struct{}

func (nopMetrics) MessageCommitted(string)                    {}
func (nopMetrics) ObserveStoreLatency(string, time.Duration) {}
func (nopMetrics) SetOnlineUsers(int)                         {}
func (nopMetrics) ConnectionOpened()                          {}
func (nopMetrics) ConnectionClosed()                          {}
func (nopMetrics) DeliveryDropped()                           {}

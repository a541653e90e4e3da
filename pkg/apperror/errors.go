package apperror

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal server error")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource already exists")

	// Comment validation
	ErrEmptyContent          = errors.New("comment must have content or at least one attachment")
	ErrUnsupportedAttachment = errors.New("unsupported attachment type")
	ErrAttachmentTooLarge    = errors.New("attachment exceeds the 5 MB limit")
	ErrNotRootComment        = errors.New("status can only be changed on a root comment")

	// ErrStoreUnavailable marks transient persistence failures. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDeliveryFailed marks a failed realtime push. It is never fatal.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// AppError is a custom error type that can hold an HTTP status code
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidation reports whether err is a synchronous validation failure that
// must not be retried automatically.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrUnsupportedAttachment) ||
		errors.Is(err, ErrAttachmentTooLarge) ||
		errors.Is(err, ErrNotRootComment) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidInput)
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// MapErrorToStatus maps common errors to HTTP status codes
func MapErrorToStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrEmptyContent) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrAttachmentTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, ErrUnsupportedAttachment) {
		return http.StatusUnsupportedMediaType
	}
	if errors.Is(err, ErrNotRootComment) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	// Default to internal server error
	return http.StatusInternalServerError
}

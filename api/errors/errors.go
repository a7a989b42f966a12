package errors

import (
	goerrors "errors"
	"net/http"
)

// AppError carries the HTTP mapping for a failure alongside its message. The
// wire shape is always {error, message}.
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

func New(statusCode int, code, message string) *AppError {
	return &AppError{StatusCode: statusCode, Code: code, Message: message}
}

func Validation(message string) *AppError {
	return New(http.StatusBadRequest, "validation_error", message)
}

func Unauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, "unauthorized", message)
}

func Forbidden(message string) *AppError {
	return New(http.StatusForbidden, "forbidden", message)
}

func NotFound(message string) *AppError {
	return New(http.StatusNotFound, "not_found", message)
}

func QuotaExceeded(message string) *AppError {
	return New(http.StatusTooManyRequests, "quota_exceeded", message)
}

func Internal(message string) *AppError {
	return New(http.StatusInternalServerError, "internal_error", message)
}

// From maps any error onto an AppError, defaulting to a 500 so backend faults
// never surface with the wrong status.
func From(err error) *AppError {
	var appErr *AppError
	if goerrors.As(err, &appErr) {
		return appErr
	}
	return Internal(err.Error())
}

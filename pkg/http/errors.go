package http

import (
	"fmt"
	"net/http"
)

// AppError is a failure the API reports inside the response envelope.
// Err is logged by callers but never serialized.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError creates an error reported with the given HTTP status.
func NewAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// WithError attaches the cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", message, http.StatusBadRequest)
}

func RateLimitedError(message string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", message, http.StatusTooManyRequests)
}

// UpstreamError reports a failed dependency, such as the completion
// service, as 502 under a caller-chosen code.
func UpstreamError(code, message string) *AppError {
	return NewAppError(code, message, http.StatusBadGateway)
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", message, http.StatusInternalServerError)
}

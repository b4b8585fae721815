// Package errors defines the sentinel errors shared across the expansion
// service and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSyntax marks a malformed query. The request fails as a whole.
	ErrSyntax = errors.New("query syntax error")
	// ErrConfig marks an invalid module set or parameter. Fatal at startup.
	ErrConfig = errors.New("configuration error")
	// ErrLoad marks a lexicon or model that could not be read. Fatal at startup.
	ErrLoad = errors.New("load error")
	// ErrBackend marks a single module failing for a single term.
	ErrBackend = errors.New("backend error")

	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Configf wraps ErrConfig with a formatted message.
func Configf(format string, args ...any) *AppError {
	return Newf(ErrConfig, http.StatusInternalServerError, format, args...)
}

// Loadf wraps ErrLoad with a formatted message.
func Loadf(format string, args ...any) *AppError {
	return Newf(ErrLoad, http.StatusInternalServerError, format, args...)
}

// Backendf wraps ErrBackend with a formatted message.
func Backendf(format string, args ...any) *AppError {
	return Newf(ErrBackend, http.StatusBadGateway, format, args...)
}

// IsStartupFatal reports whether err must abort process startup.
func IsStartupFatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrLoad)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrSyntax), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

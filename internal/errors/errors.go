// Package errors defines the service error taxonomy and its HTTP status mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable error code returned to clients.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUpstream     ErrorCode = "UPSTREAM_ERROR"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// ErrNotFound is wrapped by storage implementations when a record is missing.
var ErrNotFound = stderrors.New("not found")

// ServiceError is an error that knows how it should be rendered over HTTP.
type ServiceError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails returns a copy of e with an extra detail entry.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation reports bad client input.
func Validation(message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil)
}

// Validationf formats a validation message.
func Validationf(format string, args ...any) *ServiceError {
	return Validation(fmt.Sprintf(format, args...))
}

// InvalidFormat reports a request body that could not be decoded.
func InvalidFormat(err error) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, "invalid request body", err)
}

// Unauthorized reports missing or unusable credentials.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken reports a bearer token that failed verification.
func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid or expired token", err)
}

// Forbidden reports an authenticated caller lacking permission.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "permission denied"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s %s not found", resource, id), nil).
		WithDetails("resource", resource)
}

// Conflict reports an operation that is not allowed in the resource's current state.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimit, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Upstream reports a failed call to a third-party provider.
func Upstream(provider string, err error) *ServiceError {
	return newError(CodeUpstream, http.StatusBadGateway, provider+" request failed", err).
		WithDetails("provider", provider)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a ServiceError from err. Storage not-found errors are
// translated; anything else returns nil.
func GetServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	if stderrors.Is(err, ErrNotFound) {
		return newError(CodeNotFound, http.StatusNotFound, err.Error(), err)
	}
	return nil
}

// HTTPStatus returns the status code that err should be rendered with.
func HTTPStatus(err error) int {
	if svcErr := GetServiceError(err); svcErr != nil {
		return svcErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err represents a missing resource.
func IsNotFound(err error) bool {
	if stderrors.Is(err, ErrNotFound) {
		return true
	}
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == CodeNotFound
}

// IsValidation reports whether err represents bad input.
func IsValidation(err error) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == CodeValidation
}

// IsConflict reports whether err represents a state conflict.
func IsConflict(err error) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == CodeConflict
}

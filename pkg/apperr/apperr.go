// Package apperr defines the errors shared by every service boundary and
// their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"logicflow/services/flow"
)

// Sentinel errors for programmatic error checking via errors.Is().
var (
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid request")
	ErrConflict  = errors.New("conflict")
)

// ResourceNotFoundError reports an unknown instance or test id.
// Wraps ErrNotFound for errors.Is() compatibility.
type ResourceNotFoundError struct {
	Resource string // "instance", "quick test"
	ID       string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *ResourceNotFoundError) Unwrap() error { return ErrNotFound }

// AuthorizationError reports an attempt to access another user's resource.
// Wraps ErrForbidden for errors.Is() compatibility.
type AuthorizationError struct {
	Resource string
	ID       string
	UserID   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %q may not access %s %q", e.UserID, e.Resource, e.ID)
}

func (e *AuthorizationError) Unwrap() error { return ErrForbidden }

// Invalid wraps a caller mistake so Status maps it to 400.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Status maps an error to the HTTP status code reported to the client.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, flow.ErrValidation), errors.Is(err, flow.ErrGraph):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

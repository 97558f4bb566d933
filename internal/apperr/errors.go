// Package apperr defines the error taxonomy shared by every layer.
// Lower layers wrap these sentinels with fmt.Errorf("...: %w", ...); the HTTP
// layer maps them to a status code with StatusFromError.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated     = errors.New("could not validate credentials")
	ErrForbidden           = errors.New("forbidden")
	ErrSelfDelete          = errors.New("cannot delete your own account")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrUpstream            = errors.New("error occurred during external API call")
	ErrUpstreamTimeout     = errors.New("timeout during external API call")
	ErrUpstreamUnavailable = errors.New("external API unavailable")
)

// StatusFromError maps domain errors to HTTP status codes.
// Anything unrecognised is a 500.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrSelfDelete), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsInternal reports whether err falls outside the taxonomy, meaning its
// message must not reach the caller.
func IsInternal(err error) bool {
	for _, known := range []error{
		ErrUnauthenticated, ErrForbidden, ErrSelfDelete, ErrNotFound, ErrConflict,
		ErrValidation, ErrUpstream, ErrUpstreamTimeout, ErrUpstreamUnavailable,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}

// Error pairs a taxonomy sentinel with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

// New returns an error of the given kind whose public message is message.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Message returns the text that is safe to send to a caller for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	for _, known := range []error{
		ErrUnauthenticated, ErrForbidden, ErrSelfDelete, ErrNotFound, ErrConflict,
		ErrValidation, ErrUpstreamTimeout, ErrUpstreamUnavailable, ErrUpstream,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal server error"
}

package water

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by every layer. Callers wrap them with context and
// match with errors.Is at the transport boundary.
var (
	// ErrAuthentication is returned for a missing or mismatched device secret.
	ErrAuthentication = errors.New("authentication failed")
	// ErrValidation is returned for missing or malformed input fields.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for unknown areas, empty histories and unknown jobs.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable is returned when the backing store or a dependent
	// service cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInsufficientData is returned when a regression input is degenerate.
	ErrInsufficientData = errors.New("insufficient data")
)

// Error carries a client-facing message and the sentinel it classifies as.
type Error struct {
	Kind error
	Msg  string
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// HTTPStatus maps an error to the status code the services answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package direct

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by NewClient when the client cannot be
	// constructed, e.g. the OAuth token is missing. No request is attempted.
	ErrConfiguration = errors.New("invalid client configuration")

	// ErrValidation is returned when a request is rejected locally before
	// anything is sent over the network.
	ErrValidation = errors.New("invalid request")

	// ErrServerUnavailable is returned when the API answers with status 500.
	// Callers may retry later with their own policy.
	ErrServerUnavailable = errors.New("server is unavailable")

	// ErrTimeout is returned when a report run hits the caller-supplied
	// deadline or poll limit before the report became ready.
	ErrTimeout = errors.New("report polling timed out")
)

// TransportError wraps a network-level failure: connection refused, timeout,
// malformed response etc.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: POST %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BadRequestError carries the diagnostic the API returned for a malformed
// request. Resubmitting the same request will not succeed.
type BadRequestError struct {
	StatusCode int
	Message    string
	Detail     string
	Code       int
	RequestID  string
}

func (e *BadRequestError) Error() string {
	if e.Message == "" && e.Detail == "" {
		return fmt.Sprintf("bad request (status: %d)", e.StatusCode)
	}
	if e.Detail == "" {
		return fmt.Sprintf("bad request: %s", e.Message)
	}
	return fmt.Sprintf("bad request: %s: %s", e.Message, e.Detail)
}

// ProtocolViolationError means the API answered with a status/header/body
// combination this client does not understand.
type ProtocolViolationError struct {
	StatusCode int
	Reason     string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation (status: %d): %s", e.StatusCode, e.Reason)
}

// timeoutError converts an expired context into ErrTimeout while keeping the
// context error reachable through errors.Is. Cancellation is not a timeout.
func timeoutError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("report polling cancelled: %w", err)
	}
	return fmt.Errorf("%w: %w", ErrTimeout, err)
}

// ErrorKind returns a short stable label for err, used in logs and metrics.
func ErrorKind(err error) string {
	var (
		badRequest *BadRequestError
		protocol   *ProtocolViolationError
		transport  *TransportError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrServerUnavailable):
		return "unavailable"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.As(err, &badRequest):
		return "bad_request"
	case errors.As(err, &protocol):
		return "protocol_violation"
	case errors.As(err, &transport):
		return "transport"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

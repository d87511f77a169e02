// Package errors defines the kind-tagged error taxonomy shared by every
// transport adapter (HTTP, websocket, binary wire).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kind tags from the service's error taxonomy.
// Every transport maps a Kind to its own status representation.
type Kind string

const (
	KindBadRequest       Kind = "bad_request"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindTooManyRequests  Kind = "too_many_requests"
	KindTimeout          Kind = "timeout"
	KindOverloaded       Kind = "overloaded"
	KindInternal         Kind = "internal"
)

// ServiceError is a structured error carrying a kind tag, a human message,
// and optional details, independent of any particular wire format.
type ServiceError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches an additional detail key/value and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError of the given kind.
func New(kind Kind, message string) *ServiceError {
	return &ServiceError{Kind: kind, Message: message}
}

// Wrap creates a ServiceError of the given kind wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Err: err}
}

// Convenience constructors mirroring the taxonomy in spec §7.

func BadRequest(message string) *ServiceError    { return New(KindBadRequest, message) }
func Unauthorized(message string) *ServiceError  { return New(KindUnauthorized, message) }
func Forbidden(message string) *ServiceError     { return New(KindForbidden, message) }
func NotFound(message string) *ServiceError      { return New(KindNotFound, message) }
func Conflict(message string) *ServiceError      { return New(KindConflict, message) }
func Timeout(message string) *ServiceError       { return New(KindTimeout, message) }
func Overloaded(message string) *ServiceError    { return New(KindOverloaded, message) }
func Internal(message string) *ServiceError      { return New(KindInternal, message) }

// TooManyRequests builds a rate-limit error carrying a retry-after hint.
func TooManyRequests(limit int, window string, retryAfterSeconds int) *ServiceError {
	return New(KindTooManyRequests, fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window)).
		WithDetails("retry_after_seconds", retryAfterSeconds)
}

// HTTPStatus maps a Kind to its single HTTP status, per spec §7.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode is a minimal gRPC-style status code, used by the binary wire
// adapter's summary frame (no google.golang.org/grpc dependency is pulled in
// for this — see DESIGN.md).
type GRPCCode int

const (
	GRPCOK                GRPCCode = 0
	GRPCInvalidArgument    GRPCCode = 3
	GRPCDeadlineExceeded  GRPCCode = 4
	GRPCNotFound          GRPCCode = 5
	GRPCAlreadyExists     GRPCCode = 6
	GRPCPermissionDenied  GRPCCode = 7
	GRPCResourceExhausted GRPCCode = 8
	GRPCUnauthenticated   GRPCCode = 16
	GRPCUnavailable       GRPCCode = 14
	GRPCInternal          GRPCCode = 13
)

// GRPCStatus maps a Kind to its gRPC-style status code.
func (k Kind) GRPCStatus() GRPCCode {
	switch k {
	case KindBadRequest:
		return GRPCInvalidArgument
	case KindUnauthorized:
		return GRPCUnauthenticated
	case KindForbidden:
		return GRPCPermissionDenied
	case KindNotFound:
		return GRPCNotFound
	case KindConflict:
		return GRPCAlreadyExists
	case KindTooManyRequests:
		return GRPCResourceExhausted
	case KindTimeout:
		return GRPCDeadlineExceeded
	case KindOverloaded:
		return GRPCUnavailable
	default:
		return GRPCInternal
	}
}

// As extracts a *ServiceError from err, or builds an internal one wrapping it.
func As(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return Wrap(KindInternal, "internal error", err)
}

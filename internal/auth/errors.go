package auth

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("identifier and secret are required")
	ErrNetworkFailure        = errors.New("network failure")
	ErrNonOkStatus           = errors.New("non-ok status")
	ErrMalformedResponseBody = errors.New("malformed response body")
	ErrInvalidResponseShape  = errors.New("invalid response shape")
	ErrProvisionRejected     = errors.New("provision rejected")
	ErrMissingConfiguration  = errors.New("missing configuration")
	ErrStorageUnavailable    = errors.New("storage unavailable")
)

// Kind is the coarse failure class shown to users and recorded in metrics.
type Kind string

const (
	KindNone                 Kind = ""
	KindValidation           Kind = "validation"
	KindNetworkFailure       Kind = "network_failure"
	KindUpstreamRejected     Kind = "upstream_rejected"
	KindMalformedResponse    Kind = "malformed_response"
	KindMissingConfiguration Kind = "missing_configuration"
	KindStorageUnavailable   Kind = "storage_unavailable"
	KindUnknown              Kind = "unknown"
)

// Error is a failure from one of the outbound steps. Message carries the
// upstream's own explanation when it provided one.
type Error struct {
	Op      string // "exchange", "provision", "persist"
	Status  int    // HTTP status, zero when no response was received
	Message string
	Kind    error // one of the sentinel errors above
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UpstreamMessage returns the message the upstream system supplied, if any.
func UpstreamMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// KindOf classifies err into the failure taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrMissingConfiguration):
		return KindMissingConfiguration
	case errors.Is(err, ErrNetworkFailure):
		return KindNetworkFailure
	case errors.Is(err, ErrNonOkStatus), errors.Is(err, ErrProvisionRejected):
		return KindUpstreamRejected
	case errors.Is(err, ErrMalformedResponseBody), errors.Is(err, ErrInvalidResponseShape):
		return KindMalformedResponse
	case errors.Is(err, ErrStorageUnavailable):
		return KindStorageUnavailable
	default:
		return KindUnknown
	}
}

package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a forwarding failure. Every failure is terminal for its request.
type Kind int

const (
	// KindBadRequest covers a missing target selector or a malformed target.
	KindBadRequest Kind = iota + 1
	// KindNotFound means the target id is not registered.
	KindNotFound
	// KindUpstreamGateway covers any failure talking to the target or its token endpoint.
	KindUpstreamGateway
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindNotFound:
		return "target not found"
	case KindUpstreamGateway:
		return "upstream unavailable"
	default:
		return "unknown"
	}
}

// StatusCode returns the HTTP status reported to the caller.
func (k Kind) StatusCode() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

var (
	// ErrMissingTargetID is returned when the target selector header is absent.
	ErrMissingTargetID = errors.New("missing " + HeaderTargetID + " header")
	// ErrTargetNotFound is returned when the registry has no such target.
	ErrTargetNotFound = errors.New("target not registered")
	// ErrMissingHost is returned when the resolved target has no host.
	ErrMissingHost = errors.New("target has no host configured")
)

// Error is a classified forwarding failure.
type Error struct {
	Kind   Kind
	Op     string // pipeline step: "resolve", "build", "auth", "upstream"
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// detail is the message safe to return to the caller. Gateway failures
// stay generic; the cause goes to the log.
func (e *Error) detail() string {
	switch e.Kind {
	case KindBadRequest, KindNotFound:
		return e.Err.Error()
	}
	var tokenErr *TokenError
	if errors.As(e.Err, &tokenErr) {
		return "token request failed"
	}
	return "upstream request failed"
}

// KindOf returns the Kind of err. Unclassified errors are gateway errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUpstreamGateway
}

// StatusCode maps err to the HTTP status reported to the caller.
func StatusCode(err error) int {
	return KindOf(err).StatusCode()
}

// TokenError is a failed client-credentials token fetch.
type TokenError struct {
	TargetID string
	// StatusCode is the token endpoint's HTTP status, or 0 if no response was received.
	StatusCode int
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching token for %s (HTTP %d): %v", e.TargetID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching token for %s: %v", e.TargetID, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

package auth

import (
	"errors"
	"fmt"
)

// ErrMissingRefreshMaterial is returned by the renewal path when the stored
// record lacks a refresh token, client ID, or token endpoint. The caller
// should run the full authorization flow instead.
var ErrMissingRefreshMaterial = errors.New("stored credentials lack refresh material; run 'granola-auth login' to authorize")

// ListenerError indicates the local redirect listener could not be started.
// Both variants are fatal to the run; there is no fallback port search.
type ListenerError struct {
	// Port is the local port the listener tried to bind.
	Port int

	// PortInUse distinguishes an occupied port from other bind failures.
	PortInUse bool

	Err error
}

func (e *ListenerError) Error() string {
	if e.PortInUse {
		return fmt.Sprintf("callback port %d is already in use (close the process holding it and re-run): %v", e.Port, e.Err)
	}
	return fmt.Sprintf("failed to start callback listener on port %d: %v", e.Port, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// FlowErrorKind classifies authorization flow failures.
type FlowErrorKind string

const (
	// FlowTimeout: no callback arrived within the wait bound.
	FlowTimeout FlowErrorKind = "timeout"

	// FlowRemoteError: the authorization server redirected back with an
	// error parameter (user denied, server rejected the request, ...).
	FlowRemoteError FlowErrorKind = "remote-error"

	// FlowStateMismatch: the returned state does not match the one sent.
	// Treated as a potential CSRF attempt, never silently ignored.
	FlowStateMismatch FlowErrorKind = "state-mismatch"

	// FlowInvalidResponse: the redirect carried neither code nor error.
	FlowInvalidResponse FlowErrorKind = "invalid-response"
)

// FlowError is an authorization flow failure with its classification and,
// where available, the remote error detail.
type FlowError struct {
	Kind   FlowErrorKind
	Detail string
	Err    error
}

func (e *FlowError) Error() string {
	switch e.Kind {
	case FlowTimeout:
		return "authorization timed out waiting for the browser callback"
	case FlowRemoteError:
		if e.Detail != "" {
			return fmt.Sprintf("authorization server returned an error: %s", e.Detail)
		}
		return "authorization server returned an error"
	case FlowStateMismatch:
		return "state parameter mismatch on callback - the response does not belong to this request (possible CSRF attempt)"
	case FlowInvalidResponse:
		return "authorization callback carried neither a code nor an error - protocol violation"
	default:
		if e.Err != nil {
			return fmt.Sprintf("authorization failed: %v", e.Err)
		}
		return "authorization failed"
	}
}

func (e *FlowError) Unwrap() error { return e.Err }

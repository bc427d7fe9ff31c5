// Package auth orchestrates the interactive credential-acquisition flow:
// it sequences discovery, dynamic client registration, and the PKCE
// authorization-code exchange around a one-shot local redirect listener,
// and drives the non-interactive renewal path from stored credentials.
//
// The listener is modeled as an explicit state machine with a single
// outcome slot: it resolves Completed, CompletedWithError, or times out,
// exactly once, and the socket is released on every exit path. The
// orchestrator validates the returned state token against the one it
// generated before any code leaves the process; a mismatch is treated as a
// potential CSRF attempt and aborts the run.
package auth

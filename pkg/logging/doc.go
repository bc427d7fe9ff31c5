// Package logging provides a thin facade over log/slog with subsystem-tagged
// printf-style helpers. Init is called once at startup with the verbosity
// chosen on the command line; components log through Debug/Info/Warn/Error
// with a subsystem name so related entries can be filtered together.
//
// Credential material (tokens, verifiers, codes) is never passed to this
// package; callers log identifiers and endpoints only.
package logging

// Package hosterr defines the error taxonomy crossing the plugin/host
// boundary. Every error returned from the Host API, Schema Engine, Loader,
// or Orchestrator is (or wraps) an *Error so callers can branch on Kind
// with errors.As instead of string matching.
package hosterr

import (
	"errors"
	"fmt"
)

// Kind classifies a host-boundary failure.
type Kind string

const (
	NotFound             Kind = "NotFound"
	InvalidArgument      Kind = "InvalidArgument"
	PermissionDenied     Kind = "PermissionDenied"
	ConstraintViolation  Kind = "ConstraintViolation"
	DependencyUnsatisfied Kind = "DependencyUnsatisfied"
	VersionIncompatible  Kind = "VersionIncompatible"
	ManifestInvalid      Kind = "ManifestInvalid"
	LibraryLoadFailed    Kind = "LibraryLoadFailed"
	SymbolMissing        Kind = "SymbolMissing"
	PluginPanicked       Kind = "PluginPanicked"
	Timeout              Kind = "Timeout"
	Internal             Kind = "Internal"

	// RateLimited is surfaced by the per-plugin dispatch rate limiter:
	// a runaway command loop shouldn't starve the dispatcher for every
	// other plugin. Treated the same as any other kind for IPC envelope
	// purposes.
	RateLimited Kind = "RateLimited"
)

// Error is the host's structured error type. It carries a Kind classifying
// the failure for the IPC error envelope, a human-readable Message, and an
// optional wrapped Cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying cause, for Internal-style failures that
// originate from the store or another dependency.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal for
// unrecognized errors — every error that crosses the IPC boundary must
// carry a kind, and an un-annotated error is a host bug, not the
// caller's problem, so it is reported as Internal rather than leaked.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return Internal
}

// Package noteerr defines the error taxonomy shared across the engine.
// Every failure surfaced by the stores, the indexer, or the search path
// is classified into one of a small set of kinds so that callers can
// pick the right degradation policy without string matching.
package noteerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for policy decisions.
type Kind string

const (
	// KindTransient marks backend failures: the embedding, rerank, or
	// answer service is unreachable or timed out. Callers degrade
	// gracefully (empty branch, omitted score, fallback answer).
	KindTransient Kind = "transient"

	// KindMalformedInput marks unreadable files, broken frontmatter, or
	// content below the index threshold. Skipped, never aborts a pass.
	KindMalformedInput Kind = "malformed_input"

	// KindConfig marks missing or invalid configuration. Fatal at startup.
	KindConfig Kind = "config"

	// KindStore marks vector or FTS write/read failures. The per-file
	// pipeline aborts for that file; the next file proceeds.
	KindStore Kind = "store"

	// KindCancelled marks cooperative cancellation. Not a failure;
	// operations return partial results alongside it.
	KindCancelled Kind = "cancelled"
)

// Error is the structured error type for the engine.
type Error struct {
	// Kind is the taxonomy bucket.
	Kind Kind

	// Op names the failing operation (e.g., "index.full", "embed").
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind, enabling errors.Is comparisons against
// kind sentinels built with E(kind, "", nil).
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain. Plain context
// cancellation and deadline errors are classified without wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return ""
}

// IsTransient reports whether err is a backend availability failure.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsMalformedInput reports whether err is a skip-and-continue input error.
func IsMalformedInput(err error) bool { return KindOf(err) == KindMalformedInput }

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return KindOf(err) == KindConfig }

// IsStore reports whether err is a store read/write failure.
func IsStore(err error) bool { return KindOf(err) == KindStore }

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

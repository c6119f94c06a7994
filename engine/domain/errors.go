package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures so callers can map them to retry policy and HTTP
// status without string matching.
type Kind string

const (
	KindInvalidInput          Kind = "invalid_input"
	KindFetchTimeout          Kind = "fetch_timeout"
	KindFetchFailed           Kind = "fetch_failed"
	KindFetchRejected         Kind = "fetch_rejected"
	KindContentTooLarge       Kind = "content_too_large"
	KindUnextractableContent  Kind = "unextractable_content"
	KindGenerationUnavailable Kind = "generation_unavailable"
	KindGenerationTimeout     Kind = "generation_timeout"
	KindGenerationMalformed   Kind = "generation_malformed"
	KindDimensionMismatch     Kind = "dimension_mismatch"
	KindIngestionInProgress   Kind = "ingestion_in_progress"
	KindNotFound              Kind = "not_found"
	KindCanceled              Kind = "canceled"
	KindInternal              Kind = "internal"
)

// Error carries a Kind alongside the failing operation and cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds a kinded error from a format string.
func Ef(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from an error chain. Plain context errors map to
// timeout/canceled kinds; anything unclassified is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindFetchTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RetryableFetch reports whether a fetch-stage failure is worth another
// attempt. Timeouts and transport/5xx failures are; malformed input, 4xx
// responses, oversize bodies, and unextractable pages are permanent.
func RetryableFetch(kind Kind) bool {
	return kind == KindFetchTimeout || kind == KindFetchFailed
}

// RetryableGeneration reports whether a summarization failure gets its one
// extra attempt.
func RetryableGeneration(kind Kind) bool {
	return kind == KindGenerationTimeout
}

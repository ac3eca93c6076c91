// Package ragerr defines the typed failures surfaced by the retrieval pipeline.
// Callers branch on Kind to tell "try again" failures from "fix your input" ones.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindExtractionFailed          Kind = "extraction_failed"
	KindEmbeddingUnavailable      Kind = "embedding_unavailable"
	KindDimensionMismatch         Kind = "dimension_mismatch"
	KindGenerationUnavailable     Kind = "generation_unavailable"
	KindMalformedGenerationOutput Kind = "malformed_generation_output"
	KindInvalidInput              Kind = "invalid_input"
	KindNotFound                  Kind = "not_found"
	KindIndexUnavailable          Kind = "index_unavailable"
	// KindProviderRejected means the model provider refused the request itself,
	// e.g. a bad credential or an oversized input. Retrying cannot help.
	KindProviderRejected Kind = "provider_rejected"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrExtractionFailed          = &Error{Kind: KindExtractionFailed}
	ErrEmbeddingUnavailable      = &Error{Kind: KindEmbeddingUnavailable}
	ErrDimensionMismatch         = &Error{Kind: KindDimensionMismatch}
	ErrGenerationUnavailable     = &Error{Kind: KindGenerationUnavailable}
	ErrMalformedGenerationOutput = &Error{Kind: KindMalformedGenerationOutput}
	ErrInvalidInput              = &Error{Kind: KindInvalidInput}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrIndexUnavailable          = &Error{Kind: KindIndexUnavailable}
	ErrProviderRejected          = &Error{Kind: KindProviderRejected}
)

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "embed" or "ingest".
	Op string
	// Question is kept on generation failures so the caller can retry it.
	Question string
	Err      error
}

// New builds an *Error of the given kind wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error of the given kind with a formatted cause.
func Newf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether failures of this kind are transient.
func (k Kind) Retryable() bool {
	switch k {
	case KindEmbeddingUnavailable, KindGenerationUnavailable, KindIndexUnavailable:
		return true
	}
	return false
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err's chain carries a transient *Error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// QuestionOf returns the question preserved on a generation failure.
func QuestionOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Question
	}
	return ""
}

// Package apperrors defines the error taxonomy shared by the trading and
// fundamentals services.
//
// Every error that crosses a package boundary is either a plain wrapped cause
// or an *Error carrying a Kind. Callers classify with KindOf / Is instead of
// matching on strings.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and presentation.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUpstreamUnavailable
	KindNotFound
	KindConflict
	KindComputationSkipped
	KindPartialFailure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindComputationSkipped:
		return "computation_skipped"
	case KindPartialFailure:
		return "partial_failure"
	default:
		return "unknown"
	}
}

// Error is an operation error with a kind and a machine-readable reason
type Error struct {
	Kind   Kind
	Op     string // e.g. "fundamentals.UpsertReport"
	Reason string // e.g. "profile_unavailable"
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg = e.Reason
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, op, reason string) error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap attaches a kind to err. Returns nil when err is nil.
func Wrap(kind Kind, op, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// Validation creates a ValidationError for a bad input field
func Validation(op, field, reason string) error {
	return &Error{Kind: KindValidation, Op: op, Reason: fmt.Sprintf("%s: %s", field, reason)}
}

// NotFound creates a NotFound error
func NotFound(op, reason string) error {
	return &Error{Kind: KindNotFound, Op: op, Reason: reason}
}

// Upstream wraps a failed call to a collaborator (broker, market data, cache, DB)
func Upstream(op string, err error) error {
	return Wrap(KindUpstreamUnavailable, op, "", err)
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the reason of the outermost *Error in err's chain
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

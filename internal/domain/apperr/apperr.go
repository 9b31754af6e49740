// Package apperr defines the error kinds surfaced by the sales core.
//
// Every failure returned by a domain operation carries one of four kinds.
// Callers match on the kind with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a domain failure.
type Kind uint8

const (
	// KindUnknown is reported for errors that did not originate in the domain.
	KindUnknown Kind = iota
	// KindValidation marks missing or out-of-range input.
	KindValidation
	// KindNotFound marks a referenced order, item, discount or shift that is absent.
	KindNotFound
	// KindConflict marks a state conflict such as a duplicate active shift.
	KindConflict
	// KindConsistency marks an internal invariant violated mid-transaction.
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConsistency:
		return "consistency"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is matching. They compare by kind only.
var (
	ErrValidation  = &Error{Kind: KindValidation, Msg: "validation failed"}
	ErrNotFound    = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrConflict    = &Error{Kind: KindConflict, Msg: "conflict"}
	ErrConsistency = &Error{Kind: KindConsistency, Msg: "consistency violation"}
)

// Error is a domain failure with a kind and a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Validation returns a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error for the given entity and identifier.
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %s not found", entity, id)}
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Consistency returns a KindConsistency error.
func Consistency(format string, args ...any) error {
	return &Error{Kind: KindConsistency, Msg: fmt.Sprintf(format, args...)}
}

// WithCause attaches err as the cause of a kinded error.
func WithCause(kind Kind, err error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Typed domain
// errors that only match a sentinel through Is report that sentinel's kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Kind
		}
	}
	return KindUnknown
}

var sentinels = []*Error{ErrValidation, ErrNotFound, ErrConflict, ErrConsistency}

// Message returns the message of the first *Error in err's chain, falling
// back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

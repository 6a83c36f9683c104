// Package apperr defines the typed error taxonomy shared across the
// collaboration engine. Callers match on Kind, never on message text.
package apperr

import "errors"

// Kind classifies an error for control-flow purposes.
type Kind int

const (
	Internal Kind = iota
	NotFound
	BadRange
	DecodeError
	NetworkUnavailable
	MergeConflict
	RepositoryError
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case BadRange:
		return "bad_range"
	case DecodeError:
		return "decode_error"
	case NetworkUnavailable:
		return "network_unavailable"
	case MergeConflict:
		return "merge_conflict"
	case RepositoryError:
		return "repository_error"
	case ConfigError:
		return "config_error"
	default:
		return "internal"
	}
}

// Error is an error tagged with a Kind and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether the first *Error found in err's Unwrap chain has the
// given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or Internal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

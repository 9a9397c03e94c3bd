package tool

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an invoke failure for the engine.
type ErrorKind int

const (
	// KindTransient failures are surfaced as the tool's result text so
	// the model can self-correct; the turn continues.
	KindTransient ErrorKind = iota
	// KindUser failures carry a message meant for the model verbatim.
	KindUser
	// KindFatal failures end the turn.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUser:
		return "user"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified tool failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as retriable-by-the-model.
func Transient(err error) *Error { return &Error{Kind: KindTransient, Err: err} }

// Userf builds a user-kind error from a format string.
func Userf(format string, args ...any) *Error {
	return &Error{Kind: KindUser, Err: fmt.Errorf(format, args...)}
}

// Fatal wraps err as turn-ending.
func Fatal(err error) *Error { return &Error{Kind: KindFatal, Err: err} }

// KindOf extracts the classification; unclassified errors default to
// user-kind so the model sees them and the turn survives.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUser
}

// SchemaError reports arguments that failed schema validation. It is
// surfaced to the model as the tool result, never to the client.
type SchemaError struct {
	Tool   string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Detail)
}

// IsSchemaError reports whether err is an argument validation failure.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

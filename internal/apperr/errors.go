// Package apperr defines the error kinds shared by the sync engine, the query
// service and the bridge protocol.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for reporting over the bridge.
type Kind string

const (
	KindConnection Kind = "connection"
	KindProtocol   Kind = "protocol"
	KindValidation Kind = "validation"
	KindQuery      Kind = "query"
	KindNotFound   Kind = "not_found"
)

// Sentinels, one per kind. Every *Error matches the sentinel of its kind via
// errors.Is.
var (
	ErrConnection = errors.New("connection error")
	ErrProtocol   = errors.New("protocol error")
	ErrValidation = errors.New("validation error")
	ErrQuery      = errors.New("query error")
	ErrNotFound   = errors.New("not found")
)

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return sentinel(e.Kind) == target
}

func sentinel(k Kind) error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindProtocol:
		return ErrProtocol
	case KindValidation:
		return ErrValidation
	case KindQuery:
		return ErrQuery
	case KindNotFound:
		return ErrNotFound
	}
	return nil
}

func newf(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Connection reports an unreachable store or an invalid session.
func Connection(err error, format string, args ...any) *Error {
	return newf(KindConnection, err, format, args...)
}

// Protocol reports a malformed request line or an unknown action.
func Protocol(err error, format string, args ...any) *Error {
	return newf(KindProtocol, err, format, args...)
}

// Validation reports a missing or malformed parameter.
func Validation(err error, format string, args ...any) *Error {
	return newf(KindValidation, err, format, args...)
}

// Query reports a store that rejected or failed to execute an operation.
func Query(err error, format string, args ...any) *Error {
	return newf(KindQuery, err, format, args...)
}

// NotFound reports a missing operation target.
func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

package command

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a command failure.
type ErrorKind string

// Command failure kinds.
const (
	// KindRejected: the remote source refused the write.
	KindRejected ErrorKind = "rejected"
	// KindNetwork: the write never got an answer.
	KindNetwork ErrorKind = "network"
	// KindUnauthorized: no valid session, or the credential was refused.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindPreconditionFailed: a local rule blocked the write before any network traffic.
	KindPreconditionFailed ErrorKind = "precondition_failed"
)

// Error is the uniform command failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("command: %s: %s", e.Kind, e.Message())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the human-readable part without the kind prefix.
func (e *Error) Message() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

// Precondition builds a precondition_failed error.
func Precondition(msg string) *Error {
	return &Error{Kind: KindPreconditionFailed, Msg: msg}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

package stream

import (
	"errors"
	"fmt"
)

// Domain errors for the stream package.
var (
	// ErrNotAuthenticated is returned by Open when the session has no credential.
	ErrNotAuthenticated = errors.New("stream: session not authenticated")

	// ErrOpenTimeout is returned by Open when no snapshot arrived in time.
	// The channel keeps trying in the background.
	ErrOpenTimeout = errors.New("stream: timed out waiting for first snapshot")

	// ErrClosed is returned by Open when the channel was closed before the
	// first snapshot arrived.
	ErrClosed = errors.New("stream: channel closed")

	// errRestart ends a connection for the scheduled restart.
	errRestart = errors.New("stream: scheduled restart")

	// errNoCredential ends the loop when the session lost its credential
	// between connections.
	errNoCredential = errors.New("stream: no credential")
)

// ErrorKind classifies a channel failure.
type ErrorKind string

// Channel failure kinds.
const (
	KindTransport   ErrorKind = "transport"
	KindAuthRevoked ErrorKind = "auth_revoked"
)

// ChannelError is a failure of one connection attempt.
type ChannelError struct {
	Kind ErrorKind
	Err  error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stream: %s", e.Kind)
	}
	return fmt.Sprintf("stream: %s: %v", e.Kind, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *ChannelError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *ChannelError
	return errors.As(err, &ce) && ce.Kind == kind
}

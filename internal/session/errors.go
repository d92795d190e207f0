package session

import (
	"errors"
	"fmt"
)

// AuthErrorKind classifies why authentication failed.
type AuthErrorKind string

// Authentication failure kinds.
const (
	KindMissingCredential AuthErrorKind = "missing_credential"
	KindRejected          AuthErrorKind = "rejected"
	KindNetwork           AuthErrorKind = "network"
)

// ErrRevokeFailed wraps the network failure of an explicit revoke.
// Local state is cleared regardless.
var ErrRevokeFailed = errors.New("session: remote revoke failed")

// AuthError is returned by Authenticate.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session: authentication failed: %s", e.Kind)
	}
	return fmt.Sprintf("session: authentication failed: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *AuthError of the given kind.
func IsKind(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}

package engine

import "errors"

// Domain errors for the engine package.
var (
	// ErrNoDevicesFound is returned by PairingList when the account has no
	// devices of the requested kind.
	ErrNoDevicesFound = errors.New("engine: no devices found")

	// ErrNoAuthorizer is returned by Login when no OAuth2 client is configured.
	ErrNoAuthorizer = errors.New("engine: no authorizer configured")
)

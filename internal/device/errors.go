package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when a handle is requested for an absent device.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrUnknownKind is returned for a kind other than thermostats, smoke_co_alarms or cameras.
	ErrUnknownKind = errors.New("device: unknown kind")

	// ErrHandleDestroyed is returned when a destroyed handle is used.
	ErrHandleDestroyed = errors.New("device: handle destroyed")

	// ErrDeviceRemoved is returned when the device behind a handle has left the snapshot.
	ErrDeviceRemoved = errors.New("device: removed externally")

	// ErrUnsupportedCommand is returned when a typed command does not apply to the kind.
	ErrUnsupportedCommand = errors.New("device: command not supported for kind")
)

// SyncErrorKind classifies a snapshot entry problem.
type SyncErrorKind string

// Sync error kinds. Both are logged, never returned to consumers.
const (
	SyncMalformedSnapshot   SyncErrorKind = "malformed_snapshot"
	SyncStructureUnresolved SyncErrorKind = "structure_unresolved"
)

// SyncError describes one dropped or degraded snapshot entry.
type SyncError struct {
	Kind     SyncErrorKind
	DeviceID string
	Reason   string
}

func (e *SyncError) Error() string {
	if e.DeviceID == "" {
		return fmt.Sprintf("device: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("device: %s: %s: %s", e.Kind, e.DeviceID, e.Reason)
}

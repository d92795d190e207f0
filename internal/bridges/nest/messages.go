package nest

import (
	"time"

	"github.com/nerrad567/gray-logic-nest/internal/device"
)

// MQTT message types exchanged with home automation consumers. All
// payloads go through the client's codec, so the json tags define the
// field names for both JSON and CBOR.

// CommandMessage asks the bridge to write one device attribute.
// Topic: graylogic/nest/command/{kind}/{id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment. Generated when empty.
	ID string `json:"id,omitempty"`

	// Attr is the remote attribute name (e.g. "target_temperature_c").
	Attr string `json:"attr"`

	// Value is the requested value.
	Value any `json:"value"`

	// Source names the sender, for logs only.
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted: the remote service accepted the write.
	AckAccepted AckStatus = "accepted"

	// AckFailed: the write was refused locally or remotely.
	AckFailed AckStatus = "failed"
)

// AckMessage reports the outcome of a CommandMessage.
// Topic: graylogic/nest/ack/{kind}/{id}
type AckMessage struct {
	CommandID string      `json:"command_id"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      device.Kind `json:"kind"`
	DeviceID  string      `json:"device_id"`
	Attr      string      `json:"attr"`
	Status    AckStatus   `json:"status"`
	Error     *AckError   `json:"error,omitempty"`
}

// AckError contains details for failed commands.
type AckError struct {
	// Code is one of the ErrCode constants.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand     = "INVALID_COMMAND"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrCodeRejected           = "REJECTED"
	ErrCodeNetwork            = "NETWORK"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeBridgeError        = "BRIDGE_ERROR"
)

// StateMessage is the retained full state of one device.
// Topic: graylogic/nest/device/{kind}/{id}/state
type StateMessage struct {
	DeviceID      string         `json:"device_id"`
	Kind          device.Kind    `json:"kind"`
	Name          string         `json:"name"`
	StructureID   string         `json:"structure_id"`
	StructureName *string        `json:"structure_name"`
	Available     bool           `json:"available"`
	Reason        device.Reason  `json:"reason,omitempty"`
	State         map[string]any `json:"state"`
	CommandTopic  string         `json:"command_topic"`
	Timestamp     time.Time      `json:"timestamp"`
}

// EventMessage carries one device transition.
// Topic: graylogic/nest/device/{kind}/{id}/event
type EventMessage struct {
	Type      string        `json:"type"`
	DeviceID  string        `json:"device_id"`
	Kind      device.Kind   `json:"kind"`
	Attr      string        `json:"attr,omitempty"`
	Value     any           `json:"value,omitempty"`
	Previous  any           `json:"previous,omitempty"`
	Reason    device.Reason `json:"reason,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// AuthMessage carries session and pairing events.
// Topic: graylogic/nest/auth
type AuthMessage struct {
	Type      string    `json:"type"`
	Value     any       `json:"value,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StructureMessage is the retained state of a structure.
// Topic: graylogic/nest/structure/{id}
type StructureMessage struct {
	StructureID string    `json:"structure_id"`
	Name        string    `json:"name"`
	Away        bool      `json:"away"`
	Timestamp   time.Time `json:"timestamp"`
}

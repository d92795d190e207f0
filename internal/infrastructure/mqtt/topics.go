package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic this service publishes or
// subscribes to.
const TopicPrefix = "graylogic/nest"

// Topics provides builders for the service's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("thermostats", "t1")
//	// Returns: "graylogic/nest/device/thermostats/t1/state"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the retained topic carrying a device's full state.
//
// Example: graylogic/nest/device/thermostats/t1/state
func (Topics) DeviceState(kind, id string) string {
	return fmt.Sprintf("%s/device/%s/%s/state", TopicPrefix, kind, id)
}

// DeviceEvent returns the topic for a device's transitions (data,
// availability, alarm, motion, removal).
//
// Example: graylogic/nest/device/smoke_co_alarms/p1/event
func (Topics) DeviceEvent(kind, id string) string {
	return fmt.Sprintf("%s/device/%s/%s/event", TopicPrefix, kind, id)
}

// Command returns the topic a client publishes to in order to write a
// device attribute.
//
// Example: graylogic/nest/command/thermostats/t1
func (Topics) Command(kind, id string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, kind, id)
}

// CommandAck returns the topic carrying the outcome of a command.
//
// Example: graylogic/nest/ack/thermostats/t1
func (Topics) CommandAck(kind, id string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, kind, id)
}

// =============================================================================
// Account Topics
// =============================================================================

// Auth returns the topic carrying session and pairing events.
func (Topics) Auth() string {
	return TopicPrefix + "/auth"
}

// Structure returns the retained topic for one structure.
//
// Example: graylogic/nest/structure/s1
func (Topics) Structure(id string) string {
	return fmt.Sprintf("%s/structure/%s", TopicPrefix, id)
}

// Status returns the retained service status topic, also used for the
// Last Will and Testament.
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// =============================================================================
// Wildcards
// =============================================================================

// AllCommands matches every device command topic.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+/+"
}

// ParseCommandTopic extracts kind and id from a command topic.
// ok is false for anything not shaped like Topics.Command.
func ParseCommandTopic(topic string) (kind, id string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

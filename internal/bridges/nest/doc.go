// Package nest bridges the sync engine to MQTT.
//
// Outbound, every engine event is mapped to a topic: device transitions
// to the device event topic (plus a refreshed retained state), structure
// changes to the retained structure topic and session events to the auth
// topic. Inbound, command messages are written through the engine and
// answered on the ack topic.
//
// Engine callbacks must not block, so outbound messages are queued and
// published by a single worker goroutine. When the queue is full the
// message is dropped and logged; the next change of the same device
// republishes its complete state.
package nest

// Package engine is the facade the host talks to. It owns one session,
// one stream channel, one device registry and one command gateway, and
// wires them together:
//
//   - session events block or unblock every tracked handle and reset the
//     registry when the credential is lost
//   - stream snapshots are reconciled structures first, then each device
//     kind (cameras only for client_version > 4)
//   - every device in the registry gets a tracked handle whose events are
//     fanned out to subscribers (WebSocket hub, MQTT bridge, telemetry)
//
// There is no package-level state; construct an Engine with New.
package engine

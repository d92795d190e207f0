package main

import (
	"time"

	"github.com/nerrad567/gray-logic-nest/internal/engine"
)

// telemetryWriter is the part of *influxdb.Client the telemetry
// subscriber uses.
type telemetryWriter interface {
	RecordDeviceData(kind, deviceID, attr string, value any, ts time.Time) bool
	WriteAvailability(kind, deviceID string, available bool, reason string, ts time.Time)
	WriteAlarm(deviceID, alarm string, active bool, ts time.Time)
}

// recordTelemetry returns an engine subscriber that writes numeric device
// data, availability changes and alarm transitions. Writes are buffered
// by the client, so the subscriber never blocks the engine.
func recordTelemetry(w telemetryWriter) func(engine.Event) {
	return func(ev engine.Event) {
		switch ev.Type {
		case engine.EventDeviceData:
			w.RecordDeviceData(string(ev.Kind), ev.DeviceID, ev.Attr, ev.Value, ev.Timestamp)
		case engine.EventDeviceAvailability:
			available, ok := ev.Value.(bool)
			if !ok {
				return
			}
			w.WriteAvailability(string(ev.Kind), ev.DeviceID, available, string(ev.Reason), ev.Timestamp)
		case engine.EventDeviceAlarm:
			active, ok := ev.Value.(bool)
			if !ok {
				return
			}
			w.WriteAlarm(ev.DeviceID, ev.Attr, active, ev.Timestamp)
		}
	}
}

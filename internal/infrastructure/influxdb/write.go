package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceMetrics = "nest_device"
	MeasurementAvailability  = "nest_availability"
	MeasurementAlarm         = "nest_alarm"
)

// metricAttrs are the attributes recorded as telemetry. Everything else
// is either a string or a rule field not worth a series.
var metricAttrs = map[string]bool{
	"target_temperature_c":  true,
	"ambient_temperature_c": true,
	"humidity":              true,
	"is_streaming":          true,
}

// WriteDeviceMetric writes one numeric device attribute.
//
// Parameters:
//   - kind: Device collection (e.g. "thermostats")
//   - deviceID: Remote device id
//   - attr: Attribute name (e.g. "ambient_temperature_c")
//   - value: The numeric value
//   - ts: Observation time
func (c *Client) WriteDeviceMetric(kind, deviceID, attr string, value float64, ts time.Time) {
	c.writePoint(MeasurementDeviceMetrics,
		map[string]string{"kind": kind, "device_id": deviceID, "attr": attr},
		map[string]any{"value": value},
		ts,
	)
}

// WriteAvailability records an availability transition with its reason.
func (c *Client) WriteAvailability(kind, deviceID string, available bool, reason string, ts time.Time) {
	tags := map[string]string{"kind": kind, "device_id": deviceID}
	if reason != "" {
		tags["reason"] = reason
	}
	c.writePoint(MeasurementAvailability, tags, map[string]any{"available": available}, ts)
}

// WriteAlarm records a derived protect alarm (alarm_co, alarm_smoke,
// alarm_battery).
func (c *Client) WriteAlarm(deviceID, alarm string, active bool, ts time.Time) {
	c.writePoint(MeasurementAlarm,
		map[string]string{"device_id": deviceID, "alarm": alarm},
		map[string]any{"active": active},
		ts,
	)
}

// RecordDeviceData writes a device attribute change when it is one of the
// telemetry attributes and carries a number or boolean. It reports whether
// a point was written.
func (c *Client) RecordDeviceData(kind, deviceID, attr string, value any, ts time.Time) bool {
	if !metricAttrs[attr] {
		return false
	}
	v, ok := toFloat(value)
	if !ok {
		return false
	}
	if !c.IsConnected() {
		return false
	}
	c.WriteDeviceMetric(kind, deviceID, attr, v, ts)
	return true
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

package device

import "maps"

// Kind is the remote collection a device belongs to.
type Kind string

// Device kinds, named after their collection in the remote tree.
const (
	KindThermostat Kind = "thermostats"
	KindProtect    Kind = "smoke_co_alarms"
	KindCamera     Kind = "cameras"
)

// Kinds lists every supported kind in reconcile order.
var Kinds = []Kind{KindThermostat, KindProtect, KindCamera}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindThermostat, KindProtect, KindCamera:
		return Kind(s), nil
	}
	return "", ErrUnknownKind
}

// Attribute names read by rules and events.
const (
	AttrTargetTemperatureC = "target_temperature_c"
	AttrAmbientTemperature = "ambient_temperature_c"
	AttrHumidity           = "humidity"
	AttrHvacState          = "hvac_state"
	AttrHvacMode           = "hvac_mode"
	AttrEmergencyHeat      = "is_using_emergency_heat"
	AttrIsLocked           = "is_locked"
	AttrLockedTempMinC     = "locked_temp_min_c"
	AttrLockedTempMaxC     = "locked_temp_max_c"
	AttrCanCool            = "can_cool"
	AttrCanHeat            = "can_heat"
	AttrSoftwareVersion    = "software_version"
	AttrIsOnline           = "is_online"
	AttrNameLong           = "name_long"
	AttrStructureID        = "structure_id"
	AttrDeviceID           = "device_id"

	AttrBatteryHealth   = "battery_health"
	AttrCOAlarmState    = "co_alarm_state"
	AttrSmokeAlarmState = "smoke_alarm_state"

	AttrSnapshotURL = "snapshot_url"
	AttrLastEvent   = "last_event"
	AttrIsStreaming = "is_streaming"
)

// HVAC modes accepted by the remote API.
const (
	HvacHeat     = "heat"
	HvacCool     = "cool"
	HvacHeatCool = "heat-cool"
	HvacEco      = "eco"
	HvacOff      = "off"
)

// Structure is a home grouping devices.
type Structure struct {
	ID   string `json:"structure_id"`
	Name string `json:"name"`
	Away bool   `json:"away"`
}

// Device is one mirrored device of any kind.
type Device struct {
	ID            string         `json:"device_id"`
	Kind          Kind           `json:"kind"`
	DisplayName   string         `json:"name_long"`
	StructureID   string         `json:"structure_id"`
	StructureName *string        `json:"structure_name"`
	Attributes    map[string]any `json:"attributes"`
}

// Clone returns a deep copy safe to hand to callers.
func (d *Device) Clone() *Device {
	c := *d
	if d.StructureName != nil {
		name := *d.StructureName
		c.StructureName = &name
	}
	c.Attributes = cloneAttributes(d.Attributes)
	return &c
}

// cloneAttributes deep-copies JSON-shaped values (maps and slices).
func cloneAttributes(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := maps.Clone(t)
		for k, inner := range m {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

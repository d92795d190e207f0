package device

// capabilities are the attributes a handle diffs and reports changes for.
var capabilities = map[Kind][]string{
	KindThermostat: {AttrTargetTemperatureC, AttrAmbientTemperature, AttrHumidity, AttrHvacState, AttrHvacMode},
	KindProtect:    {AttrBatteryHealth, AttrCOAlarmState, AttrSmokeAlarmState},
	KindCamera:     {AttrSnapshotURL, AttrLastEvent, AttrIsStreaming},
}

// ruleFields are copied alongside capabilities because command rules and
// availability read them. They never produce change events.
var ruleFields = []string{
	AttrEmergencyHeat,
	AttrIsLocked,
	AttrLockedTempMinC,
	AttrLockedTempMaxC,
	AttrCanCool,
	AttrCanHeat,
	AttrSoftwareVersion,
	AttrIsOnline,
	AttrNameLong,
	AttrStructureID,
}

// Capabilities returns the change-reporting attributes of kind.
func Capabilities(kind Kind) []string {
	return append([]string(nil), capabilities[kind]...)
}

// filterAttributes copies the whitelisted attributes of kind out of raw.
// Unknown fields are ignored.
func filterAttributes(kind Kind, raw map[string]any) map[string]any {
	out := make(map[string]any, len(capabilities[kind])+len(ruleFields))
	for _, attr := range capabilities[kind] {
		if v, ok := raw[attr]; ok {
			out[attr] = cloneValue(v)
		}
	}
	for _, attr := range ruleFields {
		if v, ok := raw[attr]; ok {
			out[attr] = cloneValue(v)
		}
	}
	return out
}

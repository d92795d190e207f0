package device

// Alarm names derived from smoke/CO alarm attributes.
const (
	AlarmCO      = "alarm_co"
	AlarmSmoke   = "alarm_smoke"
	AlarmBattery = "alarm_battery"
)

// DeriveAlarm maps a smoke/CO alarm attribute change onto a boolean alarm.
//
// Alarm states are ok, warning and emergency; the alarm is active for
// anything but ok. A move between warning and emergency keeps the alarm
// active and is not reported. Battery health other than ok raises the
// battery alarm.
//
// Returns the alarm name, its value, and false when nothing should be
// reported.
func DeriveAlarm(ev AttributeChanged) (string, bool, bool) {
	if ev.Kind != KindProtect {
		return "", false, false
	}
	next, _ := ev.Value.(string)
	prev, _ := ev.Previous.(string)

	switch ev.Attr {
	case AttrCOAlarmState, AttrSmokeAlarmState:
		if escalated(prev) && escalated(next) {
			return "", false, false
		}
		name := AlarmCO
		if ev.Attr == AttrSmokeAlarmState {
			name = AlarmSmoke
		}
		return name, next != "ok", true
	case AttrBatteryHealth:
		return AlarmBattery, next != "ok", true
	}
	return "", false, false
}

func escalated(state string) bool {
	return state == "warning" || state == "emergency"
}

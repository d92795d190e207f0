package device

import "testing"

func TestDeriveAlarm(t *testing.T) {
	tests := []struct {
		name       string
		ev         AttributeChanged
		wantName   string
		wantActive bool
		wantOK     bool
	}{
		{
			name:       "co raised",
			ev:         AttributeChanged{Kind: KindProtect, Attr: AttrCOAlarmState, Previous: "ok", Value: "warning"},
			wantName:   AlarmCO,
			wantActive: true,
			wantOK:     true,
		},
		{
			name:     "co cleared",
			ev:       AttributeChanged{Kind: KindProtect, Attr: AttrCOAlarmState, Previous: "emergency", Value: "ok"},
			wantName: AlarmCO,
			wantOK:   true,
		},
		{
			name: "smoke escalation suppressed",
			ev:   AttributeChanged{Kind: KindProtect, Attr: AttrSmokeAlarmState, Previous: "warning", Value: "emergency"},
		},
		{
			name: "smoke de-escalation suppressed",
			ev:   AttributeChanged{Kind: KindProtect, Attr: AttrSmokeAlarmState, Previous: "emergency", Value: "warning"},
		},
		{
			name:       "smoke raised",
			ev:         AttributeChanged{Kind: KindProtect, Attr: AttrSmokeAlarmState, Previous: "ok", Value: "emergency"},
			wantName:   AlarmSmoke,
			wantActive: true,
			wantOK:     true,
		},
		{
			name:       "battery replace",
			ev:         AttributeChanged{Kind: KindProtect, Attr: AttrBatteryHealth, Previous: "ok", Value: "replace"},
			wantName:   AlarmBattery,
			wantActive: true,
			wantOK:     true,
		},
		{
			name: "other kind",
			ev:   AttributeChanged{Kind: KindThermostat, Attr: AttrCOAlarmState, Previous: "ok", Value: "warning"},
		},
		{
			name: "other attribute",
			ev:   AttributeChanged{Kind: KindProtect, Attr: "ui_color_state", Previous: "green", Value: "red"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, active, ok := DeriveAlarm(tt.ev)
			if ok != tt.wantOK || name != tt.wantName || active != tt.wantActive {
				t.Errorf("DeriveAlarm() = %q, %v, %v, want %q, %v, %v",
					name, active, ok, tt.wantName, tt.wantActive, tt.wantOK)
			}
		})
	}
}

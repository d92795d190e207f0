package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceState", topics.DeviceState("thermostats", "t1"), "graylogic/nest/device/thermostats/t1/state"},
		{"DeviceEvent", topics.DeviceEvent("smoke_co_alarms", "p1"), "graylogic/nest/device/smoke_co_alarms/p1/event"},
		{"Command", topics.Command("cameras", "c1"), "graylogic/nest/command/cameras/c1"},
		{"CommandAck", topics.CommandAck("cameras", "c1"), "graylogic/nest/ack/cameras/c1"},
		{"Auth", topics.Auth(), "graylogic/nest/auth"},
		{"Structure", topics.Structure("s1"), "graylogic/nest/structure/s1"},
		{"Status", topics.Status(), "graylogic/nest/status"},
		{"AllCommands", topics.AllCommands(), "graylogic/nest/command/+/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantKind string
		wantID   string
		wantOK   bool
	}{
		{"graylogic/nest/command/thermostats/t1", "thermostats", "t1", true},
		{Topics{}.Command("cameras", "abc-123"), "cameras", "abc-123", true},
		{"graylogic/nest/command/thermostats", "", "", false},
		{"graylogic/nest/command/thermostats/t1/extra", "", "", false},
		{"graylogic/nest/command//t1", "", "", false},
		{"graylogic/nest/ack/thermostats/t1", "", "", false},
		{"other/command/thermostats/t1", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, id, ok := ParseCommandTopic(tt.topic)
			if ok != tt.wantOK || kind != tt.wantKind || id != tt.wantID {
				t.Errorf("ParseCommandTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, kind, id, ok, tt.wantKind, tt.wantID, tt.wantOK)
			}
		})
	}
}

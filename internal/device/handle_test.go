package device

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-nest/internal/command"
)

func TestHandle_FirstObservationIsSilent(t *testing.T) {
	_, h, _, log := newThermostatRegistry(nil)

	if evs := log.all(); len(evs) != 0 {
		t.Errorf("events after NewHandle = %+v, want none", evs)
	}
	if v, ok := h.Get(AttrHvacMode); !ok || v != "heat" {
		t.Errorf("Get(hvac_mode) = %v, %v, want heat", v, ok)
	}
}

func TestHandle_IdenticalSnapshotIsSilent(t *testing.T) {
	r, _, _, log := newThermostatRegistry(nil)

	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", nil)})
	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", nil)})

	if evs := log.all(); len(evs) != 0 {
		t.Errorf("events = %+v, want none", evs)
	}
}

func TestHandle_ChangeEmitsOnce(t *testing.T) {
	r, h, _, log := newThermostatRegistry(nil)

	snap := map[string]any{"t1": thermostat("t1", map[string]any{"target_temperature_c": 21.5})}
	r.ReconcileDevices(KindThermostat, snap)
	r.ReconcileDevices(KindThermostat, snap)

	changes := log.changes()
	if len(changes) != 1 {
		t.Fatalf("changes = %+v, want exactly 1", changes)
	}
	c := changes[0]
	if c.Attr != AttrTargetTemperatureC || c.Value != 21.5 || c.Previous != 20.0 {
		t.Errorf("change = %+v, want target 20 -> 21.5", c)
	}
	if c.DeviceID != "t1" || c.Kind != KindThermostat {
		t.Errorf("change identity = %s/%s", c.Kind, c.DeviceID)
	}
	if v, _ := h.Get(AttrTargetTemperatureC); v != 21.5 {
		t.Errorf("cached target = %v, want 21.5", v)
	}
}

func TestHandle_UndefinedValuesAreNotChanges(t *testing.T) {
	r, h, _, log := newThermostatRegistry(map[string]any{"humidity": nil})

	// Undefined -> defined.
	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", nil)})
	// Defined -> undefined.
	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", map[string]any{"humidity": nil})})

	if changes := log.changes(); len(changes) != 0 {
		t.Errorf("changes = %+v, want none", changes)
	}
	if _, ok := h.Get(AttrHumidity); ok {
		t.Error("cache still holds humidity after it disappeared")
	}
}

func TestHandle_RuleFieldsDoNotEmit(t *testing.T) {
	r, _, _, log := newThermostatRegistry(nil)

	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", map[string]any{"can_cool": false})})

	if changes := log.changes(); len(changes) != 0 {
		t.Errorf("changes = %+v, want none for a rule field", changes)
	}
}

func TestHandle_NameFollowsSnapshot(t *testing.T) {
	r, h, _, _ := newThermostatRegistry(nil)

	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", map[string]any{"name_long": "Kitchen"})})

	if got := h.Name(); got != "Kitchen" {
		t.Errorf("Name() = %q, want Kitchen", got)
	}
}

func TestHandle_RemovedOnce(t *testing.T) {
	r, h, w, log := newThermostatRegistry(nil)

	r.ReconcileDevices(KindThermostat, map[string]any{})
	r.ReconcileDevices(KindThermostat, map[string]any{})
	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", map[string]any{"hvac_mode": "cool"})})

	if n := log.removed(); n != 1 {
		t.Errorf("removed events = %d, want 1", n)
	}
	if n := len(log.changes()); n != 0 {
		t.Errorf("changes after removal = %d, want 0", n)
	}
	if !h.Removed() {
		t.Error("Removed() = false")
	}
	if avail, reason := h.Available(); avail || reason != ReasonRemovedExternally {
		t.Errorf("Available() = %v, %q, want false, removed_externally", avail, reason)
	}
	if n := r.HandleCount(); n != 0 {
		t.Errorf("HandleCount() = %d, want 0 after removal", n)
	}

	err := h.SendCommand(context.Background(), AttrHvacMode, "off")
	if !command.IsKind(err, command.KindPreconditionFailed) {
		t.Errorf("SendCommand() on removed handle error = %v, want precondition_failed", err)
	}
	if w.count() != 0 {
		t.Errorf("writes = %d, want 0", w.count())
	}
}

func TestHandle_OfflineAvailability(t *testing.T) {
	r, h, _, log := newThermostatRegistry(nil)

	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", map[string]any{"is_online": false})})
	if avail, reason := h.Available(); avail || reason != ReasonOffline {
		t.Errorf("Available() = %v, %q, want false, offline", avail, reason)
	}

	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", nil)})
	if avail, _ := h.Available(); !avail {
		t.Error("Available() = false after coming back online")
	}

	var avail []AvailabilityChanged
	for _, ev := range log.all() {
		if a, ok := ev.(AvailabilityChanged); ok {
			avail = append(avail, a)
		}
	}
	if len(avail) != 2 || avail[0].Available || !avail[1].Available {
		t.Errorf("availability events = %+v, want offline then online", avail)
	}
}

func TestHandle_SetBlocked(t *testing.T) {
	_, h, _, log := newThermostatRegistry(nil)

	h.SetBlocked(ReasonReconnecting)
	h.SetBlocked(ReasonReconnecting)
	if avail, reason := h.Available(); avail || reason != ReasonReconnecting {
		t.Errorf("Available() = %v, %q, want false, reconnecting", avail, reason)
	}

	h.SetBlocked(ReasonNone)
	if avail, _ := h.Available(); !avail {
		t.Error("Available() = false after block lifted")
	}

	if n := len(log.all()); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
}

func TestHandle_VersionRepairIsSticky(t *testing.T) {
	_, h, _, _ := newThermostatRegistry(nil)

	if !h.CheckAppVersion("1.4.2") {
		t.Fatal("CheckAppVersion(1.4.2) = false, want repair needed")
	}
	h.SetBlocked(ReasonNone)
	h.SetBlocked(ReasonReconnecting)

	if avail, reason := h.Available(); avail || reason != ReasonVersionRepair {
		t.Errorf("Available() = %v, %q, want false, version_repair", avail, reason)
	}
}

func TestHandle_CheckAppVersionCurrent(t *testing.T) {
	_, h, _, _ := newThermostatRegistry(nil)

	if h.CheckAppVersion("2.1.0") {
		t.Error("CheckAppVersion(2.1.0) = true, want no repair")
	}
	if avail, _ := h.Available(); !avail {
		t.Error("Available() = false")
	}
}

func TestHandle_Destroy(t *testing.T) {
	r, h, w, log := newThermostatRegistry(nil)

	h.Destroy()
	h.Destroy()

	if n := r.HandleCount(); n != 0 {
		t.Errorf("HandleCount() = %d, want 0", n)
	}
	r.ReconcileDevices(KindThermostat, map[string]any{})
	if evs := log.all(); len(evs) != 0 {
		t.Errorf("destroyed handle received %+v", evs)
	}
	if err := h.SendCommand(context.Background(), AttrHvacMode, "off"); !errors.Is(err, ErrHandleDestroyed) {
		t.Errorf("SendCommand() error = %v, want ErrHandleDestroyed", err)
	}
	if w.count() != 0 {
		t.Errorf("writes = %d, want 0", w.count())
	}
}

func TestHandle_MultipleHandlesSameDevice(t *testing.T) {
	r, _, _, first := newThermostatRegistry(nil)
	h2, err := r.NewHandle(KindThermostat, "t1")
	if err != nil {
		t.Fatalf("NewHandle() error = %v", err)
	}
	second := &eventLog{}
	h2.Subscribe(second.add)

	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", map[string]any{"hvac_state": "heating"})})

	if len(first.changes()) != 1 || len(second.changes()) != 1 {
		t.Errorf("changes = %d and %d, want 1 each", len(first.changes()), len(second.changes()))
	}
}

func TestHandle_Unsubscribe(t *testing.T) {
	r, h, _, _ := newThermostatRegistry(nil)
	log := &eventLog{}
	unsubscribe := h.Subscribe(log.add)
	unsubscribe()

	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", map[string]any{"hvac_state": "heating"})})

	if evs := log.all(); len(evs) != 0 {
		t.Errorf("unsubscribed listener received %+v", evs)
	}
}

func TestHandle_WriteFailureIsJournaled(t *testing.T) {
	r, h, w, _ := newThermostatRegistry(nil)
	j := &fakeJournal{}
	r.SetJournal(j)
	w.err = &command.Error{Kind: command.KindRejected, Msg: "Invalid value for hvac_mode"}

	err := h.SendCommand(context.Background(), AttrHvacMode, "off")
	if !command.IsKind(err, command.KindRejected) {
		t.Fatalf("SendCommand() error = %v, want rejected", err)
	}
	if len(j.msgs) != 1 {
		t.Fatalf("journal = %v, want one line", j.msgs)
	}
	want := "Hallway Thermostat: setting hvac_mode to off failed: Invalid value for hvac_mode"
	if j.msgs[0] != want {
		t.Errorf("journal line = %q, want %q", j.msgs[0], want)
	}
}

func TestHandle_PathAndIdentity(t *testing.T) {
	_, h, _, _ := newThermostatRegistry(nil)

	if got := h.Path(); got != "devices/thermostats/t1" {
		t.Errorf("Path() = %q", got)
	}
	if h.ID() != "t1" || h.Kind() != KindThermostat {
		t.Errorf("identity = %s/%s", h.Kind(), h.ID())
	}
}

func TestHandle_AttributesReturnsCopy(t *testing.T) {
	_, h, _, _ := newThermostatRegistry(nil)

	attrs := h.Attributes()
	attrs[AttrHvacMode] = "off"

	if v, _ := h.Get(AttrHvacMode); v != "heat" {
		t.Errorf("cache changed through returned map: %v", v)
	}
}

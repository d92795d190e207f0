package device

import (
	"context"
	"sync"
)

type writeCall struct {
	path, attr string
	value      any
}

// fakeWriter records writes and returns err for each.
type fakeWriter struct {
	mu     sync.Mutex
	calls  []writeCall
	err    error
	errFor map[string]error
}

func (w *fakeWriter) Write(_ context.Context, path, attr string, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, writeCall{path: path, attr: attr, value: value})
	if err, ok := w.errFor[attr]; ok {
		return err
	}
	return w.err
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type fakeJournal struct {
	mu   sync.Mutex
	msgs []string
}

func (j *fakeJournal) Record(_ context.Context, msg string, _ map[string]any) {
	j.mu.Lock()
	j.msgs = append(j.msgs, msg)
	j.mu.Unlock()
}

// eventLog collects handle events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) changes() []AttributeChanged {
	var out []AttributeChanged
	for _, ev := range l.all() {
		if c, ok := ev.(AttributeChanged); ok {
			out = append(out, c)
		}
	}
	return out
}

func (l *eventLog) removed() int {
	n := 0
	for _, ev := range l.all() {
		if _, ok := ev.(Removed); ok {
			n++
		}
	}
	return n
}

func structuresSnapshot(away any) map[string]any {
	return map[string]any{
		"s1": map[string]any{"structure_id": "s1", "name": "Home", "away": away},
	}
}

func thermostat(id string, attrs map[string]any) map[string]any {
	entry := map[string]any{
		"device_id":             id,
		"name_long":             "Hallway Thermostat",
		"structure_id":          "s1",
		"hvac_mode":             "heat",
		"can_heat":              true,
		"can_cool":              true,
		"software_version":      "5.6.1",
		"is_online":             true,
		"target_temperature_c":  20.0,
		"ambient_temperature_c": 19.5,
		"humidity":              40.0,
		"hvac_state":            "off",
	}
	for k, v := range attrs {
		if v == nil {
			delete(entry, k)
			continue
		}
		entry[k] = v
	}
	return entry
}

// newThermostatRegistry returns a registry holding one thermostat t1 and
// a handle watching it.
func newThermostatRegistry(attrs map[string]any) (*Registry, *Handle, *fakeWriter, *eventLog) {
	w := &fakeWriter{}
	r := NewRegistry(w)
	r.ReconcileStructures(structuresSnapshot(false))
	r.ReconcileDevices(KindThermostat, map[string]any{"t1": thermostat("t1", attrs)})
	h, err := r.NewHandle(KindThermostat, "t1")
	if err != nil {
		panic(err)
	}
	log := &eventLog{}
	h.Subscribe(log.add)
	return r, h, w, log
}

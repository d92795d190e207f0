package engine

import (
	"time"

	"github.com/nerrad567/gray-logic-nest/internal/device"
)

// EventType names an engine event.
type EventType string

// Engine events. The first five mirror the pairing bridge vocabulary.
const (
	EventAuthenticated      EventType = "authenticated"
	EventUnauthenticated    EventType = "unauthenticated"
	EventURL                EventType = "url"
	EventError              EventType = "error"
	EventInitialized        EventType = "initialized"
	EventDeviceData         EventType = "device.data_changed"
	EventDeviceAvailability EventType = "device.availability_changed"
	EventDeviceRemoved      EventType = "device.removed"
	EventDeviceAlarm        EventType = "device.alarm"
	EventDeviceMotion       EventType = "device.motion"
	EventStructureChanged   EventType = "structure.changed"
)

// Event is the envelope delivered to Subscribe callbacks.
//
// Value carries the payload: the new attribute value for data events, the
// availability for availability events, the alarm state for alarm events,
// a device.MotionEvent for motion events and the result for initialized.
type Event struct {
	Type      EventType         `json:"type"`
	Kind      device.Kind       `json:"kind,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	Attr      string            `json:"attr,omitempty"`
	Value     any               `json:"value,omitempty"`
	Previous  any               `json:"previous,omitempty"`
	Reason    device.Reason     `json:"reason,omitempty"`
	Structure *device.Structure `json:"structure,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// DeviceDataEvent reports one attribute transition of a tracked device.
type DeviceDataEvent struct {
	Kind     device.Kind `json:"kind"`
	DeviceID string      `json:"device_id"`
	Attr     string      `json:"attr"`
	Value    any         `json:"value"`
	Previous any         `json:"previous,omitempty"`
}

// Subscribe registers fn for every engine event and returns a function
// that removes it. fn runs on the goroutine that caused the event and
// must not block.
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

// SubscribeDeviceData registers fn for attribute transitions only.
func (e *Engine) SubscribeDeviceData(fn func(DeviceDataEvent)) func() {
	return e.Subscribe(func(ev Event) {
		if ev.Type != EventDeviceData {
			return
		}
		fn(DeviceDataEvent{
			Kind:     ev.Kind,
			DeviceID: ev.DeviceID,
			Attr:     ev.Attr,
			Value:    ev.Value,
			Previous: ev.Previous,
		})
	})
}

func (e *Engine) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	e.subMu.Lock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

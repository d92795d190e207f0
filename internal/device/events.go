package device

// Event is the union of notifications a Handle delivers:
// AttributeChanged, Removed or AvailabilityChanged.
type Event interface {
	deviceEvent()
}

// AttributeChanged reports a transition between two defined values.
type AttributeChanged struct {
	DeviceID string
	Kind     Kind
	Attr     string
	Value    any
	Previous any
}

// Removed is delivered once when the device leaves the snapshot. The
// handle is detached afterwards.
type Removed struct {
	DeviceID string
	Kind     Kind
}

// AvailabilityChanged reports whether the device can currently be used.
type AvailabilityChanged struct {
	DeviceID  string
	Kind      Kind
	Available bool
	Reason    Reason
}

func (AttributeChanged) deviceEvent()    {}
func (Removed) deviceEvent()             {}
func (AvailabilityChanged) deviceEvent() {}

// StructureChange reports one structure attribute transition. Structure
// carries the new state.
type StructureChange struct {
	Attr      string
	Structure Structure
}

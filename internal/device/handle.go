package device

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/nerrad567/gray-logic-nest/internal/command"
)

// Handle is a consumer's view of one device: cached attributes, change
// events and commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Subscribers run on the reconciling goroutine without locks held.
type Handle struct {
	registry *Registry
	kind     Kind
	id       string

	mu          sync.RWMutex
	name        string
	cache       map[string]any
	removed     bool
	destroyed   bool
	blocked     Reason
	available   bool
	availReason Reason

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	destroyOnce sync.Once
}

func newHandle(r *Registry, d *Device) *Handle {
	h := &Handle{
		registry: r,
		kind:     d.Kind,
		id:       d.ID,
		name:     d.DisplayName,
		cache:    cloneAttributes(d.Attributes),
		subs:     make(map[int]func(Event)),
	}
	h.available, h.availReason = h.computeAvailability()
	return h
}

// ID returns the device id.
func (h *Handle) ID() string { return h.id }

// Kind returns the device kind.
func (h *Handle) Kind() Kind { return h.kind }

// Name returns the last known display name.
func (h *Handle) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.name
}

// Path returns the remote path of the device.
func (h *Handle) Path() string {
	return fmt.Sprintf("devices/%s/%s", h.kind, h.id)
}

// Attributes returns a copy of the cached attributes.
func (h *Handle) Attributes() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneAttributes(h.cache)
}

// Get returns one cached attribute.
func (h *Handle) Get(attr string) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.cache[attr]
	return cloneValue(v), ok
}

// Removed reports whether the device has left the snapshot.
func (h *Handle) Removed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.removed
}

// Available reports the current availability and, when unavailable, why.
func (h *Handle) Available() (bool, Reason) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.available, h.availReason
}

// Subscribe registers fn for this handle's events and returns a function
// that removes it.
func (h *Handle) Subscribe(fn func(Event)) func() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	return func() {
		h.subMu.Lock()
		delete(h.subs, id)
		h.subMu.Unlock()
	}
}

func (h *Handle) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	h.subMu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// checkForChanges diffs attrs against the cache. An AttributeChanged is
// emitted for each capability whose cached and new values are both
// defined and differ; the cache is then replaced with attrs.
func (h *Handle) checkForChanges(attrs map[string]any) {
	h.mu.Lock()
	if h.destroyed || h.removed {
		h.mu.Unlock()
		return
	}

	var events []Event
	for _, attr := range capabilities[h.kind] {
		old, hadOld := h.cache[attr]
		nv, hasNew := attrs[attr]
		if !hadOld || !hasNew || old == nil || nv == nil {
			continue
		}
		if !reflect.DeepEqual(old, nv) {
			events = append(events, AttributeChanged{
				DeviceID: h.id,
				Kind:     h.kind,
				Attr:     attr,
				Value:    cloneValue(nv),
				Previous: old,
			})
		}
	}

	h.cache = attrs
	if name, ok := attrs[AttrNameLong].(string); ok && name != "" {
		h.name = name
	}
	if ev, changed := h.refreshAvailabilityLocked(); changed {
		events = append(events, ev)
	}
	h.mu.Unlock()

	h.emit(events...)
}

// markRemoved delivers the terminal Removed event.
func (h *Handle) markRemoved() {
	h.mu.Lock()
	if h.destroyed || h.removed {
		h.mu.Unlock()
		return
	}
	h.removed = true
	h.available = false
	h.availReason = ReasonRemovedExternally
	h.mu.Unlock()

	h.emit(Removed{DeviceID: h.id, Kind: h.kind})
}

// ============================================================================
// Availability
// ============================================================================

// SetBlocked marks the device unavailable for a session-level reason
// (reconnecting, unauthenticated, version_repair). ReasonNone lifts the
// block; the device is then available unless it reports offline.
func (h *Handle) SetBlocked(reason Reason) {
	h.mu.Lock()
	if h.destroyed || h.removed {
		h.mu.Unlock()
		return
	}
	// A pairing that needs repair stays blocked until re-paired.
	if h.blocked == ReasonVersionRepair && reason != ReasonVersionRepair {
		h.mu.Unlock()
		return
	}
	h.blocked = reason
	ev, changed := h.refreshAvailabilityLocked()
	h.mu.Unlock()

	if changed {
		h.emit(ev)
	}
}

// CheckAppVersion blocks the handle with ReasonVersionRepair when the
// device was paired by an app version older than MinPairedAppVersion.
func (h *Handle) CheckAppVersion(appVersion string) bool {
	if !NeedsRepair(appVersion) {
		return false
	}
	h.SetBlocked(ReasonVersionRepair)
	return true
}

func (h *Handle) computeAvailability() (bool, Reason) {
	if h.removed {
		return false, ReasonRemovedExternally
	}
	if h.blocked != ReasonNone {
		return false, h.blocked
	}
	if online, ok := h.cache[AttrIsOnline].(bool); ok && !online {
		return false, ReasonOffline
	}
	return true, ReasonNone
}

func (h *Handle) refreshAvailabilityLocked() (AvailabilityChanged, bool) {
	avail, reason := h.computeAvailability()
	if avail == h.available && reason == h.availReason {
		return AvailabilityChanged{}, false
	}
	h.available, h.availReason = avail, reason
	return AvailabilityChanged{DeviceID: h.id, Kind: h.kind, Available: avail, Reason: reason}, true
}

// ============================================================================
// Commands
// ============================================================================

// SendCommand writes value to attr after checking the kind's rules. A rule
// violation returns a precondition_failed *command.Error without any
// network traffic. Failures are recorded in the rolling log.
func (h *Handle) SendCommand(ctx context.Context, attr string, value any) error {
	if err := h.usable(); err != nil {
		return err
	}
	if err := checkPreconditions(h.kind, h.Name(), h.Attributes(), attr, value); err != nil {
		h.record(ctx, err, attr, value)
		return err
	}
	return h.write(ctx, attr, value)
}

func (h *Handle) usable() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch {
	case h.destroyed:
		return ErrHandleDestroyed
	case h.removed:
		return command.Precondition(ErrDeviceRemoved.Error())
	}
	return nil
}

// write issues the network write. A handle destroyed while the write was
// in flight ignores the outcome.
func (h *Handle) write(ctx context.Context, attr string, value any) error {
	err := h.registry.writer.Write(ctx, h.Path(), attr, value)

	h.mu.RLock()
	destroyed := h.destroyed
	h.mu.RUnlock()
	if destroyed {
		return err
	}
	if err != nil {
		h.record(ctx, err, attr, value)
	}
	return err
}

func (h *Handle) record(ctx context.Context, err error, attr string, value any) {
	msg := fmt.Sprintf("%s: setting %s to %v failed: %v", h.Name(), attr, value, err)
	var cerr *command.Error
	if errors.As(err, &cerr) {
		msg = fmt.Sprintf("%s: setting %s to %v failed: %s", h.Name(), attr, value, cerr.Message())
	}
	h.registry.journal.Record(ctx, msg, map[string]any{
		"device_id": h.id,
		"kind":      string(h.kind),
		"attr":      attr,
	})
}

// Destroy detaches the handle from the registry and drops subscribers.
// Safe to call more than once.
func (h *Handle) Destroy() {
	h.destroyOnce.Do(func() {
		h.mu.Lock()
		h.destroyed = true
		h.mu.Unlock()

		h.registry.detach(h)

		h.subMu.Lock()
		h.subs = make(map[int]func(Event))
		h.subMu.Unlock()
	})
}

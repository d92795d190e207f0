package device

import (
	"context"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer issues a validated write against the remote source.
// command.Gateway implements it.
type Writer interface {
	Write(ctx context.Context, path, attr string, value any) error
}

// Journal records human-readable failure lines in the rolling log.
type Journal interface {
	Record(ctx context.Context, msg string, details map[string]any)
}

type noopJournal struct{}

func (noopJournal) Record(context.Context, string, map[string]any) {}

// Registry holds the canonical structure and device mappings.
//
// Thread Safety:
//   - reconcileMu serialises whole reconciles, including event dispatch.
//   - mu guards the mappings; lookups only take it for reading.
type Registry struct {
	reconcileMu sync.Mutex

	mu         sync.RWMutex
	structures map[string]structureEntry
	devices    map[Kind]map[string]*Device
	handles    map[string]map[*Handle]struct{}

	subMu      sync.Mutex
	structSubs map[int]func(StructureChange)
	nextSub    int

	writer  Writer
	journal Journal
	logger  Logger
}

// NewRegistry creates an empty Registry. Handles created from it write
// through w.
func NewRegistry(w Writer) *Registry {
	r := &Registry{
		structures: make(map[string]structureEntry),
		devices:    make(map[Kind]map[string]*Device, len(Kinds)),
		handles:    make(map[string]map[*Handle]struct{}),
		structSubs: make(map[int]func(StructureChange)),
		writer:     w,
		journal:    noopJournal{},
		logger:     noopLogger{},
	}
	for _, k := range Kinds {
		r.devices[k] = make(map[string]*Device)
	}
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetJournal sets where handles record failed commands.
func (r *Registry) SetJournal(j Journal) {
	r.journal = j
}

// SubscribeStructures registers fn for structure attribute changes and
// returns a function that removes it.
func (r *Registry) SubscribeStructures(fn func(StructureChange)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.structSubs[id] = fn
	return func() {
		r.subMu.Lock()
		delete(r.structSubs, id)
		r.subMu.Unlock()
	}
}

// ============================================================================
// Reconciliation
// ============================================================================

// ReconcileStructures replaces the structure mapping with snapshot and
// emits one StructureChange per scalar attribute whose previous and new
// values are both known and differ. A nil or empty snapshot empties the
// mapping.
func (r *Registry) ReconcileStructures(snapshot map[string]any) {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	next := make(map[string]structureEntry, len(snapshot))
	for key, raw := range snapshot {
		entry, ok := raw.(map[string]any)
		if !ok {
			r.logSync(&SyncError{Kind: SyncMalformedSnapshot, Reason: "structure " + key + " is not an object"})
			continue
		}
		se, ok := parseStructure(key, entry)
		if !ok {
			r.logSync(&SyncError{Kind: SyncMalformedSnapshot, Reason: "structure " + key + " has no id"})
			continue
		}
		next[se.ID] = se
	}

	r.mu.Lock()
	prev := r.structures
	r.structures = next
	r.mu.Unlock()

	var changes []StructureChange
	for id, se := range next {
		old, ok := prev[id]
		if !ok {
			continue
		}
		for _, attr := range structureAttrs {
			ov, hadOld := old.attrs[attr]
			nv, hasNew := se.attrs[attr]
			if hadOld && hasNew && ov != nv {
				changes = append(changes, StructureChange{Attr: attr, Structure: se.Structure})
			}
		}
	}
	// Stable order for subscribers.
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Structure.ID != changes[j].Structure.ID {
			return changes[i].Structure.ID < changes[j].Structure.ID
		}
		return changes[i].Attr < changes[j].Attr
	})

	r.dispatchStructureChanges(changes)
}

// structureAttrs are the scalar structure attributes that are diffed.
var structureAttrs = []string{"away", "name"}

// structureEntry keeps the attributes that were actually present in the
// snapshot, so an absent value is never compared against a present one.
type structureEntry struct {
	Structure
	attrs map[string]any
}

// parseStructure reads one structure entry. The id comes from
// structure_id, falling back to the map key.
func parseStructure(key string, entry map[string]any) (structureEntry, bool) {
	id, _ := entry["structure_id"].(string)
	if id == "" {
		id = key
	}
	if id == "" {
		return structureEntry{}, false
	}
	se := structureEntry{Structure: Structure{ID: id}, attrs: make(map[string]any, len(structureAttrs))}
	if name, ok := entry["name"].(string); ok {
		se.Name = name
		se.attrs["name"] = name
	}
	if raw, ok := entry["away"]; ok && raw != nil {
		se.Away = parseAway(raw)
		se.attrs["away"] = se.Away
	}
	return se, true
}

// parseAway accepts a bool or one of home, away, auto-away. Anything other
// than false or "home" is away.
func parseAway(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "home"
	default:
		return false
	}
}

func (r *Registry) dispatchStructureChanges(changes []StructureChange) {
	if len(changes) == 0 {
		return
	}
	r.subMu.Lock()
	fns := make([]func(StructureChange), 0, len(r.structSubs))
	for _, fn := range r.structSubs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// ReconcileDevices replaces the mapping of kind with snapshot.
//
// Entries missing device_id, name_long or structure_id are dropped and
// logged. The structure name is resolved against the structures known
// right now; an unknown structure leaves StructureName nil. Watched
// devices hand their new attributes to their handles; watched devices
// missing from the snapshot send their handles a single Removed and
// detach them.
func (r *Registry) ReconcileDevices(kind Kind, snapshot map[string]any) {
	if _, err := ParseKind(string(kind)); err != nil {
		r.logger.Warn("ignoring snapshot for unknown kind", "kind", string(kind))
		return
	}

	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	r.mu.RLock()
	structures := r.structures
	otherKinds := make(map[string]Kind)
	for k, devs := range r.devices {
		if k == kind {
			continue
		}
		for id := range devs {
			otherKinds[id] = k
		}
	}
	r.mu.RUnlock()

	next := make(map[string]*Device, len(snapshot))
	for key, raw := range snapshot {
		entry, ok := raw.(map[string]any)
		if !ok {
			r.logSync(&SyncError{Kind: SyncMalformedSnapshot, DeviceID: key, Reason: "entry is not an object"})
			continue
		}
		d, reason := parseDevice(kind, entry)
		if d == nil {
			r.logSync(&SyncError{Kind: SyncMalformedSnapshot, DeviceID: key, Reason: reason})
			continue
		}
		if other, dup := otherKinds[d.ID]; dup {
			r.logSync(&SyncError{Kind: SyncMalformedSnapshot, DeviceID: d.ID, Reason: "id already used by " + string(other)})
			continue
		}
		if s, ok := structures[d.StructureID]; ok {
			name := s.Name
			d.StructureName = &name
		} else {
			r.logSync(&SyncError{Kind: SyncStructureUnresolved, DeviceID: d.ID, Reason: "structure " + d.StructureID + " not known"})
		}
		next[d.ID] = d
	}

	type update struct {
		h     *Handle
		attrs map[string]any
	}
	var updates []update
	var removed []*Handle

	r.mu.Lock()
	r.devices[kind] = next
	for id, set := range r.handles {
		for h := range set {
			if h.kind != kind {
				continue
			}
			if d, ok := next[id]; ok {
				updates = append(updates, update{h: h, attrs: cloneAttributes(d.Attributes)})
			} else {
				removed = append(removed, h)
				delete(set, h)
			}
		}
		if len(set) == 0 {
			delete(r.handles, id)
		}
	}
	r.mu.Unlock()

	for _, u := range updates {
		u.h.checkForChanges(u.attrs)
	}
	for _, h := range removed {
		h.markRemoved()
	}
}

// parseDevice builds a Device from a raw entry, or explains why it cannot.
func parseDevice(kind Kind, entry map[string]any) (*Device, string) {
	id, _ := entry[AttrDeviceID].(string)
	if id == "" {
		return nil, "missing device_id"
	}
	name, _ := entry[AttrNameLong].(string)
	if name == "" {
		return nil, "missing name_long"
	}
	structureID, _ := entry[AttrStructureID].(string)
	if structureID == "" {
		return nil, "missing structure_id"
	}
	return &Device{
		ID:          id,
		Kind:        kind,
		DisplayName: name,
		StructureID: structureID,
		Attributes:  filterAttributes(kind, entry),
	}, ""
}

func (r *Registry) logSync(err *SyncError) {
	r.logger.Warn("snapshot entry problem", "kind", string(err.Kind), "device_id", err.DeviceID, "reason", err.Reason)
}

// Reset empties both mappings without notifying handles. Handles stay
// attached; the next device snapshot decides whether they see changes or
// a removal.
func (r *Registry) Reset() {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	r.mu.Lock()
	r.structures = make(map[string]structureEntry)
	for _, k := range Kinds {
		r.devices[k] = make(map[string]*Device)
	}
	r.mu.Unlock()
}

// ============================================================================
// Lookups
// ============================================================================

// Structures returns all structures sorted by id.
func (r *Registry) Structures() []Structure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Structure, 0, len(r.structures))
	for _, se := range r.structures {
		out = append(out, se.Structure)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Structure returns one structure by id.
func (r *Registry) Structure(id string) (Structure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	se, ok := r.structures[id]
	return se.Structure, ok
}

// Devices returns copies of every device of kind sorted by id.
func (r *Registry) Devices(kind Kind) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	devs := r.devices[kind]
	out := make([]*Device, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Device returns a copy of one device, or ErrDeviceNotFound.
func (r *Registry) Device(kind Kind, id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[kind][id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.Clone(), nil
}

// DeviceCount returns the number of devices across all kinds.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, devs := range r.devices {
		n += len(devs)
	}
	return n
}

// StructureCount returns the number of structures.
func (r *Registry) StructureCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.structures)
}

// ============================================================================
// Handles
// ============================================================================

// NewHandle creates a handle for a device currently in the registry.
// The handle's cache is seeded from the current entry, so values already
// known are not reported as changes.
func (r *Registry) NewHandle(kind Kind, id string) (*Handle, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[kind][id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	h := newHandle(r, d)
	set := r.handles[id]
	if set == nil {
		set = make(map[*Handle]struct{})
		r.handles[id] = set
	}
	set[h] = struct{}{}
	return h, nil
}

// detach removes h from the watch list. Safe to call more than once.
func (r *Registry) detach(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.handles[h.id]; ok {
		delete(set, h)
		if len(set) == 0 {
			delete(r.handles, h.id)
		}
	}
}

// HandleCount returns the number of attached handles.
func (r *Registry) HandleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.handles {
		n += len(set)
	}
	return n
}

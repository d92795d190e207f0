package stream

import "strings"

// Snapshot is the tree as of the latest put, split the way consumers
// reconcile it. Maps are copies owned by the receiver.
type Snapshot struct {
	// Structures is keyed by structure id; nil when the tree has none.
	Structures map[string]any
	// Devices is keyed by kind ("thermostats", "smoke_co_alarms",
	// "cameras"), then by device id. Only kinds present in the tree are
	// listed.
	Devices map[string]map[string]any
	// Full is set when the put replaced the whole tree. Kinds and
	// structures missing from a full snapshot no longer exist.
	Full bool

	// path is the put that produced the snapshot, split into segments.
	path []string
}

// TouchesStructures reports whether the put may have changed the
// structures collection. When it did, a nil Structures means the
// collection is gone.
func (s Snapshot) TouchesStructures() bool {
	return s.Full || len(s.path) == 0 || s.path[0] == "structures"
}

// TouchesKind reports whether the put may have changed the devices of
// kind. When it did, a kind missing from Devices has no devices left.
func (s Snapshot) TouchesKind(kind string) bool {
	if s.Full || len(s.path) == 0 {
		return true
	}
	if s.path[0] != "devices" {
		return false
	}
	return len(s.path) == 1 || s.path[1] == kind
}

// tree is the connection-local mirror of the remote data.
type tree struct {
	root map[string]any
}

// put replaces the subtree at path with data. Missing parents are
// created; a nil data deletes the key.
func (t *tree) put(path string, data any) {
	segs := splitPath(path)
	if len(segs) == 0 {
		m, _ := data.(map[string]any)
		t.root = m
		return
	}
	if t.root == nil {
		t.root = make(map[string]any)
	}
	node := t.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	last := segs[len(segs)-1]
	if data == nil {
		delete(node, last)
		return
	}
	node[last] = data
}

// snapshot copies the structures and device collections out of the tree.
func (t *tree) snapshot() Snapshot {
	var s Snapshot
	if m, ok := t.root["structures"].(map[string]any); ok {
		s.Structures = cloneMap(m)
	}
	s.Devices = make(map[string]map[string]any)
	if devs, ok := t.root["devices"].(map[string]any); ok {
		for kind, raw := range devs {
			if m, ok := raw.(map[string]any); ok {
				s.Devices[kind] = cloneMap(m)
			}
		}
	}
	return s
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneAny(inner)
		}
		return s
	default:
		return v
	}
}

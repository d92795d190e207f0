package session

// EventType names a session lifecycle transition.
type EventType string

// Session events.
const (
	EventAuthenticated   EventType = "authenticated"
	EventUnauthenticated EventType = "unauthenticated"
)

// Event is delivered to subscribers on every lifecycle transition.
// Err is set when an unauthenticated event follows a failed attempt.
type Event struct {
	Type EventType
	Err  error
}

// Subscribe registers fn for session events and returns a function that
// removes it. fn is called synchronously on the goroutine that caused the
// transition and must not block.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) emit(ev Event) {
	m.subMu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

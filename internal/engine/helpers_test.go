package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-nest/internal/audit"
	"github.com/nerrad567/gray-logic-nest/internal/remote"
	"github.com/nerrad567/gray-logic-nest/internal/stream"
)

type memStore struct {
	mu    sync.Mutex
	token string
}

func (s *memStore) Credential(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memStore) SetCredential(_ context.Context, tok string) error {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return nil
}

func (s *memStore) ClearCredential(ctx context.Context) error {
	return s.SetCredential(ctx, "")
}

func (s *memStore) MigrateLegacyCredential(context.Context) (bool, error) {
	return false, nil
}

type putCall struct {
	path string
	body any
}

type fakeRemote struct {
	mu      sync.Mutex
	version int
	puts    []putCall
	revoked []string
	// metadataFailures fails that many handshakes with a network error.
	metadataFailures int
}

func (r *fakeRemote) Metadata(context.Context, string) (remote.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metadataFailures > 0 {
		r.metadataFailures--
		return remote.Metadata{}, errors.New("dial tcp: connection refused")
	}
	return remote.Metadata{ClientVersion: r.version}, nil
}

func (r *fakeRemote) Revoke(_ context.Context, token string) error {
	r.mu.Lock()
	r.revoked = append(r.revoked, token)
	r.mu.Unlock()
	return nil
}

func (r *fakeRemote) Get(_ context.Context, _, path string) (any, error) {
	return map[string]any{"path": path}, nil
}

func (r *fakeRemote) Put(_ context.Context, _, path string, body any) (any, error) {
	r.mu.Lock()
	r.puts = append(r.puts, putCall{path: path, body: body})
	r.mu.Unlock()
	return body, nil
}

func (r *fakeRemote) putCalls() []putCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]putCall(nil), r.puts...)
}

type memLog struct {
	mu    sync.Mutex
	items []audit.LogItem
}

func (l *memLog) Append(_ context.Context, item *audit.LogItem) error {
	l.mu.Lock()
	l.items = append(l.items, *item)
	l.mu.Unlock()
	return nil
}

func (l *memLog) List(context.Context) ([]audit.LogItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]audit.LogItem(nil), l.items...), nil
}

type fakeAuthorizer struct {
	token string
}

func (a *fakeAuthorizer) AuthCodeURL() (string, string) {
	return "https://auth.example.invalid/login?state=abc", "abc"
}

func (a *fakeAuthorizer) Exchange(_ context.Context, state, _ string) (string, error) {
	if state != "abc" {
		return "", remote.ErrInvalidState
	}
	return a.token, nil
}

// remoteTree serves the stream endpoint: every connection gets the
// current root, then frames pushed by the test.
type remoteTree struct {
	*httptest.Server
	conns atomic.Int32

	mu   sync.Mutex
	root map[string]any
	push chan map[string]any
}

func newRemoteTree(t *testing.T, root map[string]any) *remoteTree {
	t.Helper()
	rt := &remoteTree{root: root, push: make(chan map[string]any, 16)}
	upgrader := websocket.Upgrader{}
	rt.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.conns.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		rt.mu.Lock()
		root := rt.root
		rt.mu.Unlock()
		if err := conn.WriteJSON(map[string]any{"event": "put", "path": "/", "data": root}); err != nil {
			return
		}

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		for {
			select {
			case f := <-rt.push:
				if err := conn.WriteJSON(f); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	}))
	t.Cleanup(rt.Close)
	return rt
}

func (rt *remoteTree) wsURL() string {
	return "ws" + strings.TrimPrefix(rt.URL, "http")
}

func (rt *remoteTree) put(path string, data any) {
	rt.push <- map[string]any{"event": "put", "path": path, "data": data}
}

func thermostatEntry(id, structureID string, target float64) map[string]any {
	return map[string]any{
		"device_id":            id,
		"name_long":            "Thermostat " + id,
		"structure_id":         structureID,
		"hvac_mode":            "heat",
		"can_heat":             true,
		"can_cool":             true,
		"is_online":            true,
		"software_version":     "5.6.1",
		"target_temperature_c": target,
	}
}

func testRoot() map[string]any {
	return map[string]any{
		"structures": map[string]any{
			"s1": map[string]any{"structure_id": "s1", "name": "Home", "away": "home"},
		},
		"devices": map[string]any{
			"thermostats": map[string]any{
				"t1": thermostatEntry("t1", "s1", 20),
			},
			"smoke_co_alarms": map[string]any{
				"p1": map[string]any{
					"device_id": "p1", "name_long": "Hallway Protect", "structure_id": "s1",
					"co_alarm_state": "ok", "smoke_alarm_state": "ok", "battery_health": "ok",
				},
			},
			"cameras": map[string]any{
				"c1": map[string]any{
					"device_id": "c1", "name_long": "Porch Cam", "structure_id": "s1",
					"is_streaming": true,
				},
			},
		},
	}
}

type harness struct {
	engine *Engine
	store  *memStore
	remote *fakeRemote
	log    *memLog
	tree   *remoteTree

	mu     sync.Mutex
	events []Event
}

func newHarness(t *testing.T, token string, version int, streamCfg stream.Config) *harness {
	t.Helper()
	h := &harness{
		store:  &memStore{token: token},
		remote: &fakeRemote{version: version},
		log:    &memLog{},
		tree:   newRemoteTree(t, testRoot()),
	}
	streamCfg.URL = h.tree.wsURL()
	if streamCfg.OpenTimeout == 0 {
		streamCfg.OpenTimeout = 2 * time.Second
	}

	e, err := New(Deps{
		Store:       h.store,
		Log:         h.log,
		Remote:      h.remote,
		Authorizer:  &fakeAuthorizer{token: "fresh-token"},
		Stream:      streamCfg,
		AppVersion:  "3.1.0",
		AuthTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.engine = e
	e.Subscribe(func(ev Event) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
	})
	t.Cleanup(func() { e.Stop() }) //nolint:errcheck // Test cleanup
	return h
}

func (h *harness) ofType(typ EventType) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

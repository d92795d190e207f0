package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeSession is a Session with a fixed token.
type fakeSession struct {
	mu       sync.Mutex
	token    string
	revoked  atomic.Int32
	onRevoke func()
}

func (s *fakeSession) IsAuthenticated() bool { return s.AccessToken() != "" }

func (s *fakeSession) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) OnAuthenticationRevokedExternally() {
	s.revoked.Add(1)
	s.mu.Lock()
	s.token = ""
	fn := s.onRevoke
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// recorder is a Sink that keeps every snapshot.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
	hook  func()
}

func (r *recorder) Snapshot(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) at(i int) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[i]
}

// streamServer is a WebSocket peer running script on every connection.
type streamServer struct {
	*httptest.Server
	conns  atomic.Int32
	reject atomic.Int32
	auth   atomic.Value
}

func newStreamServer(t *testing.T, script func(conn *websocket.Conn, n int32)) *streamServer {
	t.Helper()
	ss := &streamServer{}
	upgrader := websocket.Upgrader{}
	ss.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ss.auth.Store(r.Header.Get("Authorization"))
		n := ss.conns.Add(1)
		if code := ss.reject.Load(); code != 0 {
			http.Error(w, "unauthorized", int(code))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn, n)
	}))
	t.Cleanup(ss.Close)
	return ss
}

func (ss *streamServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ss.URL, "http")
}

func sendPut(conn *websocket.Conn, path string, data any) error {
	return conn.WriteJSON(map[string]any{"event": eventPut, "path": path, "data": data})
}

// drain blocks until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func rootData() map[string]any {
	return map[string]any{
		"structures": map[string]any{
			"s1": map[string]any{"structure_id": "s1", "name": "Home", "away": "home"},
		},
		"devices": map[string]any{
			"thermostats": map[string]any{
				"t1": map[string]any{"device_id": "t1", "hvac_mode": "heat"},
			},
		},
	}
}

func putRootAndWait(conn *websocket.Conn, _ int32) {
	if err := sendPut(conn, "/", rootData()); err != nil {
		return
	}
	drain(conn)
}

func newTestChannel(t *testing.T, url string, cfg Config, s Session, sink Sink) *Channel {
	t.Helper()
	cfg.URL = url
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 2 * time.Second
	}
	ch := NewChannel(cfg, s, sink)
	t.Cleanup(func() { ch.Close() }) //nolint:errcheck // Test cleanup
	return ch
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

func TestOpen_DeliversFirstSnapshot(t *testing.T) {
	ss := newStreamServer(t, putRootAndWait)
	rec := &recorder{}
	ch := newTestChannel(t, ss.wsURL(), Config{}, &fakeSession{token: "tok"}, rec)

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("snapshots = %d, want 1", rec.count())
	}
	snap := rec.at(0)
	if !snap.Full {
		t.Error("root put not marked Full")
	}
	if _, ok := snap.Structures["s1"]; !ok {
		t.Errorf("Structures = %v, want s1", snap.Structures)
	}
	if _, ok := snap.Devices["thermostats"]["t1"]; !ok {
		t.Errorf("Devices = %v, want thermostats/t1", snap.Devices)
	}
	if got := ss.auth.Load(); got != "Bearer tok" {
		t.Errorf("Authorization = %v, want Bearer tok", got)
	}
	if got := ch.State(); got != StateOpen {
		t.Errorf("State() = %q, want open", got)
	}
}

func TestOpen_NotAuthenticated(t *testing.T) {
	ss := newStreamServer(t, putRootAndWait)
	ch := newTestChannel(t, ss.wsURL(), Config{}, &fakeSession{}, &recorder{})

	if err := ch.Open(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Open() error = %v, want ErrNotAuthenticated", err)
	}
	if n := ss.conns.Load(); n != 0 {
		t.Errorf("connections = %d, want 0", n)
	}
}

func TestOpen_Timeout(t *testing.T) {
	ss := newStreamServer(t, func(conn *websocket.Conn, _ int32) { drain(conn) })
	ch := newTestChannel(t, ss.wsURL(), Config{OpenTimeout: 100 * time.Millisecond}, &fakeSession{token: "tok"}, &recorder{})

	if err := ch.Open(context.Background()); !errors.Is(err, ErrOpenTimeout) {
		t.Fatalf("Open() error = %v, want ErrOpenTimeout", err)
	}
	if got := ch.State(); got == StateClosed {
		t.Error("channel closed after open timeout, want it still running")
	}
}

func TestOpen_UnauthorizedDial(t *testing.T) {
	ss := newStreamServer(t, putRootAndWait)
	ss.reject.Store(http.StatusUnauthorized)

	sess := &fakeSession{token: "stale"}
	ch := newTestChannel(t, ss.wsURL(), Config{}, sess, &recorder{})
	// Session teardown closes the channel from inside the revoked path.
	sess.onRevoke = func() { ch.Close() } //nolint:errcheck // Always nil

	err := ch.Open(context.Background())
	if !IsKind(err, KindAuthRevoked) {
		t.Fatalf("Open() error = %v, want auth_revoked", err)
	}
	if n := sess.revoked.Load(); n != 1 {
		t.Errorf("revocations = %d, want 1", n)
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %q, want closed", got)
	}

	time.Sleep(100 * time.Millisecond)
	if n := ss.conns.Load(); n != 1 {
		t.Errorf("connections = %d, want no reconnect after 401", n)
	}
}

func TestAuthRevokedFrame(t *testing.T) {
	ss := newStreamServer(t, func(conn *websocket.Conn, _ int32) {
		if err := sendPut(conn, "/", rootData()); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
		if err := conn.WriteJSON(map[string]any{"event": eventAuthRevoked}); err != nil {
			return
		}
		drain(conn)
	})
	sess := &fakeSession{token: "tok"}
	ch := newTestChannel(t, ss.wsURL(), Config{}, sess, &recorder{})

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitFor(t, "revocation", func() bool { return sess.revoked.Load() == 1 })

	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %q, want closed", got)
	}
	time.Sleep(100 * time.Millisecond)
	if n := ss.conns.Load(); n != 1 {
		t.Errorf("connections = %d, want no reconnect after auth_revoked", n)
	}
}

func TestReconnect_FirstAttemptImmediate(t *testing.T) {
	ss := newStreamServer(t, func(conn *websocket.Conn, n int32) {
		if err := sendPut(conn, "/", rootData()); err != nil {
			return
		}
		if n == 1 {
			return // drop the connection
		}
		drain(conn)
	})
	rec := &recorder{}
	// A long backoff would fail the wait below if the first retry waited.
	cfg := Config{Backoff: BackoffConfig{Initial: 10 * time.Second}}
	ch := newTestChannel(t, ss.wsURL(), cfg, &fakeSession{token: "tok"}, rec)

	var states []State
	var mu sync.Mutex
	ch.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitFor(t, "second snapshot", func() bool { return rec.count() >= 2 })

	mu.Lock()
	defer mu.Unlock()
	sawReconnecting := false
	for _, s := range states {
		if s == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Errorf("states = %v, want reconnecting", states)
	}
}

func TestErrorFrameReconnects(t *testing.T) {
	ss := newStreamServer(t, func(conn *websocket.Conn, n int32) {
		if err := sendPut(conn, "/", rootData()); err != nil {
			return
		}
		if n == 1 {
			_ = conn.WriteJSON(map[string]any{"event": eventError, "message": "boom"}) //nolint:errcheck // Test peer
		}
		drain(conn)
	})
	rec := &recorder{}
	ch := newTestChannel(t, ss.wsURL(), Config{}, &fakeSession{token: "tok"}, rec)

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitFor(t, "reconnect", func() bool { return ss.conns.Load() >= 2 && rec.count() >= 2 })
}

func TestScheduledRestart(t *testing.T) {
	ss := newStreamServer(t, putRootAndWait)
	rec := &recorder{}
	cfg := Config{RestartInterval: 100 * time.Millisecond}
	ch := newTestChannel(t, ss.wsURL(), cfg, &fakeSession{token: "tok"}, rec)

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitFor(t, "restart", func() bool { return ss.conns.Load() >= 2 && rec.count() >= 2 })

	first, second := rec.at(0), rec.at(1)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshot after restart differs:\n%v\n%v", first, second)
	}
}

func TestKeepAliveRefreshesDeadline(t *testing.T) {
	ss := newStreamServer(t, func(conn *websocket.Conn, _ int32) {
		if err := sendPut(conn, "/", rootData()); err != nil {
			return
		}
		for range 10 {
			time.Sleep(30 * time.Millisecond)
			if err := conn.WriteJSON(map[string]any{"event": eventKeepAlive}); err != nil {
				return
			}
		}
		drain(conn)
	})
	cfg := Config{KeepAliveTimeout: 100 * time.Millisecond}
	ch := newTestChannel(t, ss.wsURL(), cfg, &fakeSession{token: "tok"}, &recorder{})

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	if n := ss.conns.Load(); n != 1 {
		t.Errorf("connections = %d, want 1 while keep-alives flow", n)
	}
}

func TestSilentConnectionReconnects(t *testing.T) {
	ss := newStreamServer(t, putRootAndWait)
	cfg := Config{KeepAliveTimeout: 100 * time.Millisecond}
	ch := newTestChannel(t, ss.wsURL(), cfg, &fakeSession{token: "tok"}, &recorder{})

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitFor(t, "reconnect after silence", func() bool { return ss.conns.Load() >= 2 })
}

func TestPartialPut(t *testing.T) {
	ss := newStreamServer(t, func(conn *websocket.Conn, _ int32) {
		if err := sendPut(conn, "/", rootData()); err != nil {
			return
		}
		if err := sendPut(conn, "/devices/thermostats/t1/hvac_mode", "cool"); err != nil {
			return
		}
		drain(conn)
	})
	rec := &recorder{}
	ch := newTestChannel(t, ss.wsURL(), Config{}, &fakeSession{token: "tok"}, rec)

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	waitFor(t, "second snapshot", func() bool { return rec.count() >= 2 })

	snap := rec.at(1)
	if snap.Full {
		t.Error("partial put marked Full")
	}
	t1, _ := snap.Devices["thermostats"]["t1"].(map[string]any)
	if t1["hvac_mode"] != "cool" {
		t.Errorf("t1 = %v, want hvac_mode cool", t1)
	}
}

func TestClose_ReOpen(t *testing.T) {
	ss := newStreamServer(t, putRootAndWait)
	rec := &recorder{}
	ch := newTestChannel(t, ss.wsURL(), Config{}, &fakeSession{token: "tok"}, rec)

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() after Close = %q, want closed", got)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	if n := ss.conns.Load(); n != 2 {
		t.Errorf("connections = %d, want 2", n)
	}
	if rec.count() != 2 {
		t.Errorf("snapshots = %d, want 2", rec.count())
	}
}

func TestClose_WaitsForSink(t *testing.T) {
	ss := newStreamServer(t, putRootAndWait)
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	var sinkDone atomic.Bool
	rec.hook = func() {
		close(entered)
		<-release
		sinkDone.Store(true)
	}
	ch := newTestChannel(t, ss.wsURL(), Config{}, &fakeSession{token: "tok"}, rec)

	go ch.Open(context.Background()) //nolint:errcheck // Result observed through the sink
	<-entered

	closed := make(chan struct{})
	go func() {
		ch.Close() //nolint:errcheck // Always nil
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close() returned while the sink was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return after the sink finished")
	}
	if !sinkDone.Load() {
		t.Error("sink unfinished when Close() returned")
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %q, want closed", got)
	}
}

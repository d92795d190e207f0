package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Logger defines the logging interface used by the Channel.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is the part of session.Manager the channel depends on.
type Session interface {
	IsAuthenticated() bool
	AccessToken() string
	OnAuthenticationRevokedExternally()
}

// Sink receives every snapshot. It is called from the channel's loop, one
// snapshot at a time.
type Sink interface {
	Snapshot(s Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

// Snapshot calls f(s).
func (f SinkFunc) Snapshot(s Snapshot) { f(s) }

// State is the channel lifecycle state.
type State string

// Channel states.
const (
	StateClosed       State = "closed"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
)

// Frame events.
const (
	eventPut         = "put"
	eventKeepAlive   = "keep-alive"
	eventAuthRevoked = "auth_revoked"
	eventError       = "error"
)

// Defaults applied by NewChannel to zero Config durations.
const (
	DefaultOpenTimeout      = 30 * time.Second
	DefaultKeepAliveTimeout = 90 * time.Second
	DefaultRestartInterval  = 30 * time.Minute
)

// Config holds channel settings.
type Config struct {
	// URL is the ws:// or wss:// stream endpoint.
	URL string
	// OpenTimeout bounds the dial and Open's wait for the first snapshot.
	OpenTimeout time.Duration
	// KeepAliveTimeout is the longest silence tolerated before the
	// connection is considered dead.
	KeepAliveTimeout time.Duration
	// RestartInterval forces a fresh connection this often.
	RestartInterval time.Duration
	// Backoff shapes reconnect delays after the first immediate retry.
	Backoff BackoffConfig
}

type frame struct {
	Event   string `json:"event"`
	Path    string `json:"path,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type frameResult struct {
	frame frame
	err   error
}

// run is one Open..Close lifetime of the loop.
type run struct {
	cancel    context.CancelFunc
	exited    chan struct{}
	first     chan struct{}
	firstOnce sync.Once

	mu  sync.Mutex
	err error
}

func (r *run) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *run) terminalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Channel is the persistent subscription to the remote data tree.
//
// Thread Safety:
//   - Open, Close and State are safe for concurrent use.
//   - Close waits for a Sink call in progress, so the Sink must not call
//     Close or anything that ends the session.
type Channel struct {
	cfg     Config
	session Session
	sink    Sink
	dialer  *websocket.Dialer
	logger  Logger

	mu      sync.Mutex
	state   State
	current *run

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewChannel creates a closed channel that will hand snapshots to sink.
func NewChannel(cfg Config, s Session, sink Sink) *Channel {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.KeepAliveTimeout <= 0 {
		cfg.KeepAliveTimeout = DefaultKeepAliveTimeout
	}
	if cfg.RestartInterval <= 0 {
		cfg.RestartInterval = DefaultRestartInterval
	}
	return &Channel{
		cfg:     cfg,
		session: s,
		sink:    sink,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.OpenTimeout,
		},
		logger: noopLogger{},
		state:  StateClosed,
		subs:   make(map[int]func(State)),
	}
}

// SetLogger sets the logger for the channel.
func (c *Channel) SetLogger(logger Logger) {
	c.logger = logger
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for state transitions and returns a function
// that removes it.
func (c *Channel) Subscribe(fn func(State)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// transition moves to st. A non-nil r only transitions while r is the
// attached run, so a detached loop cannot change the state.
func (c *Channel) transition(r *run, st State) {
	c.mu.Lock()
	if r != nil && c.current != r {
		c.mu.Unlock()
		return
	}
	if c.state == st {
		c.mu.Unlock()
		return
	}
	c.state = st
	c.mu.Unlock()

	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

// Open starts the subscription and waits for the first snapshot.
//
// Returns:
//   - nil once a snapshot has been handed to the Sink
//   - ErrNotAuthenticated when the session has no credential
//   - ErrOpenTimeout after OpenTimeout; the channel keeps connecting
//   - a *ChannelError of KindAuthRevoked when the credential was refused
//
// Calling Open on a running channel only waits for its first snapshot.
func (c *Channel) Open(ctx context.Context) error {
	if !c.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	r := c.current
	var runCtx context.Context
	if r == nil {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithCancel(context.Background())
		r = &run{
			cancel: cancel,
			exited: make(chan struct{}),
			first:  make(chan struct{}),
		}
		c.current = r
	}
	c.mu.Unlock()

	if runCtx != nil {
		c.transition(r, StateConnecting)
		go c.loop(runCtx, r)
	}
	return c.awaitFirst(ctx, r)
}

func (c *Channel) awaitFirst(ctx context.Context, r *run) error {
	timer := time.NewTimer(c.cfg.OpenTimeout)
	defer timer.Stop()

	select {
	case <-r.first:
		return nil
	case <-r.exited:
		if err := r.terminalErr(); err != nil {
			return err
		}
		return ErrClosed
	case <-timer.C:
		return ErrOpenTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the subscription and waits for the loop to exit, including
// a snapshot the Sink is still applying. The Sink receives nothing after
// Close returns. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	r := c.current
	c.current = nil
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	r.cancel()
	<-r.exited
	c.transition(nil, StateClosed)
	c.logger.Info("stream closed")
	return nil
}

// detach drops r as the attached run. It reports false when r was already
// detached by Close.
func (c *Channel) detach(r *run) bool {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return false
	}
	c.current = nil
	c.mu.Unlock()
	c.transition(nil, StateClosed)
	return true
}

// ============================================================================
// Loop
// ============================================================================

// loop connects until the run is cancelled or the credential is refused.
// The first reconnect after a working connection is immediate; later ones
// back off.
func (c *Channel) loop(ctx context.Context, r *run) {
	defer close(r.exited)

	bo := NewBackoff(c.cfg.Backoff)
	failures := 0

	for {
		received, err := c.connect(ctx, r)
		if ctx.Err() != nil {
			return
		}
		if received {
			bo.Reset()
			failures = 0
		}

		switch {
		case errors.Is(err, errRestart):
			c.logger.Info("restarting stream on schedule")
			c.transition(r, StateConnecting)
			continue
		case errors.Is(err, errNoCredential):
			r.setErr(ErrNotAuthenticated)
			c.detach(r)
			return
		case IsKind(err, KindAuthRevoked):
			c.revoked(r, err)
			return
		}

		c.logger.Warn("stream connection lost", "error", err)
		c.transition(r, StateReconnecting)

		var delay time.Duration
		if failures > 0 {
			delay = bo.NextBackOff()
		}
		failures++
		if !sleep(ctx, delay) {
			return
		}
		c.transition(r, StateConnecting)
	}
}

// revoked ends the run and tells the session. The run is detached first
// so the session's teardown finds nothing to wait for.
func (c *Channel) revoked(r *run, err error) {
	r.setErr(err)
	if !c.detach(r) {
		return
	}
	c.logger.Warn("stream credential revoked", "error", err)
	c.session.OnAuthenticationRevokedExternally()
}

// connect runs one connection until it fails, the restart timer fires or
// ctx is cancelled. received reports whether any snapshot arrived.
func (c *Channel) connect(ctx context.Context, r *run) (received bool, err error) {
	token := c.session.AccessToken()
	if token == "" {
		return false, errNoCredential
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.OpenTimeout)
	conn, resp, err := c.dialer.DialContext(dialCtx, c.cfg.URL, header)
	cancel()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, &ChannelError{Kind: KindAuthRevoked, Err: fmt.Errorf("dial: %s", resp.Status)}
		}
		return false, &ChannelError{Kind: KindTransport, Err: err}
	}
	defer conn.Close()

	c.transition(r, StateOpen)
	c.logger.Debug("stream connected", "url", c.cfg.URL)

	restart := time.NewTimer(c.cfg.RestartInterval)
	defer restart.Stop()

	frames := make(chan frameResult)
	done := make(chan struct{})
	defer close(done)
	go c.read(conn, frames, done)

	var t tree
	for {
		select {
		case <-ctx.Done():
			closeConn(conn)
			return received, ctx.Err()

		case <-restart.C:
			closeConn(conn)
			return received, errRestart

		case res := <-frames:
			if res.err != nil {
				return received, &ChannelError{Kind: KindTransport, Err: res.err}
			}
			switch res.frame.Event {
			case eventPut:
				t.put(res.frame.Path, res.frame.Data)
				snap := t.snapshot()
				snap.path = splitPath(res.frame.Path)
				snap.Full = len(snap.path) == 0
				received = true
				c.deliver(r, snap)
			case eventKeepAlive:
			case eventAuthRevoked:
				return received, &ChannelError{Kind: KindAuthRevoked, Err: errors.New("credential revoked by remote")}
			case eventError:
				return received, &ChannelError{Kind: KindTransport, Err: errors.New(res.frame.Message)}
			default:
				c.logger.Debug("ignoring stream frame", "event", res.frame.Event)
			}
		}
	}
}

// read forwards frames until an error. Every read refreshes the keepalive
// deadline, so a silent connection fails after KeepAliveTimeout.
func (c *Channel) read(conn *websocket.Conn, out chan<- frameResult, done <-chan struct{}) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.KeepAliveTimeout)) //nolint:errcheck // Surfaces on the next read
		var f frame
		err := conn.ReadJSON(&f)
		select {
		case out <- frameResult{frame: f, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// deliver hands s to the sink while r is attached.
func (c *Channel) deliver(r *run, s Snapshot) {
	c.mu.Lock()
	attached := c.current == r
	c.mu.Unlock()
	if !attached {
		return
	}

	c.sink.Snapshot(s)
	r.firstOnce.Do(func() { close(r.first) })
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck // Best effort
}

// sleep waits d or until ctx is done. It reports whether the wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

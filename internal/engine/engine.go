package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-nest/internal/audit"
	"github.com/nerrad567/gray-logic-nest/internal/command"
	"github.com/nerrad567/gray-logic-nest/internal/device"
	"github.com/nerrad567/gray-logic-nest/internal/session"
	"github.com/nerrad567/gray-logic-nest/internal/stream"
)

// Logger defines the logging interface used by the Engine.
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

// CredentialStore persists the access token. settings.Store implements it.
type CredentialStore interface {
	session.CredentialStore
	MigrateLegacyCredential(ctx context.Context) (bool, error)
}

// Remote is the REST client used for the handshake, revoke and commands.
// remote.Client implements it.
type Remote interface {
	session.Remote
	command.Remote
}

// Authorizer runs the OAuth2 authorization code flow. remote.Authorizer
// implements it.
type Authorizer interface {
	AuthCodeURL() (authURL, state string)
	Exchange(ctx context.Context, state, code string) (string, error)
}

// minCameraClientVersion is the client version above which the account
// exposes cameras.
const minCameraClientVersion = 4

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Store       CredentialStore
	Log         audit.Repository
	Remote      Remote
	Authorizer  Authorizer
	Stream      stream.Config
	AuthTimeout time.Duration
	// EcoOverride is applied by SetTargetTemperature.
	EcoOverride device.EcoOverride
	// AppVersion is stamped on pairing entries.
	AppVersion string
}

// Status is a point-in-time summary for health and status endpoints.
type Status struct {
	Authenticated bool         `json:"authenticated"`
	HasData       bool         `json:"has_data"`
	Stream        stream.State `json:"stream"`
	Structures    int          `json:"structures"`
	Devices       int          `json:"devices"`
	Tracked       int          `json:"tracked"`
}

// Engine is the sync engine facade.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Subscribers run on the goroutine that caused the event.
type Engine struct {
	store      CredentialStore
	log        audit.Repository
	authorizer Authorizer
	session    *session.Manager
	channel    *stream.Channel
	registry   *device.Registry
	gateway    *command.Gateway
	eco        device.EcoOverride
	appVersion string
	logger     Logger

	mu       sync.Mutex
	running  bool
	handles  map[string]*device.Handle
	trackers map[string]*device.LastEventTracker
	blocked  device.Reason
	hasData  bool
	outage   bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	unsubscribe []func()
}

// New wires an Engine from d. Nothing touches the network until Start.
func New(d Deps) (*Engine, error) {
	if d.Store == nil || d.Remote == nil || d.Log == nil {
		return nil, errors.New("engine: store, remote and log are required")
	}

	e := &Engine{
		store:      d.Store,
		log:        d.Log,
		authorizer: d.Authorizer,
		eco:        d.EcoOverride,
		appVersion: d.AppVersion,
		logger:     noopLogger{},
		handles:    make(map[string]*device.Handle),
		trackers:   make(map[string]*device.LastEventTracker),
		blocked:    device.ReasonReconnecting,
		subs:       make(map[int]func(Event)),
	}

	e.session = session.NewManager(d.Store, d.Remote, d.AuthTimeout)

	gw, err := command.NewGateway(e.session, d.Remote)
	if err != nil {
		return nil, fmt.Errorf("creating command gateway: %w", err)
	}
	e.gateway = gw

	e.registry = device.NewRegistry(gw)
	e.registry.SetJournal(&journal{engine: e, source: audit.SourceCommand})

	e.channel = stream.NewChannel(d.Stream, e.session, stream.SinkFunc(e.applySnapshot))
	e.session.SetTeardown(e.channel)

	e.unsubscribe = append(e.unsubscribe,
		e.session.Subscribe(e.onSessionEvent),
		e.channel.Subscribe(e.onStreamState),
		e.registry.SubscribeStructures(e.onStructureChange),
	)
	return e, nil
}

// SetLogger sets the logger for the engine and every component it owns.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
	e.session.SetLogger(logger)
	e.channel.SetLogger(logger)
	e.registry.SetLogger(logger)
	e.gateway.SetLogger(logger)
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start migrates a legacy credential, authenticates and opens the
// stream. Authentication problems are reported through events and the
// rolling log rather than returned; only storage failures are errors.
func (e *Engine) Start(ctx context.Context) error {
	migrated, err := e.store.MigrateLegacyCredential(ctx)
	if err != nil {
		return fmt.Errorf("migrating legacy credential: %w", err)
	}
	if migrated {
		e.logger.Info("migrated legacy credential")
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	if err := e.connect(ctx); err != nil {
		e.logger.Warn("engine started without data", "error", err)
		e.publish(Event{Type: EventInitialized, Value: false, Message: err.Error()})
	}
	return nil
}

// connect authenticates and opens the stream. An open timeout is not a
// failure: the channel keeps trying and initialized follows the first
// snapshot.
func (e *Engine) connect(ctx context.Context) error {
	if err := e.session.Authenticate(ctx); err != nil {
		return err
	}
	if err := e.channel.Open(ctx); err != nil {
		if errors.Is(err, stream.ErrOpenTimeout) {
			e.logger.Warn("stream slow to deliver first snapshot", "error", err)
			return nil
		}
		return err
	}
	return nil
}

// Stop closes the stream and destroys every tracked handle.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	err := e.channel.Close()

	e.mu.Lock()
	handles := e.handles
	e.handles = make(map[string]*device.Handle)
	e.trackers = make(map[string]*device.LastEventTracker)
	e.mu.Unlock()

	for _, h := range handles {
		h.Destroy()
	}
	return err
}

// ============================================================================
// Session
// ============================================================================

// Login starts the OAuth2 flow and returns the authorization URL, which
// is also published as a url event.
func (e *Engine) Login() (string, error) {
	if e.authorizer == nil {
		return "", ErrNoAuthorizer
	}
	authURL, _ := e.authorizer.AuthCodeURL()
	e.publish(Event{Type: EventURL, Message: authURL})
	return authURL, nil
}

// CompleteLogin exchanges the authorization code, stores the credential,
// authenticates and opens the stream. Failures are published as an
// error event and returned.
func (e *Engine) CompleteLogin(ctx context.Context, state, code string) error {
	if e.authorizer == nil {
		return ErrNoAuthorizer
	}
	err := e.completeLogin(ctx, state, code)
	if err != nil {
		e.publish(Event{Type: EventError, Message: err.Error()})
		e.record(ctx, audit.SourceSession, "login failed: "+err.Error(), nil)
	}
	return err
}

func (e *Engine) completeLogin(ctx context.Context, state, code string) error {
	token, err := e.authorizer.Exchange(ctx, state, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	// Drop any previous session and its stream before switching tokens.
	if err := e.channel.Close(); err != nil {
		e.logger.Warn("closing stream before login failed", "error", err)
	}
	if err := e.session.SetCredential(ctx, token); err != nil {
		return err
	}
	return e.connect(ctx)
}

// Logout revokes the credential. Local state is cleared even when the
// remote revoke fails.
func (e *Engine) Logout(ctx context.Context) error {
	return e.session.Revoke(ctx)
}

// IsAuthenticated reports whether the session holds a verified credential.
func (e *Engine) IsAuthenticated() bool {
	return e.session.IsAuthenticated()
}

// HasData reports whether a snapshot has arrived since the session was
// last authenticated.
func (e *Engine) HasData() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasData && e.session.IsAuthenticated()
}

// Status returns a summary of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	tracked := len(e.handles)
	hasData := e.hasData
	e.mu.Unlock()

	return Status{
		Authenticated: e.session.IsAuthenticated(),
		HasData:       hasData,
		Stream:        e.channel.State(),
		Structures:    e.registry.StructureCount(),
		Devices:       e.registry.DeviceCount(),
		Tracked:       tracked,
	}
}

func (e *Engine) onSessionEvent(ev session.Event) {
	switch ev.Type {
	case session.EventAuthenticated:
		// Devices stay blocked until the first snapshot of this session.
		e.setBlocked(device.ReasonReconnecting)
		e.publish(Event{Type: EventAuthenticated})
		e.resumeStream()

	case session.EventUnauthenticated:
		e.registry.Reset()
		e.mu.Lock()
		e.hasData = false
		e.mu.Unlock()
		e.setBlocked(device.ReasonUnauthenticated)

		out := Event{Type: EventUnauthenticated}
		if ev.Err != nil {
			out.Message = ev.Err.Error()
			if !session.IsKind(ev.Err, session.KindMissingCredential) {
				e.record(context.Background(), audit.SourceSession, "authentication failed: "+ev.Err.Error(), nil)
			}
		}
		e.publish(out)
	}
}

// resumeStream opens the stream after an authentication that did not come
// through connect, such as a command re-authenticating a session that
// failed at startup. Open on a running channel only waits, so racing
// connect is harmless.
func (e *Engine) resumeStream() {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running || e.channel.State() != stream.StateClosed {
		return
	}

	go func() {
		e.mu.Lock()
		running := e.running
		e.mu.Unlock()
		if !running {
			return
		}
		if err := e.channel.Open(context.Background()); err != nil && !errors.Is(err, stream.ErrOpenTimeout) {
			e.logger.Warn("reopening stream after authentication failed", "error", err)
		}
	}()
}

func (e *Engine) onStreamState(st stream.State) {
	if st != stream.StateReconnecting {
		return
	}
	e.mu.Lock()
	first := !e.outage
	e.outage = true
	e.mu.Unlock()

	e.setBlocked(device.ReasonReconnecting)
	if first {
		e.record(context.Background(), audit.SourceStream, "connection to the remote service lost, reconnecting", nil)
	}
}

// ============================================================================
// Snapshots
// ============================================================================

// applySnapshot reconciles structures before devices so structure names
// resolve against the same snapshot.
// A collection the put touched but the tree no longer holds is
// reconciled as empty.
func (e *Engine) applySnapshot(s stream.Snapshot) {
	if s.TouchesStructures() {
		e.registry.ReconcileStructures(s.Structures)
	}
	for _, kind := range device.Kinds {
		if kind == device.KindCamera && e.session.ClientVersion() <= minCameraClientVersion {
			continue
		}
		if !s.TouchesKind(string(kind)) {
			continue
		}
		e.registry.ReconcileDevices(kind, s.Devices[string(kind)])
	}

	e.track()

	e.mu.Lock()
	first := !e.hasData
	e.hasData = true
	e.outage = false
	e.mu.Unlock()

	e.setBlocked(device.ReasonNone)
	if first {
		e.logger.Info("initial data received",
			"structures", e.registry.StructureCount(), "devices", e.registry.DeviceCount())
		e.publish(Event{Type: EventInitialized, Value: true})
	}
}

func (e *Engine) onStructureChange(c device.StructureChange) {
	s := c.Structure
	var value any
	switch c.Attr {
	case "away":
		value = s.Away
	case "name":
		value = s.Name
	}
	e.publish(Event{Type: EventStructureChanged, Attr: c.Attr, Value: value, Structure: &s})
}

// setBlocked applies reason to every tracked handle. New handles pick it
// up when created.
func (e *Engine) setBlocked(reason device.Reason) {
	e.mu.Lock()
	e.blocked = reason
	handles := make([]*device.Handle, 0, len(e.handles))
	for _, h := range e.handles {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	for _, h := range handles {
		h.SetBlocked(reason)
	}
}

// ============================================================================
// Handles
// ============================================================================

// track creates a handle for every device that has none.
func (e *Engine) track() {
	for _, kind := range device.Kinds {
		for _, d := range e.registry.Devices(kind) {
			if _, err := e.Handle(kind, d.ID); err != nil {
				e.logger.Debug("tracking device failed", "kind", string(kind), "device_id", d.ID, "error", err)
			}
		}
	}
}

// Handle returns the tracked handle of a device, creating it if needed.
func (e *Engine) Handle(kind device.Kind, id string) (*device.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h, ok := e.handles[id]; ok && h.Kind() == kind && !h.Removed() {
		return h, nil
	}
	h, err := e.registry.NewHandle(kind, id)
	if err != nil {
		return nil, err
	}
	if kind == device.KindCamera {
		tr := &device.LastEventTracker{}
		if v, ok := h.Get(device.AttrLastEvent); ok {
			tr.Observe(id, v)
		}
		e.trackers[id] = tr
	}
	h.Subscribe(func(ev device.Event) { e.onDeviceEvent(h, ev) })
	if e.blocked != device.ReasonNone {
		h.SetBlocked(e.blocked)
	}
	e.handles[id] = h
	return h, nil
}

// AttachDevice returns the handle of a paired device and blocks it with
// version_repair when it was paired by an app version that is too old.
func (e *Engine) AttachDevice(kind device.Kind, id, appVersion string) (*device.Handle, error) {
	h, err := e.Handle(kind, id)
	if err != nil {
		return nil, err
	}
	if h.CheckAppVersion(appVersion) {
		e.logger.Warn("device needs to be paired again", "kind", string(kind), "device_id", id, "app_version", appVersion)
	}
	return h, nil
}

// Attachment reports the availability of a device after it was attached.
type Attachment struct {
	Kind      device.Kind   `json:"kind"`
	DeviceID  string        `json:"device_id"`
	Available bool          `json:"available"`
	Reason    device.Reason `json:"reason,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// Attach attaches a paired device and reports whether it is usable.
func (e *Engine) Attach(kind device.Kind, id, appVersion string) (Attachment, error) {
	h, err := e.AttachDevice(kind, id, appVersion)
	if err != nil {
		return Attachment{}, err
	}
	avail, reason := h.Available()
	return Attachment{
		Kind:      kind,
		DeviceID:  id,
		Available: avail,
		Reason:    reason,
		Message:   reason.Message(),
	}, nil
}

func (e *Engine) onDeviceEvent(h *device.Handle, ev device.Event) {
	switch ev := ev.(type) {
	case device.AttributeChanged:
		e.publish(Event{
			Type:     EventDeviceData,
			Kind:     ev.Kind,
			DeviceID: ev.DeviceID,
			Attr:     ev.Attr,
			Value:    ev.Value,
			Previous: ev.Previous,
		})
		if name, active, ok := device.DeriveAlarm(ev); ok {
			e.publish(Event{Type: EventDeviceAlarm, Kind: ev.Kind, DeviceID: ev.DeviceID, Attr: name, Value: active})
		}
		if ev.Attr == device.AttrLastEvent {
			e.observeLastEvent(ev)
		}

	case device.AvailabilityChanged:
		e.publish(Event{
			Type:     EventDeviceAvailability,
			Kind:     ev.Kind,
			DeviceID: ev.DeviceID,
			Value:    ev.Available,
			Reason:   ev.Reason,
			Message:  ev.Reason.Message(),
		})

	case device.Removed:
		e.mu.Lock()
		if e.handles[ev.DeviceID] == h {
			delete(e.handles, ev.DeviceID)
			delete(e.trackers, ev.DeviceID)
		}
		e.mu.Unlock()
		e.publish(Event{
			Type:     EventDeviceRemoved,
			Kind:     ev.Kind,
			DeviceID: ev.DeviceID,
			Reason:   device.ReasonRemovedExternally,
			Message:  device.ReasonRemovedExternally.Message(),
		})
	}
}

func (e *Engine) observeLastEvent(ev device.AttributeChanged) {
	e.mu.Lock()
	tr := e.trackers[ev.DeviceID]
	e.mu.Unlock()
	if tr == nil {
		return
	}
	motion, ok := tr.Observe(ev.DeviceID, ev.Value)
	if !ok {
		return
	}
	attr := "motion_stopped"
	if motion.Started {
		attr = "motion_started"
	}
	e.publish(Event{Type: EventDeviceMotion, Kind: ev.Kind, DeviceID: ev.DeviceID, Attr: attr, Value: motion})
}

// ============================================================================
// Queries
// ============================================================================

// Structures returns every known structure.
func (e *Engine) Structures() []device.Structure {
	return e.registry.Structures()
}

// Devices returns every known device of kind.
func (e *Engine) Devices(kind device.Kind) []*device.Device {
	return e.registry.Devices(kind)
}

// Device returns one device.
func (e *Engine) Device(kind device.Kind, id string) (*device.Device, error) {
	return e.registry.Device(kind, id)
}

// PairingDevice is one entry of the pairing list.
type PairingDevice struct {
	Name string      `json:"name"`
	Data PairingData `json:"data"`
}

// PairingData identifies a paired device and the app version that
// paired it.
type PairingData struct {
	ID         string `json:"id"`
	AppVersion string `json:"appVersion"`
}

// PairingList lists the devices of kind available for pairing. Names
// carry the structure name when the account has more than one structure.
func (e *Engine) PairingList(kind device.Kind) ([]PairingDevice, error) {
	if _, err := device.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	devs := e.registry.Devices(kind)
	if len(devs) == 0 {
		return nil, ErrNoDevicesFound
	}
	multi := e.registry.StructureCount() > 1

	out := make([]PairingDevice, 0, len(devs))
	for _, d := range devs {
		name := d.DisplayName
		if multi && d.StructureName != nil && *d.StructureName != "" {
			name = d.DisplayName + " - " + *d.StructureName
		}
		out = append(out, PairingDevice{
			Name: name,
			Data: PairingData{ID: d.ID, AppVersion: e.appVersion},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LogItems returns the rolling log, oldest first.
func (e *Engine) LogItems(ctx context.Context) ([]audit.LogItem, error) {
	return e.log.List(ctx)
}

// ============================================================================
// Commands
// ============================================================================

// ExecutePutRequest writes value to attr below path through the gateway.
func (e *Engine) ExecutePutRequest(ctx context.Context, path, attr string, value any) error {
	return e.gateway.Write(ctx, path, attr, value)
}

// ExecuteGetRequest reads attr below path through the gateway.
func (e *Engine) ExecuteGetRequest(ctx context.Context, path, attr string) (any, error) {
	return e.gateway.Read(ctx, path, attr)
}

// SendCommand writes attr on a tracked device after its kind's checks.
func (e *Engine) SendCommand(ctx context.Context, kind device.Kind, id, attr string, value any) error {
	h, err := e.Handle(kind, id)
	if err != nil {
		return err
	}
	return h.SendCommand(ctx, attr, value)
}

// SetTargetTemperature sets a thermostat's target using the configured
// eco override.
func (e *Engine) SetTargetTemperature(ctx context.Context, id string, celsius float64) error {
	h, err := e.Handle(device.KindThermostat, id)
	if err != nil {
		return err
	}
	return h.SetTargetTemperature(ctx, celsius, e.eco)
}

// SetHvacMode sets a thermostat's HVAC mode.
func (e *Engine) SetHvacMode(ctx context.Context, id, mode string) error {
	h, err := e.Handle(device.KindThermostat, id)
	if err != nil {
		return err
	}
	return h.SetHvacMode(ctx, mode)
}

// SetStreaming turns a camera's stream on or off.
func (e *Engine) SetStreaming(ctx context.Context, id string, on bool) error {
	h, err := e.Handle(device.KindCamera, id)
	if err != nil {
		return err
	}
	return h.SetStreaming(ctx, on)
}

// ============================================================================
// Rolling log
// ============================================================================

func (e *Engine) record(ctx context.Context, source, msg string, details map[string]any) {
	item := &audit.LogItem{Message: msg, Source: source, Details: details}
	if err := e.log.Append(ctx, item); err != nil {
		e.logger.Warn("appending to rolling log failed", "error", err)
	}
}

// journal adapts the rolling log to device.Journal.
type journal struct {
	engine *Engine
	source string
}

func (j *journal) Record(ctx context.Context, msg string, details map[string]any) {
	// The command context may already be done; the log entry must land.
	j.engine.record(context.WithoutCancel(ctx), j.source, msg, details)
}

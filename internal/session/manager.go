package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-nest/internal/remote"
)

// defaultHandshakeTimeout bounds a handshake when none is configured.
const defaultHandshakeTimeout = 15 * time.Second

// Logger defines the logging interface used by the Manager.
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

// CredentialStore persists the access token.
type CredentialStore interface {
	Credential(ctx context.Context) (string, error)
	SetCredential(ctx context.Context, token string) error
	ClearCredential(ctx context.Context) error
}

// Remote performs the handshake and revocation round trips.
type Remote interface {
	Metadata(ctx context.Context, token string) (remote.Metadata, error)
	Revoke(ctx context.Context, token string) error
}

// Closer is torn down when the session ends. The stream channel registers
// itself here.
type Closer interface {
	Close() error
}

// Manager owns the credential and authentication state.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Subscribers and the teardown Closer are invoked without locks held.
type Manager struct {
	store   CredentialStore
	remote  Remote
	timeout time.Duration
	logger  Logger

	flight singleflight.Group

	mu            sync.RWMutex
	token         string
	authenticated bool
	clientVersion int
	// generation changes on every local state reset so a handshake that
	// started before a revoke cannot re-authenticate afterwards.
	generation uint64
	teardown   Closer

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewManager creates an unauthenticated Manager.
//
// Parameters:
//   - store: Credential persistence
//   - r: Handshake and revoke round trips
//   - timeout: Upper bound for one handshake; zero uses 15s
func NewManager(store CredentialStore, r Remote, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	return &Manager{
		store:   store,
		remote:  r,
		timeout: timeout,
		logger:  noopLogger{},
		subs:    make(map[int]func(Event)),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetTeardown registers the component closed when the session ends.
func (m *Manager) SetTeardown(c Closer) {
	m.mu.Lock()
	m.teardown = c
	m.mu.Unlock()
}

// IsAuthenticated reports whether the last handshake succeeded and no
// revoke has happened since.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticated
}

// AccessToken returns the credential while authenticated, "" otherwise.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.authenticated {
		return ""
	}
	return m.token
}

// ClientVersion returns the client version reported by the last handshake.
func (m *Manager) ClientVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientVersion
}

// Authenticate verifies the stored credential with a metadata handshake.
//
// It returns immediately when already authenticated. Concurrent callers
// share one handshake. The handshake itself runs detached from ctx so one
// caller giving up does not fail the others; ctx only bounds the wait.
//
// Returns:
//   - error: *AuthError on failure, or ctx.Err() if the caller stopped waiting
func (m *Manager) Authenticate(ctx context.Context) error {
	if m.IsAuthenticated() {
		return nil
	}

	ch := m.flight.DoChan("authenticate", func() (any, error) {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return nil, m.handshake(hctx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) handshake(ctx context.Context) error {
	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	token, err := m.store.Credential(ctx)
	if err != nil {
		return m.fail(&AuthError{Kind: KindMissingCredential, Err: err})
	}
	if token == "" {
		return m.fail(&AuthError{Kind: KindMissingCredential})
	}

	md, err := m.remote.Metadata(ctx, token)
	if err != nil {
		return m.fail(&AuthError{Kind: classify(err), Err: err})
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return m.fail(&AuthError{Kind: KindRejected, Err: errors.New("session reset during handshake")})
	}
	m.token = token
	m.authenticated = true
	m.clientVersion = md.ClientVersion
	m.mu.Unlock()

	if err := m.store.SetCredential(ctx, token); err != nil {
		m.logger.Warn("persisting credential failed", "error", err)
	}

	m.logger.Info("session authenticated", "client_version", md.ClientVersion)
	m.emit(Event{Type: EventAuthenticated})
	return nil
}

// classify maps a handshake failure onto an AuthErrorKind.
func classify(err error) AuthErrorKind {
	var se *remote.StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
		return KindRejected
	}
	return KindNetwork
}

func (m *Manager) fail(err *AuthError) error {
	m.mu.Lock()
	m.authenticated = false
	m.mu.Unlock()

	m.logger.Warn("session authentication failed", "kind", string(err.Kind), "error", err.Err)
	m.emit(Event{Type: EventUnauthenticated, Err: err})
	return err
}

// SetCredential persists a new access token obtained by login. Any
// current session is invalidated so the next Authenticate handshakes with
// the new token.
func (m *Manager) SetCredential(ctx context.Context, token string) error {
	if err := m.store.SetCredential(ctx, token); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	m.mu.Lock()
	m.authenticated = false
	m.token = ""
	m.generation++
	m.mu.Unlock()
	return nil
}

// Revoke logs out: local state, the persisted credential and the channel
// are cleared first, then the token is revoked remotely. A network error
// from the remote call is returned wrapped in ErrRevokeFailed; local
// cleanup has happened either way.
func (m *Manager) Revoke(ctx context.Context) error {
	token := m.reset(ctx)
	if token == "" {
		return nil
	}
	if err := m.remote.Revoke(ctx, token); err != nil {
		m.logger.Warn("remote revoke failed", "error", err)
		return fmt.Errorf("%w: %w", ErrRevokeFailed, err)
	}
	m.logger.Info("session revoked")
	return nil
}

// OnAuthenticationRevokedExternally handles a credential invalidated by
// the remote side: the same cleanup as Revoke without the network call.
func (m *Manager) OnAuthenticationRevokedExternally() {
	m.logger.Warn("credential revoked externally")
	m.reset(context.Background())
}

// reset clears local state and returns the token that was in use (or
// stored), for revocation.
func (m *Manager) reset(ctx context.Context) string {
	m.mu.Lock()
	token := m.token
	m.token = ""
	m.authenticated = false
	m.clientVersion = 0
	m.generation++
	teardown := m.teardown
	m.mu.Unlock()

	if token == "" {
		if stored, err := m.store.Credential(ctx); err == nil {
			token = stored
		}
	}
	if err := m.store.ClearCredential(ctx); err != nil {
		m.logger.Error("clearing stored credential failed", "error", err)
	}
	if teardown != nil {
		if err := teardown.Close(); err != nil {
			m.logger.Warn("closing channel on session end failed", "error", err)
		}
	}

	m.emit(Event{Type: EventUnauthenticated})
	return token
}

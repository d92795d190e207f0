package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-nest/internal/audit"
	"github.com/nerrad567/gray-logic-nest/internal/device"
	"github.com/nerrad567/gray-logic-nest/internal/engine"
	"github.com/nerrad567/gray-logic-nest/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-nest/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the part of the sync engine the API serves.
// *engine.Engine satisfies it.
type Engine interface {
	Status() engine.Status
	Login() (string, error)
	CompleteLogin(ctx context.Context, state, code string) error
	Logout(ctx context.Context) error

	Structures() []device.Structure
	Devices(kind device.Kind) []*device.Device
	Device(kind device.Kind, id string) (*device.Device, error)
	PairingList(kind device.Kind) ([]engine.PairingDevice, error)
	Attach(kind device.Kind, id, appVersion string) (engine.Attachment, error)
	LogItems(ctx context.Context) ([]audit.LogItem, error)

	ExecutePutRequest(ctx context.Context, path, attr string, value any) error
	ExecuteGetRequest(ctx context.Context, path, attr string) (any, error)
	SendCommand(ctx context.Context, kind device.Kind, id, attr string, value any) error
	SetTargetTemperature(ctx context.Context, id string, celsius float64) error
	SetHvacMode(ctx context.Context, id, mode string) error
	SetStreaming(ctx context.Context, id string, on bool) error

	Subscribe(fn func(engine.Event)) func()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Engine   Engine
	Version  string
}

// Server is the local HTTP API in front of the sync engine.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket hub
// that relays engine events. The server is created with New() and started
// with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	engine  Engine
	version string
	started time.Time

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	limiter *clientLimiter
	unsub   func()
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, engine)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		engine:  deps.Engine,
		version: deps.Version,
		tickets: newTicketStore(),
		hub:     NewHub(deps.WS, deps.Logger),
	}
	if deps.Security.RateLimit.Enabled {
		s.limiter = newClientLimiter(deps.Security.RateLimit.RequestsPerMinute)
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes the hub to engine events and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Context for background goroutines (not the listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)
	if s.limiter != nil {
		go s.limiter.cleanupLoop(srvCtx)
	}
	s.unsub = s.engine.Subscribe(s.relayEvent)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.unsub != nil {
		s.unsub()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// relayEvent forwards an engine event to WebSocket clients subscribed to
// its type. Runs on engine goroutines; Broadcast never blocks.
func (s *Server) relayEvent(ev engine.Event) {
	s.hub.Broadcast(string(ev.Type), ev)
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-nest/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.rateLimitMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// No auth required
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/auth/token", s.handleToken)

		// The WebSocket authenticates itself (ticket or bearer token).
		r.Get(s.wsPath(), s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermAccountManage))
				r.Get("/login", s.handleLoginStatus)
				r.Post("/login", s.handleLogin)
				r.Post("/logout", s.handleLogout)
				r.Get("/oauth2/callback", s.handleOAuthCallback)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceRead))
				r.Get("/structures", s.handleListStructures)
				r.Get("/devices/{kind}", s.handleListDevices)
				r.Get("/devices/{kind}/{id}", s.handleGetDevice)
				r.Get("/pairing/{kind}", s.handlePairingList)
				r.Get("/log", s.handleLog)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceOperate))
				r.Post("/devices/{kind}/{id}/target_temperature", s.handleSetTargetTemperature)
				r.Post("/devices/{kind}/{id}/hvac_mode", s.handleSetHvacMode)
				r.Post("/devices/{kind}/{id}/streaming", s.handleSetStreaming)
				r.Post("/devices/{kind}/{id}/attach", s.handleAttachDevice)
				r.Put("/devices/{kind}/{id}/{attr}", s.handleSendCommand)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermRemoteRequests))
				r.Get("/remote/*", s.handleRemoteGet)
				r.Put("/remote/*", s.handleRemotePut)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns the engine summary.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"version":           s.version,
		"engine":            s.engine.Status(),
		"websocket_clients": s.hub.ClientCount(),
	}
	if !s.started.IsZero() {
		resp["uptime_seconds"] = int64(time.Since(s.started).Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

// wsPath is the configured WebSocket path below /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

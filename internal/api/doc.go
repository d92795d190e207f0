// Package api implements the local HTTP REST API and WebSocket server in
// front of the Nest sync engine.
//
// This package provides:
//   - REST endpoints for structures, devices, pairing lists and the rolling log
//   - Device commands (typed thermostat and camera operations, raw attribute writes)
//   - OAuth2 login and logout of the remote account
//   - Raw GET/PUT passthrough to the remote source
//   - A WebSocket hub relaying engine events by type
//
// # Security
//
// Callers exchange the configured API key for a short-lived JWT at
// POST /api/v1/auth/token. The token's role (viewer, operator, admin)
// decides which route groups it may use. WebSocket connections use
// single-use tickets to keep tokens out of URLs; a bearer header is also
// accepted for non-browser clients.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

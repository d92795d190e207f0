// Package auth protects the local HTTP API.
//
// Callers exchange the configured API key for a short-lived HS256 JWT
// (IssueToken) and present it as a Bearer token. Each token carries one of
// three roles (viewer, operator, admin) mapped statically to permissions,
// so request authorisation never touches storage.
package auth

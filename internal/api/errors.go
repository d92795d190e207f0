package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-nest/internal/command"
	"github.com/nerrad567/gray-logic-nest/internal/device"
	"github.com/nerrad567/gray-logic-nest/internal/engine"
	"github.com/nerrad567/gray-logic-nest/internal/remote"
	"github.com/nerrad567/gray-logic-nest/internal/session"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeForbidden          = "forbidden"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeRejected           = "rejected"
	ErrCodeUpstream           = "upstream_unavailable"
	ErrCodePreconditionFailed = "precondition_failed"
	ErrCodeNotConfigured      = "not_configured"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeEngineError maps an engine, device or command failure onto a
// status code.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var (
		ce *command.Error
		ae *session.AuthError
	)
	switch {
	case errors.As(err, &ce):
		switch ce.Kind {
		case command.KindPreconditionFailed:
			writeError(w, http.StatusConflict, ErrCodePreconditionFailed, ce.Message())
		case command.KindUnauthorized:
			// The remote session is gone; the local caller is still authorised.
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnauthorized, ce.Message())
		case command.KindNetwork:
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, ce.Message())
		default:
			writeError(w, http.StatusUnprocessableEntity, ErrCodeRejected, ce.Message())
		}
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, device.ErrDeviceRemoved),
		errors.Is(err, device.ErrHandleDestroyed),
		errors.Is(err, engine.ErrNoDevicesFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrUnknownKind),
		errors.Is(err, device.ErrUnsupportedCommand):
		writeBadRequest(w, err.Error())
	case errors.As(err, &ae), errors.Is(err, remote.ErrEmptyToken):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	case errors.Is(err, remote.ErrInvalidState):
		writeBadRequest(w, "oauth2 state mismatch")
	case errors.Is(err, engine.ErrNoAuthorizer):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "oauth2 client is not configured")
	default:
		s.logger.Error("engine request failed", "error", err)
		writeInternalError(w, err.Error())
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// remotePutRequest is the body of PUT /remote/*.
type remotePutRequest struct {
	Attr  string `json:"attr"`
	Value any    `json:"value"`
}

// handleRemoteGet reads a remote path, optionally narrowed to ?attr=.
func (s *Server) handleRemoteGet(w http.ResponseWriter, r *http.Request) {
	path, ok := remotePath(w, r)
	if !ok {
		return
	}
	attr := r.URL.Query().Get("attr")

	v, err := s.engine.ExecuteGetRequest(r.Context(), path, attr)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "attr": attr, "value": v})
}

// handleRemotePut writes one attribute below a remote path.
func (s *Server) handleRemotePut(w http.ResponseWriter, r *http.Request) {
	path, ok := remotePath(w, r)
	if !ok {
		return
	}
	var req remotePutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Attr == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "attr is required")
		return
	}

	if err := s.engine.ExecutePutRequest(r.Context(), path, req.Attr, req.Value); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "path": path, "attr": req.Attr, "value": req.Value})
}

// handleLog returns the rolling log, oldest first.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.LogItems(r.Context())
	if err != nil {
		s.logger.Error("reading rolling log failed", "error", err)
		writeInternalError(w, "failed to read log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// remotePath returns the wildcard part of a /remote/* route.
func remotePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := strings.Trim(chi.URLParam(r, "*"), "/")
	if path == "" {
		writeBadRequest(w, "remote path is required")
		return "", false
	}
	if strings.Contains(path, "..") {
		writeBadRequest(w, "invalid remote path")
		return "", false
	}
	return path, true
}

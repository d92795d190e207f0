package api

import (
	"net/http"
)

// handleLoginStatus reports whether the remote account is signed in.
func (s *Server) handleLoginStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": st.Authenticated,
		"has_data":      st.HasData,
	})
}

// handleLogin starts the OAuth2 flow. The authorization URL is returned
// and also published to WebSocket clients as a url event.
func (s *Server) handleLogin(w http.ResponseWriter, _ *http.Request) {
	authURL, err := s.engine.Login()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

// handleOAuthCallback completes the OAuth2 flow with the state and code
// the provider redirected with.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeBadRequest(w, "authorization denied: "+e)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		writeBadRequest(w, "state and code are required")
		return
	}

	if err := s.engine.CompleteLogin(r.Context(), state, code); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true})
}

// handleLogout revokes the remote credential. Local state is cleared even
// when the revoke request fails, so that failure is reported but not fatal.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context()); err != nil {
		s.logger.Warn("remote revoke failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "revoke_error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

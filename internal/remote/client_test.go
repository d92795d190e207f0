package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", srv.URL+"/oauth2/access_tokens", 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, srv
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient("not a url", "", time.Second); err == nil {
		t.Error("NewClient() expected error for relative url")
	}
}

func TestClient_Metadata(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"devices":{},"metadata":{"access_token":"x","client_version":6}}`) //nolint:errcheck // Test
	}))

	md, err := c.Metadata(context.Background(), "c.tok")
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if md.ClientVersion != 6 {
		t.Errorf("ClientVersion = %d, want 6", md.ClientVersion)
	}
	if gotAuth != "Bearer c.tok" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer c.tok")
	}
}

func TestClient_Metadata_Missing(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"devices":{}}`) //nolint:errcheck // Test
	}))

	if _, err := c.Metadata(context.Background(), "c.tok"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Metadata() error = %v, want ErrMalformedResponse", err)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"unauthorized","message":"authorization required"}`) //nolint:errcheck // Test
	}))

	_, err := c.Get(context.Background(), "bad", "/devices")
	if !IsUnauthorized(err) {
		t.Fatalf("Get() error = %v, want unauthorized", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Message != "authorization required" {
		t.Errorf("StatusError = %+v, want message %q", se, "authorization required")
	}
}

func TestClient_TransportError(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	srv.Close()

	_, err := c.Get(context.Background(), "tok", "/devices")
	if !IsTransport(err) {
		t.Errorf("Get() on closed server error = %v, want transport", err)
	}
	if IsUnauthorized(err) {
		t.Error("transport error reported as unauthorized")
	}
}

func TestClient_PutFollowsRedirectWithAuth(t *testing.T) {
	var (
		finalAuth string
		finalBody map[string]any
		finalPath string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/devices/thermostats/t1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/regional/devices/thermostats/t1", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/regional/devices/thermostats/t1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		finalAuth = r.Header.Get("Authorization")
		finalPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&finalBody) //nolint:errcheck // Test
		json.NewEncoder(w).Encode(finalBody)       //nolint:errcheck // Test
	})
	c, _ := newTestClient(t, mux)

	out, err := c.Put(context.Background(), "c.tok", "/devices/thermostats/t1", map[string]any{"target_temperature_c": 21.5})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if finalPath != "/regional/devices/thermostats/t1" {
		t.Errorf("final path = %q", finalPath)
	}
	if finalAuth != "Bearer c.tok" {
		t.Errorf("Authorization after redirect = %q", finalAuth)
	}
	if finalBody["target_temperature_c"] != 21.5 {
		t.Errorf("body after redirect = %v", finalBody)
	}
	if m, ok := out.(map[string]any); !ok || m["target_temperature_c"] != 21.5 {
		t.Errorf("Put() result = %v", out)
	}
}

func TestClient_Revoke(t *testing.T) {
	var method, path string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.Revoke(context.Background(), "c.tok"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if method != http.MethodDelete || path != "/oauth2/access_tokens/c.tok" {
		t.Errorf("Revoke() sent %s %s", method, path)
	}
}

func TestClient_RevokeErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "gone") //nolint:errcheck // Test
	}))

	err := c.Revoke(context.Background(), "c.tok")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("Revoke() error = %v, want 400 StatusError", err)
	}
	if !strings.Contains(se.Error(), "gone") {
		t.Errorf("Error() = %q, want raw body", se.Error())
	}
}

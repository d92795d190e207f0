package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestAuthorizer(t *testing.T, h http.HandlerFunc) *Authorizer {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAuthorizer(OAuthConfig{
		ClientID:         "client-1",
		ClientSecret:     "secret-1",
		RedirectURL:      "http://localhost/cb",
		AuthorizationURL: "https://home.example/login/oauth2",
		TokenURL:         srv.URL + "/oauth2/access_token",
	})
}

func TestAuthorizer_AuthCodeURL(t *testing.T) {
	a := newTestAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {})

	raw, state := a.AuthCodeURL()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthCodeURL() not a URL: %v", err)
	}
	q := u.Query()
	if q.Get("state") != state || state == "" {
		t.Errorf("state = %q, query state = %q", state, q.Get("state"))
	}
	if q.Get("client_id") != "client-1" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
}

func TestAuthorizer_Exchange(t *testing.T) {
	var form url.Values
	a := newTestAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm() //nolint:errcheck // Test
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"c.new","expires_in":315360000}`) //nolint:errcheck // Test
	})

	_, state := a.AuthCodeURL()
	tok, err := a.Exchange(context.Background(), state, "PIN123")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok != "c.new" {
		t.Errorf("token = %q, want %q", tok, "c.new")
	}
	if form.Get("code") != "PIN123" || form.Get("client_secret") != "secret-1" {
		t.Errorf("token request form = %v", form)
	}

	// A state is accepted once.
	if _, err := a.Exchange(context.Background(), state, "PIN123"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reused state error = %v, want ErrInvalidState", err)
	}
}

func TestAuthorizer_ExchangeRejected(t *testing.T) {
	a := newTestAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"oauth2_error","error_description":"authorization code not found"}`) //nolint:errcheck // Test
	})

	_, err := a.Exchange(context.Background(), "", "bad")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Errorf("Exchange() error = %v, want 400 StatusError", err)
	}
}

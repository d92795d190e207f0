package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrInvalidState is returned when a callback carries an unknown state.
var ErrInvalidState = errors.New("remote: oauth2 state mismatch")

// ErrEmptyToken is returned when the token endpoint answers without a token.
var ErrEmptyToken = errors.New("remote: token endpoint returned no access token")

// OAuthConfig carries the client registration and endpoints.
type OAuthConfig struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	AuthorizationURL string
	TokenURL         string
}

// Authorizer runs the authorization-code flow.
//
// AuthCodeURL issues a fresh state value; Exchange accepts each state once.
type Authorizer struct {
	cfg *oauth2.Config

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewAuthorizer builds an Authorizer. The token endpoint expects the
// client credentials as form parameters.
func NewAuthorizer(c OAuthConfig) *Authorizer {
	return &Authorizer{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthorizationURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		pending: make(map[string]struct{}),
	}
}

// AuthCodeURL returns the URL the user opens to grant access, and the
// state value it embeds.
func (a *Authorizer) AuthCodeURL() (authURL, state string) {
	state = uuid.NewString()
	a.mu.Lock()
	a.pending[state] = struct{}{}
	a.mu.Unlock()
	return a.cfg.AuthCodeURL(state), state
}

// Exchange trades an authorization code for an access token.
//
// Parameters:
//   - ctx: Bounds the token request
//   - state: The state echoed by the callback; "" skips the check
//   - code: The authorization code
//
// Returns:
//   - string: The access token
//   - error: ErrInvalidState, ErrEmptyToken, or the exchange failure
func (a *Authorizer) Exchange(ctx context.Context, state, code string) (string, error) {
	if state != "" {
		a.mu.Lock()
		_, ok := a.pending[state]
		delete(a.pending, state)
		a.mu.Unlock()
		if !ok {
			return "", ErrInvalidState
		}
	}

	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", &StatusError{StatusCode: re.Response.StatusCode, Message: re.ErrorDescription}
		}
		return "", fmt.Errorf("%w: token exchange: %w", ErrTransport, err)
	}
	if tok.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return tok.AccessToken, nil
}

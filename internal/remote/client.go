package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 4 << 10

	// maxRedirects matches net/http's default limit.
	maxRedirects = 10
)

// Metadata is the handshake payload returned by the API root.
type Metadata struct {
	ClientVersion int `json:"client_version"`
}

// Client performs authenticated REST calls against the API root.
//
// Thread Safety:
//   - Safe for concurrent use.
type Client struct {
	http      *http.Client
	apiURL    *url.URL
	revokeURL string
}

// NewClient builds a Client.
//
// Parameters:
//   - apiURL: API root, e.g. https://developer-api.nest.com/
//   - revokeURL: token revocation endpoint; the token is appended as a path segment
//   - timeout: per-request timeout
func NewClient(apiURL, revokeURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid api url %q", apiURL)
	}
	c := &Client{
		apiURL:    u,
		revokeURL: strings.TrimRight(revokeURL, "/"),
	}
	c.http = &http.Client{
		Timeout:       timeout,
		CheckRedirect: keepAuthorization,
	}
	return c, nil
}

// keepAuthorization re-applies the Authorization header on redirects to a
// different host, which net/http strips by default.
func keepAuthorization(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}
	if auth := via[0].Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return nil
}

// resolve joins path onto the API root.
func (c *Client) resolve(path string) string {
	return c.apiURL.JoinPath(strings.TrimLeft(path, "/")).String()
}

// Get fetches path and decodes the JSON body into a generic value.
func (c *Client) Get(ctx context.Context, token, path string) (any, error) {
	var out any
	if err := c.do(ctx, http.MethodGet, c.resolve(path), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Put writes body as JSON to path and returns the decoded response.
func (c *Client) Put(ctx context.Context, token, path string, body any) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("remote: encoding body: %w", err)
	}
	var out any
	if err := c.do(ctx, http.MethodPut, c.resolve(path), token, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Metadata performs the handshake: a GET of the API root whose metadata
// block carries the client version.
func (c *Client) Metadata(ctx context.Context, token string) (Metadata, error) {
	var root struct {
		Metadata *Metadata `json:"metadata"`
	}
	if err := c.do(ctx, http.MethodGet, c.apiURL.String(), token, nil, &root); err != nil {
		return Metadata{}, err
	}
	if root.Metadata == nil {
		return Metadata{}, fmt.Errorf("%w: missing metadata", ErrMalformedResponse)
	}
	return *root.Metadata, nil
}

// Revoke invalidates token with a DELETE on the revocation endpoint.
// Revoking an already invalid token is reported by the server as an
// error status; callers decide whether that matters.
func (c *Client) Revoke(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, c.revokeURL+"/"+url.PathEscape(token), "", nil, nil)
}

// do executes one request. A nil out discards the body.
func (c *Client) do(ctx context.Context, method, target, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		// bytes.Reader lets net/http replay the body on 307.
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("remote: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// errorMessage extracts a readable message from an error body. The API
// uses {"error": "...", "message": "..."}; anything else is returned raw.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody)) //nolint:errcheck // Best effort
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

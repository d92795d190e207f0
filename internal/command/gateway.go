package command

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/nerrad567/gray-logic-nest/internal/remote"
)

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is the part of session.Manager the gateway needs.
type Session interface {
	Authenticate(ctx context.Context) error
	AccessToken() string
}

// Remote performs the REST round trips. remote.Client implements it.
type Remote interface {
	Get(ctx context.Context, token, path string) (any, error)
	Put(ctx context.Context, token, path string, body any) (any, error)
}

// Gateway validates and issues writes.
//
// Thread Safety:
//   - Safe for concurrent use; writes run independently.
type Gateway struct {
	session   Session
	remote    Remote
	validator *Validator
	logger    Logger
}

// NewGateway creates a Gateway.
func NewGateway(s Session, r Remote) (*Gateway, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Gateway{session: s, remote: r, validator: v, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// Write sets attr to value on the remote path.
//
// Parameters:
//   - ctx: Bounds authentication and the round trip
//   - path: Remote path, e.g. devices/thermostats/{id}
//   - attr: Attribute name, e.g. target_temperature_c
//   - value: New value; temperatures are rounded to half a degree
//
// Returns:
//   - error: nil on success, *Error otherwise
func (g *Gateway) Write(ctx context.Context, path, attr string, value any) error {
	if attr == "" {
		return Precondition("attribute is required")
	}
	if IsTemperatureAttr(attr) {
		if f, ok := toFloat(value); ok {
			value = RoundHalf(f)
		}
	}
	if err := g.validator.Validate(attr, value); err != nil {
		return &Error{Kind: KindPreconditionFailed, Msg: "invalid value for " + attr, Err: err}
	}

	token, err := g.authenticate(ctx)
	if err != nil {
		return err
	}

	if _, err := g.remote.Put(ctx, token, path, map[string]any{attr: value}); err != nil {
		// The status was 2xx, so the write landed; only the echo is unreadable.
		if errors.Is(err, remote.ErrMalformedResponse) {
			g.logger.Warn("write applied with unreadable response", "path", path, "attr", attr, "error", err)
			return nil
		}
		cerr := classify(err)
		g.logger.Warn("write failed", "path", path, "attr", attr, "kind", string(cerr.Kind), "error", err)
		return cerr
	}
	g.logger.Debug("write applied", "path", path, "attr", attr)
	return nil
}

// Read fetches attr below path; an empty attr reads the whole path.
func (g *Gateway) Read(ctx context.Context, path, attr string) (any, error) {
	token, err := g.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	target := strings.TrimRight(path, "/")
	if attr != "" {
		target += "/" + attr
	}
	v, err := g.remote.Get(ctx, token, target)
	if err != nil {
		return nil, classify(err)
	}
	return v, nil
}

func (g *Gateway) authenticate(ctx context.Context) (string, error) {
	if err := g.session.Authenticate(ctx); err != nil {
		return "", &Error{Kind: KindUnauthorized, Msg: "not authenticated", Err: err}
	}
	token := g.session.AccessToken()
	if token == "" {
		return "", &Error{Kind: KindUnauthorized, Msg: "not authenticated"}
	}
	return token, nil
}

// classify maps a remote failure onto the command taxonomy.
func classify(err error) *Error {
	var se *remote.StatusError
	switch {
	case errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden):
		return &Error{Kind: KindUnauthorized, Err: err}
	case errors.As(err, &se):
		return &Error{Kind: KindRejected, Msg: se.Message, Err: err}
	default:
		return &Error{Kind: KindNetwork, Err: err}
	}
}

// RoundHalf rounds to the nearest half degree.
func RoundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}

// IsTemperatureAttr reports whether attr carries a temperature that must
// be rounded before it is written.
func IsTemperatureAttr(attr string) bool {
	return strings.Contains(attr, "_temperature_")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Nest sync service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Nest      NestConfig      `yaml:"nest"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// NestConfig contains remote account, streaming and command settings.
type NestConfig struct {
	// ClientID and ClientSecret identify this integration to the OAuth2 provider.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// RedirectURL is where the authorization server sends the code back.
	// Usually points at this service's /api/v1/oauth2/callback route.
	RedirectURL string `yaml:"redirect_url"`

	// Remote endpoints.
	APIURL           string `yaml:"api_url"`
	StreamURL        string `yaml:"stream_url"`
	AuthorizationURL string `yaml:"authorization_url"`
	TokenURL         string `yaml:"token_url"`
	RevokeURL        string `yaml:"revoke_url"`

	// Stream contains subscription channel timing.
	Stream StreamConfig `yaml:"stream"`

	// RequestTimeout bounds REST round trips and the auth handshake (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// EcoOverride is the default eco override policy for target temperature commands.
	EcoOverride EcoOverrideConfig `yaml:"eco_override"`
}

// StreamConfig contains subscription channel timing settings.
type StreamConfig struct {
	// RestartInterval forces a close/reopen of a healthy channel (minutes).
	// Default: 30
	RestartInterval int `yaml:"restart_interval"`

	// OpenTimeout is how long Open waits for the first snapshot (seconds).
	// Default: 30
	OpenTimeout int `yaml:"open_timeout"`

	// KeepAliveTimeout is the read deadline refreshed by every frame (seconds).
	// Default: 90
	KeepAliveTimeout int `yaml:"keepalive_timeout"`

	// Reconnect controls the delay between failed reconnect attempts.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// EcoOverrideConfig controls whether a target temperature command may leave eco mode.
type EcoOverrideConfig struct {
	Allow bool   `yaml:"allow"`
	By    string `yaml:"by"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// PayloadFormat selects the event payload codec: "json" or "cbor".
	PayloadFormat string `yaml:"payload_format"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings for the local API.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	APIKey    string          `yaml:"api_key"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NESTSYNC_SECTION_KEY
// For example: NESTSYNC_DATABASE_PATH, NESTSYNC_NEST_CLIENT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Nest: NestConfig{
			APIURL:           "https://developer-api.nest.com/",
			StreamURL:        "wss://developer-api.nest.com/",
			AuthorizationURL: "https://home.nest.com/login/oauth2",
			TokenURL:         "https://api.home.nest.com/oauth2/access_token",
			RevokeURL:        "https://api.home.nest.com/oauth2/access_tokens",
			Stream: StreamConfig{
				RestartInterval:  30,
				OpenTimeout:      30,
				KeepAliveTimeout: 90,
				Reconnect: ReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
			RequestTimeout: 15,
			EcoOverride: EcoOverrideConfig{
				Allow: false,
				By:    "heat",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/nestsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "nestsync",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			PayloadFormat: "json",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NESTSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Nest account
	if v := os.Getenv("NESTSYNC_NEST_CLIENT_ID"); v != "" {
		cfg.Nest.ClientID = v
	}
	if v := os.Getenv("NESTSYNC_NEST_CLIENT_SECRET"); v != "" {
		cfg.Nest.ClientSecret = v
	}
	if v := os.Getenv("NESTSYNC_NEST_REDIRECT_URL"); v != "" {
		cfg.Nest.RedirectURL = v
	}

	// Database
	if v := os.Getenv("NESTSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("NESTSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NESTSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NESTSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("NESTSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("NESTSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("NESTSYNC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("NESTSYNC_API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Nest validation
	for name, raw := range map[string]string{
		"nest.api_url":           c.Nest.APIURL,
		"nest.stream_url":        c.Nest.StreamURL,
		"nest.authorization_url": c.Nest.AuthorizationURL,
		"nest.token_url":         c.Nest.TokenURL,
		"nest.revoke_url":        c.Nest.RevokeURL,
	} {
		if raw == "" {
			errs = append(errs, name+" is required")
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			errs = append(errs, name+" must be an absolute URL")
		}
	}
	if c.Nest.Stream.RestartInterval < 1 {
		errs = append(errs, "nest.stream.restart_interval must be at least 1 minute")
	}
	if c.Nest.Stream.OpenTimeout < 1 {
		errs = append(errs, "nest.stream.open_timeout must be at least 1 second")
	}
	if c.Nest.Stream.KeepAliveTimeout < 1 {
		errs = append(errs, "nest.stream.keepalive_timeout must be at least 1 second")
	}
	switch c.Nest.EcoOverride.By {
	case "heat", "cool", "heat-cool":
	default:
		errs = append(errs, "nest.eco_override.by must be heat, cool or heat-cool")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	switch strings.ToLower(c.MQTT.PayloadFormat) {
	case "", "json", "cbor":
	default:
		errs = append(errs, "mqtt.payload_format must be json or cbor")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// The local API controls real heating equipment, so a weak secret is rejected.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set NESTSYNC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// RestartInterval returns the forced stream restart interval.
func (n NestConfig) RestartInterval() time.Duration {
	return time.Duration(n.Stream.RestartInterval) * time.Minute
}

// OpenTimeout returns how long opening the stream waits for a first snapshot.
func (n NestConfig) OpenTimeout() time.Duration {
	return time.Duration(n.Stream.OpenTimeout) * time.Second
}

// KeepAliveTimeout returns the stream read deadline.
func (n NestConfig) KeepAliveTimeout() time.Duration {
	return time.Duration(n.Stream.KeepAliveTimeout) * time.Second
}

// GetRequestTimeout returns the REST round-trip timeout.
func (n NestConfig) GetRequestTimeout() time.Duration {
	if n.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(n.RequestTimeout) * time.Second
}

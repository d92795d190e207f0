// nestsync - Nest remote-state sync service
//
// This is the main entry point. nestsync signs in to the Nest cloud with
// OAuth2, mirrors thermostats, protect alarms and cameras from the remote
// event stream, and exposes them through:
//   - A local REST API with a WebSocket event feed
//   - An optional MQTT bridge (state, events and commands)
//   - Optional InfluxDB telemetry
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-nest/internal/api"
	"github.com/nerrad567/gray-logic-nest/internal/audit"
	"github.com/nerrad567/gray-logic-nest/internal/bridges/nest"
	"github.com/nerrad567/gray-logic-nest/internal/device"
	"github.com/nerrad567/gray-logic-nest/internal/engine"
	"github.com/nerrad567/gray-logic-nest/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-nest/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-nest/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-nest/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-nest/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-nest/internal/remote"
	"github.com/nerrad567/gray-logic-nest/internal/settings"
	"github.com/nerrad567/gray-logic-nest/internal/stream"
	"github.com/nerrad567/gray-logic-nest/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pairingAppVersion is stamped on pairing entries. Devices paired by an
// app older than 2.0.0 are flagged for repair.
const pairingAppVersion = "2.0.0"

// backoffJitter spreads stream reconnects.
const backoffJitter = 0.25

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting nestsync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	versions, err := db.AppliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.Info("database migrations complete", "applied", applied, "schema_versions", len(versions))

	// Build the engine
	eng, err := buildEngine(cfg, db)
	if err != nil {
		return err
	}
	eng.SetLogger(log.With("component", "engine"))

	// MQTT bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var bridge *nest.Bridge
		mqttClient, bridge, err = startMQTTBridge(ctx, cfg.MQTT, eng, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT bridge disabled")
	}

	// InfluxDB telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		unsubscribe := eng.Subscribe(recordTelemetry(influxClient))
		defer func() {
			unsubscribe()
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Local API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Engine:   eng,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Start syncing last so every surface sees the first events.
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		log.Info("stopping engine")
		if stopErr := eng.Stop(); stopErr != nil {
			log.Error("error stopping engine", "error", stopErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"authenticated", eng.IsAuthenticated(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Engine
	// 2. API server
	// 3. InfluxDB (if enabled)
	// 4. MQTT bridge and client (if enabled)
	// 5. Database

	log.Info("nestsync stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NESTSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NESTSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildEngine wires the engine's stores, remote client and stream timing
// from cfg. Nothing touches the network.
func buildEngine(cfg *config.Config, db *database.DB) (*engine.Engine, error) {
	client, err := remote.NewClient(cfg.Nest.APIURL, cfg.Nest.RevokeURL, cfg.Nest.GetRequestTimeout())
	if err != nil {
		return nil, fmt.Errorf("creating remote client: %w", err)
	}

	var authorizer engine.Authorizer
	if cfg.Nest.ClientID != "" {
		authorizer = remote.NewAuthorizer(remote.OAuthConfig{
			ClientID:         cfg.Nest.ClientID,
			ClientSecret:     cfg.Nest.ClientSecret,
			RedirectURL:      cfg.Nest.RedirectURL,
			AuthorizationURL: cfg.Nest.AuthorizationURL,
			TokenURL:         cfg.Nest.TokenURL,
		})
	}

	eng, err := engine.New(engine.Deps{
		Store:       settings.NewStore(db.DB),
		Log:         audit.NewSQLiteRepository(db.DB),
		Remote:      client,
		Authorizer:  authorizer,
		Stream:      streamConfig(cfg.Nest),
		AuthTimeout: cfg.Nest.GetRequestTimeout(),
		EcoOverride: device.EcoOverride{
			Allow: cfg.Nest.EcoOverride.Allow,
			Mode:  cfg.Nest.EcoOverride.By,
		},
		AppVersion: pairingAppVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return eng, nil
}

// streamConfig converts the configured stream timing.
func streamConfig(n config.NestConfig) stream.Config {
	return stream.Config{
		URL:              n.StreamURL,
		OpenTimeout:      n.OpenTimeout(),
		KeepAliveTimeout: n.KeepAliveTimeout(),
		RestartInterval:  n.RestartInterval(),
		Backoff: stream.BackoffConfig{
			Initial:    time.Duration(n.Stream.Reconnect.InitialDelay) * time.Second,
			Max:        time.Duration(n.Stream.Reconnect.MaxDelay) * time.Second,
			Multiplier: stream.BackoffMultiplier,
			Jitter:     backoffJitter,
		},
	}
}

// startMQTTBridge connects to the broker and starts the Nest bridge.
//
// Returns:
//   - *mqtt.Client: Connected client, closed by the caller after the bridge stops
//   - *nest.Bridge: Running bridge
//   - error: If connecting or starting fails
func startMQTTBridge(ctx context.Context, cfg config.MQTTConfig, eng *engine.Engine, log *logging.Logger) (*mqtt.Client, *nest.Bridge, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"payload_format", client.Codec().Format(),
	)

	bridge, err := nest.NewBridge(client, eng)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	bridge.SetLogger(log.With("component", "bridge"))
	if err := bridge.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	log.Info("MQTT bridge started")
	return client, bridge, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil if disabled)
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// jsonwpd is the JSON Wire Protocol gateway.
//
// It serves the JSONWP route table under a configurable base path and hands
// every command to an upstream automation server: session lifecycle is
// handled locally, all other session traffic is proxied. Every dispatched
// command is recorded to SQLite and optionally published to MQTT and
// InfluxDB.
//
// Configuration is read from configs/config.yaml, or the file named by
// JSONWP_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/jsonwp-core/migrations"

	"github.com/nerrad567/jsonwp-core/internal/api"
	"github.com/nerrad567/jsonwp-core/internal/audit"
	"github.com/nerrad567/jsonwp-core/internal/driver/upstream"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/config"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/database"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/logging"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
	"github.com/nerrad567/jsonwp-core/internal/process"
	"github.com/nerrad567/jsonwp-core/internal/routes"
	"github.com/nerrad567/jsonwp-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when JSONWP_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// upstreamReadyTimeout bounds the wait for a managed upstream to answer /status.
	upstreamReadyTimeout = 60 * time.Second

	// sessionCleanupTimeout bounds the upstream session cleanup on shutdown.
	sessionCleanupTimeout = 15 * time.Second
)

// errNoUpstream is returned when no upstream URL is configured.
var errNoUpstream = errors.New("upstream.url is required")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until ctx is cancelled, then shuts
// down in reverse order. It is separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting JSONWP gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	table, err := loadRoutes(cfg.Protocol.RoutesFile)
	if err != nil {
		return err
	}
	log.Info("route table loaded", "routes", len(table), "digest", table.Digest())
	if cfg.Protocol.RoutesFile == "" && table.Digest() != routes.DefaultDigest {
		log.Warn("embedded route table digest changed", "want", routes.DefaultDigest, "got", table.Digest())
	}

	drv, err := newUpstreamDriver(cfg, log)
	if err != nil {
		return err
	}

	// Sinks run on their own context so they can drain after the HTTP
	// server has stopped accepting commands.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()

	counters := telemetry.NewCounters()
	hub := api.NewHub(cfg.WebSocket, log)
	observers := []jsonwp.Observer{counters, hub}
	var sinksDone []<-chan struct{}

	// Command audit trail
	var db *database.DB
	var commandRepo audit.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)

		repo := audit.NewSQLiteRepository(db.DB)
		recorder := audit.NewRecorder(repo, log)
		go recorder.Run(sinkCtx)
		sinksDone = append(sinksDone, recorder.Done())
		commandRepo = repo
		observers = append(observers, recorder)
	} else {
		log.Info("command audit trail disabled")
	}

	// MQTT event publisher
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"topics", mqttClient.Topics().AllCommandEvents(),
		)

		sink := telemetry.NewMQTTSink(mqttClient, log)
		go sink.Run(sinkCtx)
		sinksDone = append(sinksDone, sink.Done())
		observers = append(observers, sink)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB metrics
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		observers = append(observers, telemetry.NewInfluxSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// Managed upstream process
	var upstreamProc *process.Manager
	if cfg.Upstream.Managed.Enabled {
		upstreamProc, err = startUpstream(ctx, cfg, drv, log)
		if err != nil {
			return fmt.Errorf("starting upstream: %w", err)
		}
		defer func() {
			log.Info("stopping upstream process")
			if stopErr := upstreamProc.Stop(); stopErr != nil {
				log.Error("error stopping upstream", "error", stopErr)
			}
		}()
	} else if pingErr := drv.Ping(ctx); pingErr != nil {
		log.Warn("upstream not reachable yet", "url", drv.URL(), "error", pingErr)
	}

	dispatcher, err := jsonwp.NewDispatcher(jsonwp.Options{
		Driver:     drv,
		Routes:     table,
		Validators: jsonwp.NewValidatorRegistry(jsonwp.DefaultValidators()),
		BasePath:   cfg.Protocol.BasePath,
		Logger:     log.With("component", "jsonwp"),
		Observer:   telemetry.NewFanout(observers...),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Dispatcher:  dispatcher,
		Counters:    counters,
		CommandRepo: commandRepo,
		DB:          db,
		MQTT:        mqttClient,
		Influx:      influxClient,
		Upstream:    drv,
		Process:     upstreamProc,
		Hub:         hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		server.Close() //nolint:errcheck // already failing
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), sessionCleanupTimeout)
	drv.Shutdown(cleanupCtx)
	cancel()

	stopSinks()
	for _, done := range sinksDone {
		<-done
	}

	// Deferred closes run in reverse order: upstream process, InfluxDB,
	// MQTT, database.
	log.Info("JSONWP gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses JSONWP_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("JSONWP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadRoutes returns the operator's route table, or the embedded default.
func loadRoutes(path string) (jsonwp.RouteTable, error) {
	if path == "" {
		return routes.Default(), nil
	}
	table, err := routes.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading route table: %w", err)
	}
	return table, nil
}

// newUpstreamDriver builds the driver from the upstream config section.
// Malformed avoid rules are fatal.
func newUpstreamDriver(cfg *config.Config, log *logging.Logger) (*upstream.Driver, error) {
	if cfg.Upstream.URL == "" {
		return nil, errNoUpstream
	}
	avoid, err := jsonwp.ParseAvoidRules(cfg.Upstream.ProxyAvoid)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream.proxy_avoid: %w", err)
	}
	drv, err := upstream.New(upstream.Config{
		URL:        cfg.Upstream.URL,
		BasePath:   cfg.Protocol.BasePath,
		Timeout:    cfg.GetUpstreamTimeout(),
		ProxyAvoid: avoid,
	}, log.With("component", "upstream"))
	if err != nil {
		return nil, fmt.Errorf("creating upstream driver: %w", err)
	}
	log.Info("upstream configured", "url", drv.URL(), "avoid_rules", len(avoid))
	return drv, nil
}

// startUpstream launches the managed upstream server and waits until it
// answers /status.
func startUpstream(ctx context.Context, cfg *config.Config, drv *upstream.Driver, log *logging.Logger) (*process.Manager, error) {
	m := cfg.Upstream.Managed

	pcfg := process.DefaultConfig("upstream", m.Binary, m.Args)
	pcfg.RestartOnFailure = m.RestartOnFailure
	pcfg.MaxRestartAttempts = m.MaxRestartAttempts
	if m.RestartDelaySeconds > 0 {
		pcfg.RestartDelay = time.Duration(m.RestartDelaySeconds) * time.Second
	}
	if m.HealthCheckInterval > 0 {
		pcfg.HealthCheckInterval = m.HealthCheckInterval
	}
	pcfg.HealthCheckFunc = drv.Ping
	pcfg.OnRestart = func(attempt int) {
		log.Warn("restarting upstream", "attempt", attempt)
	}

	manager := process.NewManager(pcfg)
	manager.SetLogger(log.With("component", "process"))

	log.Info("starting upstream", "binary", m.Binary, "args", m.Args)
	if err := manager.Start(ctx); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	if err := manager.WaitReady(ctx, upstreamReadyTimeout); err != nil {
		manager.Stop() //nolint:errcheck // already failing
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	log.Info("upstream ready", "pid", manager.PID(), "url", drv.URL())
	return manager, nil
}

// healthCheck verifies the enabled infrastructure connections.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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

// TWC Director bridges a fleet of Tesla Wall Connectors on an RS-485 bus to
// MQTT-based home automation.
//
// It supervises the RS-485 gateway process, discovers peripherals from the
// gateway's telemetry and exposes each charger as sensor, number and event
// entities over MQTT, a REST API and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/twc-director/migrations"

	"github.com/nerrad567/twc-director/internal/api"
	"github.com/nerrad567/twc-director/internal/auth"
	"github.com/nerrad567/twc-director/internal/device"
	"github.com/nerrad567/twc-director/internal/director"
	"github.com/nerrad567/twc-director/internal/events"
	"github.com/nerrad567/twc-director/internal/host"
	"github.com/nerrad567/twc-director/internal/infrastructure/config"
	"github.com/nerrad567/twc-director/internal/infrastructure/database"
	"github.com/nerrad567/twc-director/internal/infrastructure/influxdb"
	"github.com/nerrad567/twc-director/internal/infrastructure/logging"
	"github.com/nerrad567/twc-director/internal/infrastructure/metrics"
	"github.com/nerrad567/twc-director/internal/infrastructure/mqtt"
	"github.com/nerrad567/twc-director/internal/process"
	"github.com/nerrad567/twc-director/internal/twc"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "TWCDIRECTOR_CONFIG"

	// shutdownTimeout bounds the orderly stop of the session.
	shutdownTimeout = 15 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled and tears down
// in reverse order.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting TWC Director", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	db, err := database.Open(database.Config{
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
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), cfg.Site.ID)
	registry.SetLogger(log.With("component", "device"))
	if err := registry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry loaded", "devices", len(registry.List()))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Left as nil interfaces when InfluxDB is disabled.
	var (
		history   host.HistoryWriter
		telemetry twc.TelemetryRecorder
	)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		history, telemetry = influxClient, influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	sinks := []host.EventSink{host.MQTTEventSink{Client: mqttClient}}
	if cfg.Events.AMQP.Enabled {
		amqpSink, sinkErr := events.NewAMQPSink(cfg.Events.AMQP, log.With("component", "amqp"))
		if sinkErr != nil {
			return fmt.Errorf("configuring AMQP events: %w", sinkErr)
		}
		if err := amqpSink.Start(ctx); err != nil {
			return fmt.Errorf("connecting to AMQP broker: %w", err)
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	entityHost, err := host.New(host.Options{
		MQTT:      mqttClient,
		History:   history,
		Store:     host.NewSQLiteStateStore(db.DB),
		Events:    sinks,
		WebSocket: hub,
		Metrics:   m,
		Logger:    log.With("component", "host"),
	})
	if err != nil {
		return fmt.Errorf("creating entity host: %w", err)
	}

	var supervisor *process.Supervisor
	if cfg.TWC.Gateway.Managed {
		supervisor, err = startGateway(ctx, cfg, m, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("stopping RS-485 gateway")
			if stopErr := supervisor.Stop(); stopErr != nil {
				log.Error("error stopping gateway", "error", stopErr)
			}
		}()
	}

	session, err := director.New(director.Options{
		Config:    cfg.TWC,
		MQTT:      mqttClient,
		Registry:  registry,
		Host:      entityHost,
		Telemetry: telemetry,
		Metrics:   m,
		Logger:    log.With("component", "director"),
	})
	if err != nil {
		return fmt.Errorf("creating director session: %w", err)
	}
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("starting director session: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("stopping director session")
		if stopErr := session.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping director session", "error", stopErr)
		}
	}()

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.With("component", "api"),
			Entities: entityHost,
			Devices:  registry,
			MQTT:     mqttClient,
			Hub:      hub,
			Version:  version,
		}
		if supervisor != nil {
			deps.Gateway = supervisor
		}
		if m != nil {
			deps.Prometheus = m.Handler()
			deps.MetricsPath = cfg.Metrics.Path
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// startGateway launches the supervised RS-485 gateway binary.
func startGateway(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logging.Logger) (*process.Supervisor, error) {
	supervisor, err := process.NewSupervisor(process.OptionsFromConfig(cfg.TWC.Gateway, cfg.TWC.RS485Interface))
	if err != nil {
		return nil, fmt.Errorf("creating gateway supervisor: %w", err)
	}
	supervisor.SetLogger(log.With("component", "gateway"))
	if m != nil {
		supervisor.SetMetrics(m)
	}

	if err := supervisor.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting RS-485 gateway: %w", err)
	}
	log.Info("RS-485 gateway started",
		"binary", cfg.TWC.Gateway.Binary,
		"interface", cfg.TWC.RS485Interface,
	)
	return supervisor, nil
}

// issueToken prints a bearer token for the API.
//
// Usage: twcdirector token <subject> [ttl]
// where ttl is a Go duration such as 720h.
func issueToken(w io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: twcdirector token <subject> [ttl]")
	}
	var ttl time.Duration
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("parsing ttl: %w", err)
		}
		ttl = d
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := auth.GenerateToken(args[0], cfg.Security.JWT, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// getConfigPath returns TWCDIRECTOR_CONFIG when set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthChecker is satisfied by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies the database and broker links after startup.
func healthCheck(ctx context.Context, db, mqttClient healthChecker) error {
	var errs []error
	if err := db.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	return errors.Join(errs...)
}

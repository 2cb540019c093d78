// WashLogic Core - IoT car-wash reconciliation engine
//
// This is the main entry point for the WashLogic Core application.
// WashLogic Core ingests telemetry from self-service wash units and
// reconciles it against payment orders:
//   - Idempotent event store (at-least-once device delivery)
//   - Order correlation and lifecycle enforcement
//   - Consumable inventory tracking with an append-only ledger
//   - Operational alerting for faults, silence and low stock
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/washlogic/washlogic-core/migrations"

	"github.com/washlogic/washlogic-core/internal/alert"
	"github.com/washlogic/washlogic-core/internal/api"
	"github.com/washlogic/washlogic-core/internal/audit"
	"github.com/washlogic/washlogic-core/internal/device"
	"github.com/washlogic/washlogic-core/internal/event"
	"github.com/washlogic/washlogic-core/internal/infrastructure/config"
	"github.com/washlogic/washlogic-core/internal/infrastructure/database"
	"github.com/washlogic/washlogic-core/internal/infrastructure/influxdb"
	"github.com/washlogic/washlogic-core/internal/infrastructure/logging"
	"github.com/washlogic/washlogic-core/internal/infrastructure/mqtt"
	"github.com/washlogic/washlogic-core/internal/inventory"
	"github.com/washlogic/washlogic-core/internal/order"
	"github.com/washlogic/washlogic-core/internal/reconcile"
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

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting WashLogic Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	eventRepo := event.NewSQLiteRepository(db.DB)
	orderRepo := order.NewSQLiteRepository(db.DB)
	itemRepo := inventory.NewSQLiteRepository(db.DB)
	deviceRepo := device.NewSQLiteRepository(db.DB)
	alertRepo := alert.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Domain services
	ledger := inventory.NewLedger(itemRepo, cfg.Rates)
	ledger.SetLogger(log)

	evaluator := alert.NewEvaluator(alertRepo)
	evaluator.SetLogger(log)

	coordinator := reconcile.NewCoordinator(
		cfg.Reconcile,
		eventRepo,
		deviceRepo,
		order.NewCorrelator(orderRepo),
		ledger,
		evaluator,
	)
	coordinator.SetLogger(log)

	// Connect to MQTT broker (optional; HTTP ingest still works without it)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// Device telemetry feeds the ingest path; processing happens on
		// the coordinator's poll loop, never on the broker's goroutine.
		topics := mqtt.Topics{}
		qos := byte(cfg.MQTT.QoS)
		if subErr := mqttClient.Subscribe(topics.AllDeviceEvents(), qos, coordinator.EventHandler()); subErr != nil {
			return fmt.Errorf("subscribing to device events: %w", subErr)
		}
		log.Info("subscribed to device telemetry", "pattern", topics.AllDeviceEvents())

		// Fan newly raised alerts out to the broker for external consumers.
		evaluator.SetNotifier(&alertPublisher{client: mqttClient, qos: qos, log: log})
	} else {
		log.Info("MQTT disabled, ingest is HTTP-only")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		coordinator.SetMetrics(influxdb.NewSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start HTTP API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		Logger:      log,
		Coordinator: coordinator,
		Events:      eventRepo,
		Orders:      orderRepo,
		Inventory:   itemRepo,
		Ledger:      ledger,
		Alerts:      alertRepo,
		Evaluator:   evaluator,
		Devices:     deviceRepo,
		Audit:       auditRepo,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, starting reconciliation loop")

	// Run blocks until the context is cancelled by a shutdown signal.
	if err := coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reconciliation loop: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("WashLogic Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WASHLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WASHLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
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

// alertPublisher fans raised alerts out on washlogic/core/alert/{type}.
//
// Publication is best-effort: the alert row is already committed, and a
// broker hiccup must not fail the pipeline that raised it.
type alertPublisher struct {
	client *mqtt.Client
	qos    byte
	log    *logging.Logger
}

func (p *alertPublisher) AlertRaised(a *alert.Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		p.log.Error("marshalling alert for fan-out", "alert_id", a.ID, "error", err)
		return
	}

	topic := mqtt.Topics{}.CoreAlert(string(a.Type))
	if err := p.client.Publish(topic, payload, p.qos, false); err != nil {
		p.log.Warn("alert fan-out publish failed", "alert_id", a.ID, "topic", topic, "error", err)
	}
}

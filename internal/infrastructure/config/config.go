package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for WashLogic Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Rates     RatesConfig     `yaml:"rates"`
}

// SiteConfig contains deployment-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for telemetry ingest.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// time-series reporting sink.
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

// ReconcileConfig contains tuning for the device-event reconciliation engine.
//
// These values are business configuration, not engine constants: the liveness
// window and reorder tolerance depend on device firmware and network quality
// at each deployment.
type ReconcileConfig struct {
	// PollInterval is how often the coordinator scans for pending events.
	PollInterval time.Duration `yaml:"poll_interval"`

	// EventTimeout bounds a single pipeline run for one event.
	// Exceeding it marks the event row failed with reason "timeout".
	EventTimeout time.Duration `yaml:"event_timeout"`

	// ReorderTolerance is how long a premature session_stop (no open session
	// yet) is held in the pending queue before it is parked as unmatched.
	// Covers out-of-order delivery from retransmitting devices.
	ReorderTolerance time.Duration `yaml:"reorder_tolerance"`

	// LivenessWindow is the maximum heartbeat silence before a device is
	// considered offline and a device_offline alert is raised.
	LivenessWindow time.Duration `yaml:"liveness_window"`

	// LivenessSweepInterval is how often the liveness sweep runs.
	LivenessSweepInterval time.Duration `yaml:"liveness_sweep_interval"`

	// MaxAttempts caps automatic retries of retryable failures (conflict,
	// timeout). 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`

	// BatchSize is the maximum number of pending events loaded per scan.
	BatchSize int `yaml:"batch_size"`
}

// UnmarshalYAML decodes durations from Go duration strings ("30s", "5m").
// Fields absent from the document keep their current (default) values.
func (r *ReconcileConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PollInterval          string `yaml:"poll_interval"`
		EventTimeout          string `yaml:"event_timeout"`
		ReorderTolerance      string `yaml:"reorder_tolerance"`
		LivenessWindow        string `yaml:"liveness_window"`
		LivenessSweepInterval string `yaml:"liveness_sweep_interval"`
		MaxAttempts           *int   `yaml:"max_attempts"`
		BatchSize             *int   `yaml:"batch_size"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	for _, field := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_interval", raw.PollInterval, &r.PollInterval},
		{"event_timeout", raw.EventTimeout, &r.EventTimeout},
		{"reorder_tolerance", raw.ReorderTolerance, &r.ReorderTolerance},
		{"liveness_window", raw.LivenessWindow, &r.LivenessWindow},
		{"liveness_sweep_interval", raw.LivenessSweepInterval, &r.LivenessSweepInterval},
	} {
		if field.raw == "" {
			continue
		}
		d, err := time.ParseDuration(field.raw)
		if err != nil {
			return fmt.Errorf("reconcile.%s: %w", field.name, err)
		}
		*field.dst = d
	}

	if raw.MaxAttempts != nil {
		r.MaxAttempts = *raw.MaxAttempts
	}
	if raw.BatchSize != nil {
		r.BatchSize = *raw.BatchSize
	}
	return nil
}

// RatesConfig defines per-minute inventory consumption rates for each wash
// tier, in integer minor units (millilitres or watt-hours per minute).
//
// Fixed-point integers are used end-to-end; floating point would drift over
// thousands of ledger applications.
type RatesConfig struct {
	// Tiers maps wash tier name to item-type rates.
	// Example: tiers.premium.detergent: 120 (ml per minute)
	Tiers map[string]map[string]int64 `yaml:"tiers"`

	// StoreOverrides maps store ID to tier rates that replace the defaults
	// for that store.
	StoreOverrides map[string]map[string]map[string]int64 `yaml:"store_overrides"`
}

// RateFor returns the per-minute consumption rate for the given store, tier
// and item type. Store overrides take precedence over the default tier rates.
// A missing entry returns zero (the item is not consumed by that tier).
func (r RatesConfig) RateFor(storeID, tier, itemType string) int64 {
	if byTier, ok := r.StoreOverrides[storeID]; ok {
		if rates, ok := byTier[tier]; ok {
			if rate, ok := rates[itemType]; ok {
				return rate
			}
		}
	}
	if rates, ok := r.Tiers[tier]; ok {
		return rates[itemType]
	}
	return 0
}

// RatesFor returns the full per-minute rate table for the given store and
// tier, item type to rate. Store overrides replace the tier table wholesale
// when present. The returned map is a copy and safe to mutate.
func (r RatesConfig) RatesFor(storeID, tier string) map[string]int64 {
	source := r.Tiers[tier]
	if byTier, ok := r.StoreOverrides[storeID]; ok {
		if rates, ok := byTier[tier]; ok {
			source = rates
		}
	}

	rates := make(map[string]int64, len(source))
	for itemType, rate := range source {
		rates[itemType] = rate
	}
	return rates
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WASHLOGIC_SECTION_KEY
// For example: WASHLOGIC_DATABASE_PATH, WASHLOGIC_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
// Values match a single-store development deployment.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "WashLogic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/washlogic.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "washlogic-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Org:           "washlogic",
			Bucket:        "telemetry",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Reconcile: ReconcileConfig{
			PollInterval:          5 * time.Second,
			EventTimeout:          30 * time.Second,
			ReorderTolerance:      2 * time.Minute,
			LivenessWindow:        5 * time.Minute,
			LivenessSweepInterval: time.Minute,
			MaxAttempts:           5,
			BatchSize:             200,
		},
		Rates: RatesConfig{
			Tiers: map[string]map[string]int64{
				"basic":    {"detergent": 40, "water": 8000, "electricity": 50},
				"standard": {"detergent": 60, "water": 10000, "foam": 30, "electricity": 65},
				"premium":  {"detergent": 80, "water": 12000, "foam": 50, "wax": 20, "electricity": 80},
			},
		},
	}
}

// applyEnvOverrides applies WASHLOGIC_* environment variables over the loaded config.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("WASHLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("WASHLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WASHLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WASHLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("WASHLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("WASHLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("WASHLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("WASHLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for invalid or missing values.
// It collects all problems into a single error so misconfiguration is
// reported in one pass.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Reconcile.EventTimeout <= 0 {
		errs = append(errs, "reconcile.event_timeout must be positive")
	}
	if c.Reconcile.LivenessWindow <= 0 {
		errs = append(errs, "reconcile.liveness_window must be positive")
	}
	if c.Reconcile.ReorderTolerance < 0 {
		errs = append(errs, "reconcile.reorder_tolerance cannot be negative")
	}
	if c.Reconcile.BatchSize < 1 {
		errs = append(errs, "reconcile.batch_size must be at least 1")
	}

	for tier, rates := range c.Rates.Tiers {
		for itemType, rate := range rates {
			if rate < 0 {
				errs = append(errs, fmt.Sprintf("rates.tiers.%s.%s cannot be negative", tier, itemType))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Package config loads and validates WashLogic Core configuration.
//
// Configuration is read from a YAML file, with hardcoded defaults applied
// first and WASHLOGIC_* environment variables applied last:
//
//	cfg, err := config.Load("configs/config.yaml")
//
// # Sections
//
//   - site: deployment identity
//   - database: SQLite path and pragmas
//   - mqtt: telemetry ingest broker
//   - api: administrative HTTP surface
//   - influxdb: optional time-series reporting sink
//   - logging: level, format, output
//   - reconcile: event pipeline tuning (timeouts, liveness window, batching)
//   - rates: per-tier, per-minute inventory consumption rates
//
// # Consumption rates
//
// Rates are integer minor units per minute (millilitres, watt-hours) keyed by
// wash tier and item type, with optional per-store overrides:
//
//	rates:
//	  tiers:
//	    premium:
//	      detergent: 80     # ml/min
//	      water: 12000      # ml/min
//	  store_overrides:
//	    store-17:
//	      premium:
//	        detergent: 100
//
// Validation is a single explicit pass over the loaded struct; there is no
// tag-driven validation framework.
package config

// Package influxdb provides InfluxDB connectivity for WashLogic Core.
//
// It wraps the official influxdb-client-go v2 library with WashLogic-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Completed wash sessions (duration, revenue, tier)
//   - Inventory consumption and restock deltas per item
//   - Ad-hoc operational measurements via WritePoint
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "washlogic",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteWashSession(completedOrder)
//
// The reconciliation coordinator does not talk to this package directly;
// wire it via NewSink, which tolerates a nil client when metrics are
// disabled in config.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
package influxdb

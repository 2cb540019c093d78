// Package mqtt provides the broker connection used to receive device
// telemetry and fan out alerts.
//
// The Client wraps paho.mqtt.golang with connection management, automatic
// reconnection with exponential backoff, re-subscription on reconnect, and
// panic-recovered message handlers.
//
// # Topic scheme
//
// Wash devices publish telemetry on washlogic/event/{device_id}/{kind};
// the core subscribes with the washlogic/event/+/+ wildcard and ingests
// every message into the event store. The core's own liveness is published
// retained on washlogic/system/status with a Last Will and Testament so
// other services see an unexpected disconnect.
//
// Handlers receive raw topic and payload. Delivery is at-least-once at the
// configured QoS; deduplication happens downstream in the event store, not
// here.
package mqtt

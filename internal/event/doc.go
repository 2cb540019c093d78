// Package event provides the durable event store and payload parser for
// device telemetry.
//
// Every telemetry report received at the server boundary becomes an
// append-only DeviceEvent row recording the raw payload and its processing
// state. The row is the audit trail: it is never deleted, and once marked
// processed it is never mutated again.
//
// # Idempotent ingest
//
// Devices retransmit on uncertain delivery. The (device_id, kind, device_ts)
// unique index deduplicates retransmissions at the storage layer; Ingest
// returns the existing row instead of failing.
//
// # Parsing
//
// ParsePayload is a pure function from (kind, raw payload) to a normalised
// Fact. It performs no I/O and no correlation lookups. Quantities are
// fixed-point integers in minor units throughout; the decoder uses
// json.Number so large integers never pass through float64.
package event

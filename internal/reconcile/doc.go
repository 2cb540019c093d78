// Package reconcile drives device telemetry through the reconciliation
// pipeline: event store, payload parser, order correlator, inventory
// ledger, alert evaluator.
//
// # Processing model
//
// Events for different devices run concurrently with no cross-device
// ordering. Events for the same device run sequentially in device-timestamp
// order, because a session_stop must never be evaluated before its matching
// session_start. A stop that arrives ahead of its start is held in the
// pending queue for a configurable tolerance window, then parked as
// unmatched.
//
// # Failure taxonomy
//
// A failed pipeline run records one of five reasons on the event row:
// malformed_payload, unmatched_session, invalid_transition, conflict,
// timeout. Only conflict and timeout are transient; those rows are retried
// automatically up to the attempt cap. The rest wait for data or an
// operator.
//
// Retries re-run the whole pipeline. That is safe because every step is
// idempotent: ingest deduplicates by (device, kind, timestamp), the
// correlator recognises already-applied session boundaries, consumption is
// charged once per order at the storage layer, and alert raises
// deduplicate per open condition. Side effects committed before a failure
// are never rolled back; the failure stays visible on the row instead.
package reconcile

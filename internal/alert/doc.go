// Package alert surfaces operational conditions raised by the
// reconciliation pipeline and manages their lifecycle.
//
// An alert moves active → acknowledged → resolved; acknowledging is
// optional. Acknowledged alerts are still open: the condition has not
// cleared, so the same condition does not raise a second row.
//
// # One open alert per condition
//
// The invariant is at most one open alert per (type, subject) pair. It is
// enforced by a partial unique index at the storage layer, not in
// application logic, which closes the race between two concurrent
// evaluators both reading "no active alert" before either writes.
//
// The Evaluator holds the rules: low/empty inventory raises and recovery
// resolves low_inventory; a missed liveness window raises and the next
// heartbeat resolves device_offline; device-reported faults and unmatched
// sessions raise device_error until the device reports clear; engine-side
// failures such as unparseable payloads raise system_error.
package alert

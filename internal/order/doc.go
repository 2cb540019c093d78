// Package order models the commercial wash transaction and correlates
// device session facts with its lifecycle.
//
// # Lifecycle
//
// The status graph is draft → pending → paid → using → completed, with
// cancelled reachable from draft/pending/paid and refunded from
// paid/using/completed. Transitions are monotonic: no order ever revisits a
// state. An illegal edge is rejected with ErrInvalidTransition and the order
// is left untouched.
//
// # Correlation
//
// A session-start for device D binds to the paid order for D with the most
// recent paid_at that has no session yet (the device serves one customer at
// a time, so the latest payment wins ties). A session-stop completes the
// open `using` order, stamping the end time and observed duration.
// Heartbeats never change order state.
//
// Re-delivered facts are recognised by their session boundary timestamps and
// treated as no-op successes: devices retransmit on uncertain delivery, so
// duplicate application must be indistinguishable from single application.
//
// # Races
//
// Administrative edits (cancel, refund) and device events are concurrent
// writers to the same rows. Every status write is guarded by an optimistic
// version check at the storage layer; the losing writer observes
// ErrConcurrencyConflict and is reported, never silently dropped.
package order

// Package inventory tracks per-store consumables through an append-only
// mutation ledger.
//
// Stock is never overwritten directly. Every change goes through
// Repository.ApplyDelta, which writes the new level and a ledger row in one
// transaction, so the delta history reconstructs the current level at any
// point. Levels are clamped to [0, MaxCapacity]; a consumption that would
// go below zero is applied as far as it can and the shortfall reported,
// because the wash already physically happened.
//
// # Once per order
//
// Wash consumption records the consuming order number against the ledger
// entry, guarded by a partial unique index on (item, order). Duplicate
// delivery of a completion therefore charges each item exactly once; the
// second application is a no-op.
//
// # Concurrent writers
//
// Device-driven consumption and administrative adjustments race. The item
// row carries a version column checked on update; the loser observes
// ErrConcurrencyConflict and retries from a fresh read.
package inventory

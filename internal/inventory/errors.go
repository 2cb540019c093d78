package inventory

import "errors"

// Domain errors for the inventory package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, inventory.ErrDuplicateConsumption) {
//	    // already charged for this order; no-op
//	}
var (
	// ErrItemNotFound is returned when an item ID or (store, type) pair
	// does not exist.
	ErrItemNotFound = errors.New("inventory: item not found")

	// ErrItemExists is returned when creating an item for a (store, type)
	// pair that is already tracked.
	ErrItemExists = errors.New("inventory: item already exists")

	// ErrDuplicateConsumption is returned when an order has already been
	// charged against an item. The existing ledger entry stands; callers
	// treat this as a successful no-op.
	ErrDuplicateConsumption = errors.New("inventory: order already consumed")

	// ErrConcurrencyConflict is returned when an optimistic version check
	// fails: another writer mutated the item first. Safe to retry.
	ErrConcurrencyConflict = errors.New("inventory: concurrent modification")
)

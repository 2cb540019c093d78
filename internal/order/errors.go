package order

import "errors"

// Domain errors for the order package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, order.ErrInvalidTransition) {
//	    // handle rejected state change
//	}
var (
	// ErrOrderNotFound is returned when an order number does not exist.
	ErrOrderNotFound = errors.New("order: not found")

	// ErrOrderExists is returned when creating an order with a number that
	// already exists.
	ErrOrderExists = errors.New("order: already exists")

	// ErrInvalidTransition is returned when an attempted state change is not
	// an edge of the lifecycle graph. The order is left untouched.
	ErrInvalidTransition = errors.New("order: invalid transition")

	// ErrUnmatchedSession is returned when a session fact has no eligible
	// order to correlate with. The fact is still recorded for forensics.
	ErrUnmatchedSession = errors.New("order: unmatched session")

	// ErrConcurrencyConflict is returned when an optimistic version check
	// fails: another writer mutated the order first. Safe to retry.
	ErrConcurrencyConflict = errors.New("order: concurrent modification")
)

package event

import "errors"

// Domain errors for the event package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, event.ErrMalformedPayload) {
//	    // handle parse failure
//	}
var (
	// ErrMalformedPayload is returned when a payload cannot be parsed into a
	// fact for its declared kind. Parse failures are terminal for the event.
	ErrMalformedPayload = errors.New("event: malformed payload")

	// ErrInvalidKind is returned when an event kind is not recognised.
	ErrInvalidKind = errors.New("event: invalid kind")

	// ErrEventNotFound is returned when an event ID does not exist.
	ErrEventNotFound = errors.New("event: not found")

	// ErrEventImmutable is returned when attempting to mutate a processed row.
	ErrEventImmutable = errors.New("event: processed row is immutable")
)

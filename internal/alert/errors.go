package alert

import "errors"

// Domain errors for the alert package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, alert.ErrAlertNotFound) {
//	    // unknown alert ID
//	}
var (
	// ErrAlertNotFound is returned when an alert ID does not exist.
	ErrAlertNotFound = errors.New("alert: not found")

	// ErrInvalidAlertState is returned when a lifecycle operation is not
	// legal for the alert's current status, such as acknowledging a
	// resolved alert.
	ErrInvalidAlertState = errors.New("alert: invalid state for operation")
)

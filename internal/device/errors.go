package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device with an ID
	// that already exists.
	ErrDeviceExists = errors.New("device: already exists")
)

package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when an interface name is not present in
	// the inventory snapshot.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInventory is returned when the inventory cannot be read.
	ErrInventory = errors.New("device: inventory unavailable")
)

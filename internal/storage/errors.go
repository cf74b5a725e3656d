package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreCorrupt reports a registry file that cannot be parsed.
	ErrStoreCorrupt = errors.New("device registry is corrupt")
	ErrDuplicateID  = errors.New("device id already exists")
	ErrNotFound     = errors.New("device not found")
)

// DeviceError ties a registry failure to the device id that caused it.
type DeviceError struct {
	ID  int
	Err error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("%v: %d", e.Err, e.ID)
}

// Unwrap returns the underlying sentinel.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

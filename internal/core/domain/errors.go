package domain

import (
	"errors"
	"fmt"
)

// DeviceUnavailableError reports a transport failure talking to the physical device.
type DeviceUnavailableError struct {
	Device string
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device %s unavailable", e.Device)
	}
	return fmt.Sprintf("device %s unavailable: %v", e.Device, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error {
	return e.Err
}

// MalformedReadingError reports a raw reading missing a key path or holding a
// non numeric value at it.
type MalformedReadingError struct {
	Path   string
	Reason string
}

func (e *MalformedReadingError) Error() string {
	return fmt.Sprintf("malformed reading at %s: %s", e.Path, e.Reason)
}

func IsDeviceUnavailable(err error) bool {
	var target *DeviceUnavailableError
	return errors.As(err, &target)
}

func IsMalformedReading(err error) bool {
	var target *MalformedReadingError
	return errors.As(err, &target)
}

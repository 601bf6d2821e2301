// Package gpio provides GPIO output driving with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// ErrInvalidPin is returned when a pin cannot be configured as an output.
var ErrInvalidPin = errors.New("gpio: invalid pin")

// Output drives digital output lines.
type Output interface {
	// ConfigureOutput requests the pin as an output driven to the physical
	// level initialHigh from the moment it is claimed.
	ConfigureOutput(pin int, initialHigh bool) error

	// SetLevel drives the pin high or low. The level is physical:
	// polarity is the caller's concern.
	SetLevel(pin int, high bool) error

	// Close releases GPIO resources.
	Close() error
}

// Default chip and relay pin (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 17
)

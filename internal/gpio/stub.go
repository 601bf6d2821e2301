//go:build !linux

package gpio

import "errors"

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string) (*RealOutput, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ConfigureOutput is not implemented on non-Linux platforms.
func (r *RealOutput) ConfigureOutput(pin int, initialHigh bool) error {
	return errors.New("gpio: not supported")
}

// SetLevel is not implemented on non-Linux platforms.
func (r *RealOutput) SetLevel(pin int, high bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealOutput) Close() error {
	return nil
}

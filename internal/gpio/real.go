//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives output lines on actual hardware using the Linux GPIO
// character device.
type RealOutput struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewRealOutput opens the named GPIO chip (e.g. "gpiochip0").
func NewRealOutput(chipName string) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealOutput{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// ConfigureOutput requests the line as an output at the given initial level,
// so an active-low relay is never pulsed ON while the line is claimed.
func (r *RealOutput) ConfigureOutput(pin int, initialHigh bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pin < 0 || pin >= r.chip.Lines() {
		return fmt.Errorf("%w: %d (chip has %d lines)", ErrInvalidPin, pin, r.chip.Lines())
	}
	if _, ok := r.lines[pin]; ok {
		return nil
	}
	v := 0
	if initialHigh {
		v = 1
	}
	line, err := r.chip.RequestLine(pin, gpiocdev.AsOutput(v))
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	r.lines[pin] = line
	return nil
}

// SetLevel drives the line high (1) or low (0).
func (r *RealOutput) SetLevel(pin int, high bool) error {
	r.mu.Lock()
	line, ok := r.lines[pin]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d not configured", ErrInvalidPin, pin)
	}

	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// Close releases GPIO resources.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so an attached relay board is released on shutdown.
func (r *RealOutput) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for pin, line := range r.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(r.lines, pin)
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

package gpio

import (
	"fmt"
	"sync"
)

// FakeOutput is a test double that records every level driven onto a pin.
// Safe for concurrent use; the switch controller drives it from its worker.
type FakeOutput struct {
	mu sync.Mutex

	configured map[int]bool
	initial    map[int]bool
	levels     map[int]bool
	history    map[int][]bool

	// ConfigureError, if set, is returned by ConfigureOutput.
	ConfigureError error

	// SetError, if set, is returned by SetLevel and the level is not recorded.
	SetError error

	closed bool
}

// NewFakeOutput creates a FakeOutput with no configured pins.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{
		configured: make(map[int]bool),
		initial:    make(map[int]bool),
		levels:     make(map[int]bool),
		history:    make(map[int][]bool),
	}
}

// ConfigureOutput marks the pin as configured at the initial level. The
// initial level is not part of History.
func (f *FakeOutput) ConfigureOutput(pin int, initialHigh bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	if pin < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	f.configured[pin] = true
	f.initial[pin] = initialHigh
	f.levels[pin] = initialHigh
	return nil
}

// SetLevel records the level for the pin.
func (f *FakeOutput) SetLevel(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	if !f.configured[pin] {
		return fmt.Errorf("%w: %d not configured", ErrInvalidPin, pin)
	}
	f.levels[pin] = high
	f.history[pin] = append(f.history[pin], high)
	return nil
}

// Level returns the last level driven onto the pin.
func (f *FakeOutput) Level(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

// Initial returns the level the pin was configured with.
func (f *FakeOutput) Initial(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initial[pin]
}

// History returns a copy of every level driven onto the pin, in order.
func (f *FakeOutput) History(pin int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history[pin]...)
}

// Configured reports whether ConfigureOutput succeeded for the pin.
func (f *FakeOutput) Configured(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured[pin]
}

// SetFailure changes the error returned by SetLevel. Pass nil to clear it.
func (f *FakeOutput) SetFailure(err error) {
	f.mu.Lock()
	f.SetError = err
	f.mu.Unlock()
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears all recorded state.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = make(map[int]bool)
	f.initial = make(map[int]bool)
	f.levels = make(map[int]bool)
	f.history = make(map[int][]bool)
	f.ConfigureError = nil
	f.SetError = nil
	f.closed = false
}

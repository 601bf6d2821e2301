package timer

import (
	"sync"
	"time"
)

// Manual is a Service whose timers only expire when a test calls Fire.
type Manual struct {
	mu     sync.Mutex
	timers []*ManualTimer

	// NewError, if set, is returned by NewOneShot.
	NewError error
}

// NewManual creates a Manual timer service.
func NewManual() *Manual {
	return &Manual{}
}

// NewOneShot records and returns a dormant ManualTimer.
func (m *Manual) NewOneShot(d time.Duration, onExpiry func()) (Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NewError != nil {
		return nil, m.NewError
	}
	if onExpiry == nil {
		return nil, ErrNoHandler
	}
	if d <= 0 {
		return nil, ErrInvalidDuration
	}
	t := &ManualTimer{period: d, onExpiry: onExpiry}
	m.timers = append(m.timers, t)
	return t, nil
}

// Last returns the most recently created timer, or nil.
func (m *Manual) Last() *ManualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return nil
	}
	return m.timers[len(m.timers)-1]
}

// ManualTimer is a Timer driven by Fire.
type ManualTimer struct {
	mu        sync.Mutex
	period    time.Duration
	armed     bool
	destroyed bool
	arms      int
	cancels   int
	armErr    error
	onExpiry  func()
}

// Arm records the arming. It fails with the injected error, if any.
func (t *ManualTimer) Arm(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return ErrDestroyed
	}
	if t.armErr != nil {
		return t.armErr
	}
	if d < 0 {
		return ErrInvalidDuration
	}
	if d > 0 {
		t.period = d
	}
	t.armed = true
	t.arms++
	return nil
}

// ChangePeriod updates the period. It fails with the injected error, if any.
func (t *ManualTimer) ChangePeriod(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return ErrDestroyed
	}
	if t.armErr != nil {
		return t.armErr
	}
	if d <= 0 {
		return ErrInvalidDuration
	}
	t.period = d
	return nil
}

// Cancel disarms the timer.
func (t *ManualTimer) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return ErrDestroyed
	}
	t.armed = false
	t.cancels++
	return nil
}

// Destroy disarms and releases the timer.
func (t *ManualTimer) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return ErrDestroyed
	}
	t.armed = false
	t.destroyed = true
	return nil
}

// Fire expires the timer if it is armed and reports whether the expiry
// handler ran. The handler runs on the calling goroutine.
func (t *ManualTimer) Fire() bool {
	t.mu.Lock()
	if !t.armed || t.destroyed {
		t.mu.Unlock()
		return false
	}
	t.armed = false
	fn := t.onExpiry
	t.mu.Unlock()

	fn()
	return true
}

// FireStale invokes the expiry handler regardless of the armed state,
// simulating an expiry that raced with Cancel or a re-arm.
func (t *ManualTimer) FireStale() {
	t.mu.Lock()
	fn := t.onExpiry
	t.mu.Unlock()
	fn()
}

// SetArmError makes Arm and ChangePeriod fail with err. Pass nil to clear it.
func (t *ManualTimer) SetArmError(err error) {
	t.mu.Lock()
	t.armErr = err
	t.mu.Unlock()
}

// Armed reports whether the timer has a pending expiry.
func (t *ManualTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Destroyed reports whether Destroy was called.
func (t *ManualTimer) Destroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// Period returns the current period.
func (t *ManualTimer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// ArmCount returns the number of successful Arm calls.
func (t *ManualTimer) ArmCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.arms
}

// CancelCount returns the number of Cancel calls.
func (t *ManualTimer) CancelCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancels
}

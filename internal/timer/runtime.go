package timer

import (
	"sync"
	"time"
)

// Runtime is a Service backed by the Go runtime timer. Expiry handlers run on
// the runtime's timer goroutine with the timer locked, so they must not call
// back into the same timer.
type Runtime struct{}

// NewRuntime returns a Service backed by time.AfterFunc.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// NewOneShot creates a dormant runtime timer.
func (r *Runtime) NewOneShot(d time.Duration, onExpiry func()) (Timer, error) {
	if onExpiry == nil {
		return nil, ErrNoHandler
	}
	if d <= 0 {
		return nil, ErrInvalidDuration
	}
	return &oneShot{period: d, onExpiry: onExpiry}, nil
}

type oneShot struct {
	mu        sync.Mutex
	period    time.Duration
	onExpiry  func()
	t         *time.Timer
	seq       uint64 // bumped on every arm and cancel; stale expiries compare unequal
	destroyed bool
}

func (o *oneShot) Arm(d time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return ErrDestroyed
	}
	if d < 0 {
		return ErrInvalidDuration
	}
	if d > 0 {
		o.period = d
	}
	o.startLocked()
	return nil
}

func (o *oneShot) ChangePeriod(d time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return ErrDestroyed
	}
	if d <= 0 {
		return ErrInvalidDuration
	}
	o.period = d
	if o.t != nil {
		o.startLocked()
	}
	return nil
}

func (o *oneShot) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return ErrDestroyed
	}
	o.stopLocked()
	return nil
}

func (o *oneShot) Destroy() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return ErrDestroyed
	}
	o.stopLocked()
	o.destroyed = true
	return nil
}

func (o *oneShot) startLocked() {
	o.stopLocked()
	seq := o.seq
	o.t = time.AfterFunc(o.period, func() { o.fire(seq) })
}

func (o *oneShot) stopLocked() {
	if o.t != nil {
		o.t.Stop()
		o.t = nil
	}
	o.seq++
}

func (o *oneShot) fire(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed || seq != o.seq {
		return
	}
	o.t = nil
	o.seq++
	o.onExpiry()
}

// Package timer provides one-shot timers whose expiry handlers run on a
// timer-service context. Handlers must not block: they are expected to hand
// work off to a deferred scheduler and return.
package timer

import (
	"errors"
	"time"
)

var (
	// ErrDestroyed is returned by any operation on a destroyed timer.
	ErrDestroyed = errors.New("timer: destroyed")

	// ErrInvalidDuration is returned for non-positive periods.
	ErrInvalidDuration = errors.New("timer: duration must be positive")

	// ErrNoHandler is returned when creating a timer without an expiry handler.
	ErrNoHandler = errors.New("timer: nil expiry handler")
)

// Timer is a one-shot timer. After it expires it stays dormant until armed
// again.
type Timer interface {
	// Arm starts the timer for d, replacing any pending expiry.
	// A zero d reuses the current period.
	Arm(d time.Duration) error

	// ChangePeriod sets a new period. A pending expiry is restarted with the
	// new period; a dormant timer stays dormant.
	ChangePeriod(d time.Duration) error

	// Cancel disarms the timer. Cancelling a dormant timer is a no-op.
	// Once Cancel returns, no expiry for an earlier arming is delivered.
	Cancel() error

	// Destroy cancels the timer and releases it. Every later call fails
	// with ErrDestroyed.
	Destroy() error
}

// Service creates one-shot timers.
type Service interface {
	// NewOneShot creates a dormant timer with period d that invokes onExpiry
	// each time it fires.
	NewOneShot(d time.Duration, onExpiry func()) (Timer, error)
}

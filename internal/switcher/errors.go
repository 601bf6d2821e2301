package switcher

import "errors"

var (
	// ErrInvalidParameters: work == 0, count == 0, or pause == 0 with count != 1.
	ErrInvalidParameters = errors.New("switcher: invalid parameters")

	// ErrNotIdleOrReady: parameters or callbacks changed mid-run.
	ErrNotIdleOrReady = errors.New("switcher: not idle or ready")

	// ErrNotReady: Start without valid parameters or while already running.
	ErrNotReady = errors.New("switcher: not ready")

	// ErrTimerArm: the timer service rejected a create, arm or rearm.
	ErrTimerArm = errors.New("switcher: timer arm failure")

	// ErrInvalidOutputPin: the output pin could not be configured.
	ErrInvalidOutputPin = errors.New("switcher: invalid output pin")

	// ErrOutput: driving the output failed during a run.
	ErrOutput = errors.New("switcher: output failure")

	// ErrUnknownEvent: callback registration for an unknown event kind.
	ErrUnknownEvent = errors.New("switcher: unknown event kind")

	// ErrClosed: the controller was closed.
	ErrClosed = errors.New("switcher: closed")
)

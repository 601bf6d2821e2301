// Package switcher implements a cyclic timed switch: it drives one output ON
// for a work period, OFF for a pause period, a fixed number of times, and
// reports every phase boundary through callbacks.
//
// This package has no direct hardware or OS dependencies. The output line,
// the one-shot timer and the deferred scheduler are injected, and time is
// read through an injectable clock.
package switcher

import (
	"fmt"
	"time"
)

// Phase is the controller's lifecycle state.
type Phase uint8

const (
	PhaseIdle     Phase = iota // no parameters yet
	PhaseReady                 // parameters valid, not running
	PhaseRunning               // work phase, output ON
	PhasePaused                // pause phase, output OFF
	PhaseFinished              // run over, callbacks in flight; returns to Ready
	PhaseFault                 // construction failed, controller is inert
)

// String returns the name used in state reports.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReady:
		return "ready"
	case PhaseRunning:
		return "run"
	case PhasePaused:
		return "pause"
	case PhaseFinished:
		return "finished"
	default:
		return "error"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// idleOrReady reports whether parameters and callbacks may change.
func (p Phase) idleOrReady() bool {
	return p == PhaseIdle || p == PhaseReady
}

// Params are the work parameters of a run.
type Params struct {
	Work  time.Duration // output ON per cycle; must be > 0
	Pause time.Duration // output OFF between cycles; may be 0 only if Count == 1
	Count uint32        // number of work phases; must be >= 1
}

// Validate checks the parameter rules without touching any controller.
func (p Params) Validate() error {
	if p.Work <= 0 || p.Count == 0 || p.Pause < 0 || (p.Pause == 0 && p.Count != 1) {
		return fmt.Errorf("%w: work=%v pause=%v count=%d", ErrInvalidParameters, p.Work, p.Pause, p.Count)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("%v/%v/%d", p.Work, p.Pause, p.Count)
}

// Status is a point-in-time view of a controller.
// It is a value type, safe to use after the controller moves on.
type Status struct {
	Phase      Phase
	Params     Params
	Elapsed    time.Duration // accumulated work time of the current or last run
	TimeLeft   time.Duration // remaining time in the current phase
	CyclesLeft uint32
	PhaseStart time.Time // when the current phase began (monotonic reading)
	RunID      string    // identifies the current or last run; empty before the first Start
}

// EventKind identifies which phase boundary a callback reports.
type EventKind uint8

const (
	EventStart     EventKind = iota // Ready -> Running
	EventWorkDone                   // Running -> Paused
	EventPauseDone                  // Paused -> Running
	EventFinished                   // Running/Paused -> Finished

	numEventKinds
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "START"
	case EventWorkDone:
		return "WORK_DONE"
	case EventPauseDone:
		return "PAUSE_DONE"
	case EventFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("EVENT(%d)", uint8(k))
	}
}

// FinishReason explains why a run ended. Empty for non-finish events.
type FinishReason string

const (
	FinishCompleted FinishReason = "completed" // all cycles ran
	FinishStopped   FinishReason = "stopped"   // Stop was called
	FinishFault     FinishReason = "fault"     // timer or output failure
)

// Event is passed to callbacks after the transition it reports is committed.
type Event struct {
	Kind   EventKind
	Pin    int
	Status Status
	Reason FinishReason
	Err    error // why a fault aborted the run, or a failed OFF drive on Stop
}

// Callback receives phase-boundary events. Any context the callback needs is
// captured by the closure.
type Callback func(Event)

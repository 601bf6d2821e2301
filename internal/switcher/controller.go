package switcher

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sweeney/cycle-switch/internal/gpio"
	"github.com/sweeney/cycle-switch/internal/timer"
	"github.com/sweeney/cycle-switch/internal/worker"
)

// Controller runs the work/pause cycle on one output pin.
//
// All mutable state lives behind mu. Timer expiries never touch it: the
// expiry handler only tags a tick with the current arming generation and
// defers it to the scheduler, whose worker performs the transition.
// Callbacks run after mu is released.
type Controller struct {
	pin        int
	activeHigh bool
	out        gpio.Output
	sched      worker.Scheduler
	now        func() time.Time
	newRunID   func() string
	logger     *slog.Logger

	// gen is bumped under mu before every arm and cancel. A tick carrying
	// an older value belongs to an arming that no longer applies.
	gen atomic.Uint64

	mu        sync.Mutex
	tm        timer.Timer
	params    Params
	status    Status
	callbacks [numEventKinds]Callback
	inert     error
	closed    bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithActiveHigh sets the output polarity. Default true: ON drives the pin high.
func WithActiveHigh(activeHigh bool) Option {
	return func(c *Controller) { c.activeHigh = activeHigh }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source used for phase timestamps and remaining
// time. Default time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRunIDs sets the generator for run identifiers. Default UUIDv7.
func WithRunIDs(next func() string) Option {
	return func(c *Controller) {
		if next != nil {
			c.newRunID = next
		}
	}
}

// New binds a controller to one output pin. The pin is configured as an
// output and driven OFF, and a one-shot timer is created on timers whose
// expiries are deferred to sched.
//
// The returned Controller is never nil. When err is non-nil it wraps
// ErrInvalidOutputPin or ErrTimerArm, the controller is inert, and every
// later operation returns that same error without touching the output.
func New(pin int, out gpio.Output, timers timer.Service, sched worker.Scheduler, opts ...Option) (*Controller, error) {
	c := &Controller{
		pin:        pin,
		activeHigh: true,
		out:        out,
		sched:      sched,
		now:        time.Now,
		newRunID:   newRunID,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("pin", pin)

	if pin < 0 {
		return c, c.fail(fmt.Errorf("%w: %d", ErrInvalidOutputPin, pin))
	}
	if err := out.ConfigureOutput(pin, !c.activeHigh); err != nil {
		return c, c.fail(fmt.Errorf("%w: %d: %v", ErrInvalidOutputPin, pin, err))
	}
	if err := c.drive(false); err != nil {
		return c, c.fail(fmt.Errorf("%w: %d: %v", ErrInvalidOutputPin, pin, err))
	}

	// The period is replaced on every arm.
	tm, err := timers.NewOneShot(time.Second, c.expired)
	if err != nil {
		return c, c.fail(fmt.Errorf("%w: create timer: %v", ErrTimerArm, err))
	}
	c.tm = tm
	return c, nil
}

func (c *Controller) fail(err error) error {
	c.inert = err
	c.status.Phase = PhaseFault
	c.logger.Error("switch is inert", "error", err)
	return err
}

// Pin returns the output pin, which doubles as the switch identifier.
func (c *Controller) Pin() int {
	return c.pin
}

// SetParams validates and stores the work parameters and moves the
// controller to Ready. It is rejected while a run is in progress.
func (c *Controller) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		c.logger.Error("rejected work params", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	if !c.status.Phase.idleOrReady() {
		c.logger.Error("params can only change when idle or ready", "phase", c.status.Phase)
		return fmt.Errorf("%w: phase %s", ErrNotIdleOrReady, c.status.Phase)
	}

	c.params = p
	c.status.Params = p
	c.status.Phase = PhaseReady
	c.logger.Info("work params set", "work", p.Work, "pause", p.Pause, "count", p.Count)
	return nil
}

// Params returns the last accepted work parameters.
func (c *Controller) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// SetCallback registers cb for kind, replacing any previous registration.
// A nil cb clears it. Registration is rejected while a run is in progress
// and the existing callback stays in place.
func (c *Controller) SetCallback(kind EventKind, cb Callback) error {
	if kind >= numEventKinds {
		return fmt.Errorf("%w: %d", ErrUnknownEvent, kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	if !c.status.Phase.idleOrReady() {
		c.logger.Error("callbacks can only change when idle or ready", "event", kind, "phase", c.status.Phase)
		return fmt.Errorf("%w: phase %s", ErrNotIdleOrReady, c.status.Phase)
	}
	if cb == nil {
		c.logger.Warn("callback cleared", "event", kind)
	}
	c.callbacks[kind] = cb
	return nil
}

// OnStart registers the callback run after the controller starts.
func (c *Controller) OnStart(cb Callback) error { return c.SetCallback(EventStart, cb) }

// OnWorkDone registers the callback run when a work phase ends and a pause begins.
func (c *Controller) OnWorkDone(cb Callback) error { return c.SetCallback(EventWorkDone, cb) }

// OnPauseDone registers the callback run when a pause ends and work resumes.
func (c *Controller) OnPauseDone(cb Callback) error { return c.SetCallback(EventPauseDone, cb) }

// OnFinished registers the callback run when a run ends, before the
// controller returns to Ready.
func (c *Controller) OnFinished(cb Callback) error { return c.SetCallback(EventFinished, cb) }

// Start begins a run: the timer is armed for the work period and the output
// turned ON. It fails with ErrNotReady unless the controller is Ready, and
// with ErrTimerArm, leaving everything unchanged, if the timer cannot be armed.
func (c *Controller) Start() error {
	now := c.now()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.status.Phase != PhaseReady {
		phase := c.status.Phase
		c.mu.Unlock()
		c.logger.Error("start rejected", "phase", phase)
		return fmt.Errorf("%w: phase %s", ErrNotReady, phase)
	}

	p := c.params
	c.gen.Add(1)
	if err := c.tm.Arm(p.Work); err != nil {
		c.mu.Unlock()
		c.logger.Error("start failed to arm timer", "error", err)
		return fmt.Errorf("%w: %v", ErrTimerArm, err)
	}
	if err := c.drive(true); err != nil {
		c.gen.Add(1)
		_ = c.tm.Cancel()
		_ = c.drive(false)
		c.mu.Unlock()
		c.logger.Error("start failed to drive output", "error", err)
		return fmt.Errorf("%w: %v", ErrOutput, err)
	}

	c.status = Status{
		Phase:      PhaseRunning,
		Params:     p,
		TimeLeft:   p.Work,
		CyclesLeft: p.Count,
		PhaseStart: now,
		RunID:      c.newRunID(),
	}
	ev := c.eventLocked(EventStart, now, "", nil)
	cb := c.callbacks[EventStart]
	c.mu.Unlock()

	c.logger.Info("switch started", "run_id", ev.Status.RunID, "params", p.String())
	dispatch(cb, ev)
	return nil
}

// Stop ends a run early. During a work phase the partial work time is added
// to the elapsed total; a pause adds nothing. The output is driven OFF, the
// finished callback runs and the controller returns to Ready. Calling Stop
// when no run is in progress does nothing.
func (c *Controller) Stop() error {
	now := c.now()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	phase := c.status.Phase
	if phase != PhaseRunning && phase != PhasePaused {
		c.mu.Unlock()
		return nil
	}

	if phase == PhaseRunning {
		c.status.Elapsed += clamp(now.Sub(c.status.PhaseStart), c.params.Work)
	}
	var driveErr error
	if err := c.drive(false); err != nil {
		driveErr = fmt.Errorf("%w: %v", ErrOutput, err)
	}
	ev, cb := c.finishLocked(now, FinishStopped, driveErr)
	c.mu.Unlock()

	c.logger.Info("switch stopped", "run_id", ev.Status.RunID, "phase", phase, "elapsed", ev.Status.Elapsed)
	defer c.settle()
	dispatch(cb, ev)
	return driveErr
}

// Snapshot returns a consistent copy of the status. While Running or Paused
// TimeLeft is recomputed from the phase start, never below zero.
func (c *Controller) Snapshot() Status {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(now)
}

// RunTime returns the accumulated work time of the current or last run.
func (c *Controller) RunTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.Elapsed
}

// Err returns the construction error that made the controller inert, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inert
}

// Close disarms and destroys the timer and drives the output OFF. No
// callback runs. Every later operation fails with ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.gen.Add(1)

	var errs []error
	if c.tm != nil {
		if err := c.tm.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy timer: %w", err))
		}
	}
	if !errors.Is(c.inert, ErrInvalidOutputPin) {
		if err := c.drive(false); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrOutput, err))
		}
	}
	switch c.status.Phase {
	case PhaseRunning, PhasePaused, PhaseFinished:
		c.status.Phase = PhaseReady
		c.status.TimeLeft = 0
	}
	c.logger.Info("switch closed")
	return errors.Join(errs...)
}

// expired runs on the timer-service context. It must stay short: tag the
// tick and hand it to the worker.
func (c *Controller) expired() {
	gen := c.gen.Load()
	if err := c.sched.Schedule("switch", func() { c.advance(gen) }); err != nil {
		c.logger.Error("failed to defer timer expiry", "error", err)
	}
}

// advance moves the state machine one step on a timer expiry.
func (c *Controller) advance(gen uint64) {
	now := c.now()

	c.mu.Lock()
	if c.closed || gen != c.gen.Load() {
		c.mu.Unlock()
		c.logger.Debug("ignoring stale timer expiry", "gen", gen)
		return
	}

	switch c.status.Phase {
	case PhaseRunning:
		offErr := c.drive(false)
		c.status.CyclesLeft--
		c.status.Elapsed += c.params.Work

		if offErr != nil {
			c.faultLocked(now, fmt.Errorf("%w: %v", ErrOutput, offErr))
			return
		}
		if c.status.CyclesLeft == 0 {
			ev, cb := c.finishLocked(now, FinishCompleted, nil)
			c.mu.Unlock()
			c.logger.Info("switch finished", "run_id", ev.Status.RunID, "elapsed", ev.Status.Elapsed)
			defer c.settle()
			dispatch(cb, ev)
			return
		}

		c.status.Phase = PhasePaused
		c.status.TimeLeft = c.params.Pause
		c.status.PhaseStart = now
		c.gen.Add(1)
		if err := c.tm.Arm(c.params.Pause); err != nil {
			c.faultLocked(now, fmt.Errorf("%w: %v", ErrTimerArm, err))
			return
		}
		ev := c.eventLocked(EventWorkDone, now, "", nil)
		cb := c.callbacks[EventWorkDone]
		c.mu.Unlock()
		c.logger.Info("switch paused", "run_id", ev.Status.RunID, "cycles_left", ev.Status.CyclesLeft)
		dispatch(cb, ev)

	case PhasePaused:
		c.gen.Add(1)
		if err := c.tm.Arm(c.params.Work); err != nil {
			c.faultLocked(now, fmt.Errorf("%w: %v", ErrTimerArm, err))
			return
		}
		if err := c.drive(true); err != nil {
			_ = c.drive(false)
			c.faultLocked(now, fmt.Errorf("%w: %v", ErrOutput, err))
			return
		}
		c.status.Phase = PhaseRunning
		c.status.TimeLeft = c.params.Work
		c.status.PhaseStart = now
		ev := c.eventLocked(EventPauseDone, now, "", nil)
		cb := c.callbacks[EventPauseDone]
		c.mu.Unlock()
		c.logger.Info("switch resumed", "run_id", ev.Status.RunID, "cycles_left", ev.Status.CyclesLeft)
		dispatch(cb, ev)

	default:
		phase := c.status.Phase
		_ = c.drive(false)
		c.mu.Unlock()
		c.logger.Warn("timer expiry in unexpected phase", "phase", phase)
	}
}

// faultLocked aborts the run after a timer or output failure. It is called
// with mu held and releases it.
func (c *Controller) faultLocked(now time.Time, err error) {
	_ = c.drive(false)
	ev, cb := c.finishLocked(now, FinishFault, err)
	c.mu.Unlock()

	c.logger.Error("switch run aborted", "run_id", ev.Status.RunID, "error", err)
	defer c.settle()
	dispatch(cb, ev)
}

// finishLocked commits the Finished phase and returns the event to dispatch
// once mu is released.
func (c *Controller) finishLocked(now time.Time, reason FinishReason, err error) (Event, Callback) {
	c.gen.Add(1)
	if cerr := c.tm.Cancel(); cerr != nil {
		c.logger.Warn("failed to cancel timer", "error", cerr)
	}
	c.status.Phase = PhaseFinished
	c.status.TimeLeft = 0
	return c.eventLocked(EventFinished, now, reason, err), c.callbacks[EventFinished]
}

// settle completes the automatic Finished -> Ready step.
func (c *Controller) settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Phase == PhaseFinished {
		c.status.Phase = PhaseReady
	}
}

func (c *Controller) eventLocked(kind EventKind, now time.Time, reason FinishReason, err error) Event {
	return Event{
		Kind:   kind,
		Pin:    c.pin,
		Status: c.statusLocked(now),
		Reason: reason,
		Err:    err,
	}
}

func (c *Controller) statusLocked(now time.Time) Status {
	s := c.status
	switch s.Phase {
	case PhaseRunning:
		s.TimeLeft = s.Params.Work - clamp(now.Sub(s.PhaseStart), s.Params.Work)
	case PhasePaused:
		s.TimeLeft = s.Params.Pause - clamp(now.Sub(s.PhaseStart), s.Params.Pause)
	}
	return s
}

func (c *Controller) usableLocked() error {
	if c.inert != nil {
		return c.inert
	}
	if c.closed {
		return ErrClosed
	}
	return nil
}

// drive applies polarity and sets the output level.
func (c *Controller) drive(on bool) error {
	return c.out.SetLevel(c.pin, on == c.activeHigh)
}

func dispatch(cb Callback, ev Event) {
	if cb != nil {
		cb(ev)
	}
}

// clamp limits d to [0, limit].
func clamp(d, limit time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > limit {
		return limit
	}
	return d
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return ""
	}
	return id.String()
}

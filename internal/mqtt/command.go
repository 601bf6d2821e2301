package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sweeney/cycle-switch/internal/switcher"
	"github.com/sweeney/cycle-switch/internal/worker"
)

// Command actions accepted on the command topic.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionParams = "params"
)

// ErrBadCommand is returned for command payloads that cannot be applied.
var ErrBadCommand = errors.New("bad command")

// Command is a decoded command-topic message. Work and Pause are seconds.
type Command struct {
	Action string  `json:"action"`
	Work   float64 `json:"work,omitempty"`
	Pause  float64 `json:"pause,omitempty"`
	Count  uint32  `json:"count,omitempty"`
}

// Params converts a params command to switch parameters and validates them.
func (c Command) Params() (switcher.Params, error) {
	p := switcher.Params{
		Work:  seconds(c.Work),
		Pause: seconds(c.Pause),
		Count: c.Count,
	}
	if err := p.Validate(); err != nil {
		return switcher.Params{}, err
	}
	return p, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// ParseCommand decodes a command payload. Unknown fields and unknown
// actions are rejected.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	switch cmd.Action {
	case ActionStart, ActionStop:
	case ActionParams:
		if _, err := cmd.Params(); err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrBadCommand, err)
		}
	default:
		return Command{}, fmt.Errorf("%w: unknown action %q", ErrBadCommand, cmd.Action)
	}
	return cmd, nil
}

// Switch is the part of the controller that commands drive.
type Switch interface {
	Start() error
	Stop() error
	SetParams(p switcher.Params) error
}

// Apply runs cmd against sw.
func Apply(sw Switch, cmd Command) error {
	switch cmd.Action {
	case ActionStart:
		return sw.Start()
	case ActionStop:
		return sw.Stop()
	case ActionParams:
		p, err := cmd.Params()
		if err != nil {
			return err
		}
		return sw.SetParams(p)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrBadCommand, cmd.Action)
	}
}

// CommandHandler returns a handler for raw command payloads. Commands are
// applied on sched so switch callbacks never run on the MQTT client's
// delivery goroutine.
func CommandHandler(sw Switch, sched worker.Scheduler, logger *slog.Logger) func(payload []byte) {
	logger = logger.With("component", "mqtt-command")
	return func(payload []byte) {
		cmd, err := ParseCommand(payload)
		if err != nil {
			logger.Warn("rejected command", "error", err)
			return
		}
		err = sched.Schedule("command-"+cmd.Action, func() {
			if err := Apply(sw, cmd); err != nil {
				logger.Warn("command failed", "action", cmd.Action, "error", err)
				return
			}
			logger.Info("command applied", "action", cmd.Action)
		})
		if err != nil {
			logger.Error("command dropped", "action", cmd.Action, "error", err)
		}
	}
}

// Package mqtt provides MQTT publishing and command intake with abstraction
// for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/cycle-switch/internal/switcher"
)

// Topics are the MQTT topics of one switch, all under <prefix>/<name>/.
type Topics struct {
	Events  string
	State   string
	System  string
	Command string
}

// NewTopics builds the topic set for the named switch.
func NewTopics(prefix, name string) Topics {
	base := prefix + "/" + name + "/"
	return Topics{
		Events:  base + "events",
		State:   base + "state",
		System:  base + "system",
		Command: base + "command",
	}
}

// Publisher publishes switch and daemon events to MQTT.
type Publisher interface {
	// Publish sends a switch event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event switcher.Event) error

	// PublishState sends the retained state report.
	PublishState(report []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Switch SwitchPayload `json:"switch"`
}

// SwitchPayload contains the switch event details.
type SwitchPayload struct {
	Timestamp      string  `json:"timestamp"`
	Event          string  `json:"event"`
	RunID          string  `json:"run_id,omitempty"`
	State          string  `json:"state"`
	Reason         string  `json:"reason,omitempty"`
	Error          string  `json:"error,omitempty"`
	TimeLeft       *int64  `json:"time_left,omitempty"`
	CountLeft      *uint32 `json:"count_left,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// FormatPayload creates the JSON payload for a switch event observed at ts.
func FormatPayload(event switcher.Event, ts time.Time) ([]byte, error) {
	report := switcher.NewStateReport(event.Pin, event.Status)
	p := SwitchPayload{
		Timestamp:      ts.UTC().Format(time.RFC3339),
		Event:          event.Kind.String(),
		RunID:          event.Status.RunID,
		State:          report.State,
		Reason:         string(event.Reason),
		TimeLeft:       report.TimeLeft,
		CountLeft:      report.CountLeft,
		ElapsedSeconds: event.Status.Elapsed.Seconds(),
	}
	if event.Err != nil {
		p.Error = event.Err.Error()
	}
	return json.Marshal(Payload{Switch: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Package status provides a thread-safe status tracker for the cycle-switch
// daemon. It is read by HTTP handlers and by MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/cycle-switch/internal/switcher"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Name        string
	Pin         int
	ActiveHigh  bool
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Source is the switch being tracked.
type Source interface {
	Snapshot() switcher.Status
}

// EventCounts tracks the number of each switch event since startup.
type EventCounts struct {
	Starts     int
	WorkDone   int
	PauseDone  int
	Finished   int
	Faults     int
	Completed  int
	StoppedRun int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Switch        switcher.Status
	Counts        EventCounts
	LastEvent     string
	LastError     string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	source Source
	now    func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker for source with the given start time and config.
// A nil source reports a zero switch status.
func NewTracker(source Source, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		source: source,
		now:    time.Now,
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Record counts a switch event. Called from the switch callbacks.
func (t *Tracker) Record(ev switcher.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.LastEvent = ev.Kind.String()
	switch ev.Kind {
	case switcher.EventStart:
		t.snap.Counts.Starts++
	case switcher.EventWorkDone:
		t.snap.Counts.WorkDone++
	case switcher.EventPauseDone:
		t.snap.Counts.PauseDone++
	case switcher.EventFinished:
		t.snap.Counts.Finished++
		switch ev.Reason {
		case switcher.FinishCompleted:
			t.snap.Counts.Completed++
		case switcher.FinishStopped:
			t.snap.Counts.StoppedRun++
		case switcher.FinishFault:
			t.snap.Counts.Faults++
		}
	}
	if ev.Err != nil {
		t.snap.LastError = ev.Err.Error()
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The switch status is read from the source outside the tracker lock.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	if t.source != nil {
		s.Switch = t.source.Snapshot()
	}
	s.Now = t.now()
	return s
}

package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/cycle-switch/internal/switcher"
)

// FakePublisher records published events for test assertions.
// Read the recorded slices only once publishing has quiesced.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all switch events that were published.
	Events []switcher.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// States contains the state reports that were published.
	States [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish and PublishState.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// OnCommand receives payloads passed to Deliver.
	OnCommand func(payload []byte)

	// Now stamps event payloads. Defaults to time.Now.
	Now func() time.Time

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Now: time.Now}
}

// Publish records the switch event.
func (f *FakePublisher) Publish(event switcher.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event, f.Now())
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishState records the state report.
func (f *FakePublisher) PublishState(report []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.States = append(f.States, append([]byte(nil), report...))
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Deliver simulates a message arriving on the command topic.
func (f *FakePublisher) Deliver(payload []byte) {
	f.mu.Lock()
	h := f.OnCommand
	f.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// EventKinds returns the kinds of the published switch events in order.
func (f *FakePublisher) EventKinds() []switcher.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]switcher.EventKind, len(f.Events))
	for i, ev := range f.Events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// LastState returns the most recent state report, or nil.
func (f *FakePublisher) LastState() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.States) == 0 {
		return nil
	}
	return f.States[len(f.States)-1]
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Payloads = nil
	f.States = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

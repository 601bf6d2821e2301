package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/cycle-switch/internal/switcher"
)

var testTime = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func workDoneEvent() switcher.Event {
	return switcher.Event{
		Kind: switcher.EventWorkDone,
		Pin:  17,
		Status: switcher.Status{
			Phase:      switcher.PhasePaused,
			Params:     switcher.Params{Work: 2 * time.Second, Pause: time.Second, Count: 2},
			Elapsed:    2 * time.Second,
			TimeLeft:   time.Second,
			CyclesLeft: 1,
			RunID:      "r1",
		},
	}
}

func TestNewTopics(t *testing.T) {
	topics := NewTopics("cycle-switch", "pump")
	assert.Equal(t, Topics{
		Events:  "cycle-switch/pump/events",
		State:   "cycle-switch/pump/state",
		System:  "cycle-switch/pump/system",
		Command: "cycle-switch/pump/command",
	}, topics)
}

func TestFormatPayloadExactJSON(t *testing.T) {
	payload, err := FormatPayload(workDoneEvent(), testTime)
	require.NoError(t, err)

	expected := `{"switch":{"timestamp":"2026-02-02T22:18:12Z","event":"WORK_DONE","run_id":"r1","state":"pause","time_left":1,"count_left":1,"elapsed_seconds":2}}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatPayloadFinished(t *testing.T) {
	tests := []struct {
		name    string
		reason  switcher.FinishReason
		elapsed time.Duration
		err     error
		want    string
	}{
		{
			name:    "completed",
			reason:  switcher.FinishCompleted,
			elapsed: 4 * time.Second,
			want:    `{"switch":{"timestamp":"2026-02-02T22:18:12Z","event":"FINISHED","run_id":"r1","state":"finished","reason":"completed","elapsed_seconds":4}}`,
		},
		{
			name:    "stopped mid-work",
			reason:  switcher.FinishStopped,
			elapsed: 1500 * time.Millisecond,
			want:    `{"switch":{"timestamp":"2026-02-02T22:18:12Z","event":"FINISHED","run_id":"r1","state":"finished","reason":"stopped","elapsed_seconds":1.5}}`,
		},
		{
			name:    "fault",
			reason:  switcher.FinishFault,
			elapsed: 2 * time.Second,
			err:     errors.New("arm failed"),
			want:    `{"switch":{"timestamp":"2026-02-02T22:18:12Z","event":"FINISHED","run_id":"r1","state":"finished","reason":"fault","error":"arm failed","elapsed_seconds":2}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := switcher.Event{
				Kind:   switcher.EventFinished,
				Pin:    17,
				Reason: tt.reason,
				Err:    tt.err,
				Status: switcher.Status{Phase: switcher.PhaseFinished, Elapsed: tt.elapsed, RunID: "r1"},
			}
			payload, err := FormatPayload(ev, testTime)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(payload))
		})
	}
}

func TestFormatPayloadAllEventKinds(t *testing.T) {
	tests := []struct {
		kind      switcher.EventKind
		phase     switcher.Phase
		wantEvent string
		wantState string
	}{
		{switcher.EventStart, switcher.PhaseRunning, "START", "run"},
		{switcher.EventWorkDone, switcher.PhasePaused, "WORK_DONE", "pause"},
		{switcher.EventPauseDone, switcher.PhaseRunning, "PAUSE_DONE", "run"},
		{switcher.EventFinished, switcher.PhaseFinished, "FINISHED", "finished"},
	}

	for _, tt := range tests {
		t.Run(tt.wantEvent, func(t *testing.T) {
			ev := switcher.Event{Kind: tt.kind, Status: switcher.Status{Phase: tt.phase}}
			payload, err := FormatPayload(ev, testTime)
			require.NoError(t, err)

			var parsed Payload
			require.NoError(t, json.Unmarshal(payload, &parsed))
			assert.Equal(t, tt.wantEvent, parsed.Switch.Event)
			assert.Equal(t, tt.wantState, parsed.Switch.State)
		})
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 19, 5, 51, 0, time.UTC),
		Event:     "OFFLINE",
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)
	assert.Equal(t, `{"system":{"timestamp":"2026-02-03T19:05:51Z","event":"OFFLINE"}}`, string(payload))
}

func TestFormatSystemPayloadRawPayload(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	event := SystemEvent{
		Timestamp:  time.Now(),
		Event:      "STARTUP",
		RawPayload: raw,
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	f.Now = func() time.Time { return testTime }

	require.NoError(t, f.Publish(workDoneEvent()))
	require.NoError(t, f.PublishState([]byte(`{"id":17,"state":"pause"}`)))
	require.NoError(t, f.PublishSystem(SystemEvent{Timestamp: testTime, Event: "HEARTBEAT"}))

	assert.Equal(t, []switcher.EventKind{switcher.EventWorkDone}, f.EventKinds())
	require.Len(t, f.Payloads, 1)
	assert.Contains(t, string(f.Payloads[0]), `"event":"WORK_DONE"`)
	assert.Equal(t, `{"id":17,"state":"pause"}`, string(f.LastState()))
	require.Len(t, f.SystemEvents, 1)
	assert.Equal(t, "HEARTBEAT", f.SystemEvents[0].Event)
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated system error")

	assert.Error(t, f.Publish(workDoneEvent()))
	assert.Error(t, f.PublishState([]byte(`{}`)))
	assert.Error(t, f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}))

	assert.Empty(t, f.Events, "no events recorded on error")
	assert.Empty(t, f.States)
	assert.Empty(t, f.SystemEvents)
	assert.Nil(t, f.LastState())
}

func TestFakePublisherDeliver(t *testing.T) {
	f := NewFakePublisher()
	f.Deliver([]byte(`{"action":"start"}`)) // no handler, no panic

	var got []string
	f.OnCommand = func(p []byte) { got = append(got, string(p)) }
	f.Deliver([]byte(`{"action":"stop"}`))
	assert.Equal(t, []string{`{"action":"stop"}`}, got)
}

func TestFakePublisherConnectedAndClose(t *testing.T) {
	f := NewFakePublisher()
	assert.False(t, f.IsConnected())
	f.Connected = true
	assert.True(t, f.IsConnected())

	assert.False(t, f.Closed)
	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	require.NoError(t, f.Publish(workDoneEvent()))
	require.NoError(t, f.PublishState([]byte(`{}`)))
	require.NoError(t, f.Close())
	f.PublishError = errors.New("error")
	f.Connected = true

	f.Reset()

	assert.Empty(t, f.Events)
	assert.Empty(t, f.Payloads)
	assert.Empty(t, f.States)
	assert.False(t, f.Closed)
	assert.NoError(t, f.PublishError)
	assert.False(t, f.Connected)
}

func TestPublisherInterfaces(t *testing.T) {
	var _ Publisher = (*FakePublisher)(nil)
	var _ ConnectionStatus = (*FakePublisher)(nil)
	var _ Publisher = (*RealPublisher)(nil)
	var _ ConnectionStatus = (*RealPublisher)(nil)
}

package internal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/cycle-switch/internal/gpio"
	"github.com/sweeney/cycle-switch/internal/mqtt"
	"github.com/sweeney/cycle-switch/internal/status"
	"github.com/sweeney/cycle-switch/internal/switcher"
	"github.com/sweeney/cycle-switch/internal/timer"
	"github.com/sweeney/cycle-switch/internal/web"
	"github.com/sweeney/cycle-switch/internal/worker"
)

const pin = 17

// stack is a switch on the real timer and worker queue, reporting to a fake
// broker, a tracker and a live web server.
type stack struct {
	ctrl     *switcher.Controller
	out      *gpio.FakeOutput
	queue    *worker.Queue
	pub      *mqtt.FakePublisher
	tracker  *status.Tracker
	srv      *web.Server
	addr     string
	finished chan switcher.Event
	logger   *slog.Logger
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := &stack{
		out:      gpio.NewFakeOutput(),
		queue:    worker.NewQueue(worker.DefaultQueueSize, logger),
		pub:      mqtt.NewFakePublisher(),
		finished: make(chan switcher.Event, 8),
		logger:   logger,
	}
	go s.queue.Run(ctx)

	ctrl, err := switcher.New(pin, s.out, timer.NewRuntime(), s.queue, switcher.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.Close() })
	s.ctrl = ctrl

	s.tracker = status.NewTracker(ctrl, time.Now(), status.Config{Name: "pump", Pin: pin, ActiveHigh: true})
	s.srv = web.New("127.0.0.1:0", s.tracker, logger, web.WithPushInterval(time.Hour))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.addr = ln.Addr().String()
	go s.srv.Serve(ln)
	t.Cleanup(func() { s.srv.Shutdown(context.Background()) })

	report := func(ev switcher.Event) {
		s.tracker.Record(ev)
		s.pub.Publish(ev)
		s.pub.PublishState(switcher.FormatState(ev.Pin, ev.Status))
		s.srv.Notify()
		if ev.Kind == switcher.EventFinished {
			s.finished <- ev
		}
	}
	require.NoError(t, ctrl.OnStart(report))
	require.NoError(t, ctrl.OnWorkDone(report))
	require.NoError(t, ctrl.OnPauseDone(report))
	require.NoError(t, ctrl.OnFinished(report))
	return s
}

func (s *stack) waitFinished(t *testing.T) switcher.Event {
	t.Helper()
	select {
	case ev := <-s.finished:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return switcher.Event{}
	}
}

func (s *stack) waitReady(t *testing.T) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return s.ctrl.Snapshot().Phase == switcher.PhaseReady
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *stack) getState(t *testing.T) switcher.StateReport {
	t.Helper()
	resp, err := http.Get("http://" + s.addr + "/state.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	var r switcher.StateReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	return r
}

// TestIntegrationFullCycle runs two work phases on the real timer.
func TestIntegrationFullCycle(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.ctrl.SetParams(switcher.Params{
		Work:  40 * time.Millisecond,
		Pause: 20 * time.Millisecond,
		Count: 2,
	}))
	require.NoError(t, s.ctrl.Start())

	ev := s.waitFinished(t)
	s.waitReady(t)

	assert.Equal(t, switcher.FinishCompleted, ev.Reason)
	assert.Equal(t, switcher.PhaseFinished, ev.Status.Phase)
	assert.Equal(t, 80*time.Millisecond, ev.Status.Elapsed)
	assert.Equal(t, 80*time.Millisecond, s.ctrl.RunTime())
	assert.Zero(t, ev.Status.CyclesLeft)

	assert.Equal(t, []switcher.EventKind{
		switcher.EventStart,
		switcher.EventWorkDone,
		switcher.EventPauseDone,
		switcher.EventFinished,
	}, s.pub.EventKinds())
	// off at configure, then on/off per work phase
	assert.Equal(t, []bool{false, true, false, true, false}, s.out.History(pin))

	snap := s.tracker.Snapshot()
	assert.Equal(t, 1, snap.Counts.Starts)
	assert.Equal(t, 1, snap.Counts.WorkDone)
	assert.Equal(t, 1, snap.Counts.PauseDone)
	assert.Equal(t, 1, snap.Counts.Completed)
	assert.Equal(t, "ready", s.getState(t).State)
}

// TestIntegrationSingleCycleNoPause covers the count==1, pause==0 case.
func TestIntegrationSingleCycleNoPause(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.ctrl.SetParams(switcher.Params{Work: 30 * time.Millisecond, Count: 1}))
	require.NoError(t, s.ctrl.Start())

	ev := s.waitFinished(t)
	assert.Equal(t, switcher.FinishCompleted, ev.Reason)
	assert.Equal(t, 30*time.Millisecond, ev.Status.Elapsed)
	assert.Equal(t, []switcher.EventKind{switcher.EventStart, switcher.EventFinished}, s.pub.EventKinds())
}

// TestIntegrationRestartAfterStop checks a stopped run leaves no tick behind
// to disturb the next one.
func TestIntegrationRestartAfterStop(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.ctrl.SetParams(switcher.Params{Work: 30 * time.Millisecond, Count: 1}))

	require.NoError(t, s.ctrl.Start())
	require.NoError(t, s.ctrl.Stop())
	stopped := s.waitFinished(t)
	assert.Equal(t, switcher.FinishStopped, stopped.Reason)
	s.waitReady(t)

	require.NoError(t, s.ctrl.Start())
	done := s.waitFinished(t)
	assert.Equal(t, switcher.FinishCompleted, done.Reason)
	assert.NotEqual(t, stopped.Status.RunID, done.Status.RunID)

	// Give any stray expiry a chance to show up.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []switcher.EventKind{
		switcher.EventStart,
		switcher.EventFinished,
		switcher.EventStart,
		switcher.EventFinished,
	}, s.pub.EventKinds())
}

// TestIntegrationCommandsOverQueue drives the switch through the MQTT
// command path with commands applied on the worker.
func TestIntegrationCommandsOverQueue(t *testing.T) {
	s := newStack(t)
	s.pub.OnCommand = mqtt.CommandHandler(s.ctrl, s.queue, s.logger)

	s.pub.Deliver([]byte(`{"action":"params","work":0.03,"count":1}`))
	s.pub.Deliver([]byte(`{"action":"start"}`))

	ev := s.waitFinished(t)
	assert.Equal(t, switcher.FinishCompleted, ev.Reason)
	assert.Equal(t, switcher.Params{Work: 30 * time.Millisecond, Count: 1}, s.ctrl.Params())

	// A stop with nothing running is a no-op.
	s.pub.Deliver([]byte(`{"action":"stop"}`))
	s.pub.Deliver([]byte(`{"action":"bogus"}`))
	s.waitReady(t)
	assert.Len(t, s.pub.EventKinds(), 2)
}

// TestIntegrationLiveState follows a run through /state.json and /ws.
func TestIntegrationLiveState(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.ctrl.SetParams(switcher.Params{Work: 10 * time.Second, Count: 1}))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.addr+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() switcher.StateReport {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var r switcher.StateReport
		require.NoError(t, json.Unmarshal(data, &r))
		return r
	}

	assert.Equal(t, "ready", read().State)

	require.NoError(t, s.ctrl.Start())
	r := read()
	assert.Equal(t, "run", r.State)
	require.NotNil(t, r.CountLeft)
	assert.Equal(t, uint32(1), *r.CountLeft)

	got := s.getState(t)
	assert.Equal(t, pin, got.ID)
	require.NotNil(t, got.TimeLeft)
	assert.InDelta(t, 9, *got.TimeLeft, 1)

	require.NoError(t, s.ctrl.Stop())
	s.waitFinished(t)
	s.waitReady(t)
	s.srv.Notify()
	for i := 0; i < 3; i++ {
		if r = read(); r.State == "ready" {
			break
		}
	}
	assert.Equal(t, "ready", r.State)
	assert.False(t, s.out.Level(pin))
}

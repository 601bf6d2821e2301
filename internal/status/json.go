package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/cycle-switch/internal/switcher"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Name          string       `json:"name"`
	Switch        SwitchJSON   `json:"switch"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	LastEvent     string       `json:"last_event,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SwitchJSON is the state report plus run accounting.
type SwitchJSON struct {
	switcher.StateReport
	RunID          string `json:"run_id,omitempty"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	WorkSeconds    int64  `json:"work_seconds"`
	PauseSeconds   int64  `json:"pause_seconds"`
	Count          uint32 `json:"count"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Starts    int `json:"start"`
	WorkDone  int `json:"work_done"`
	PauseDone int `json:"pause_done"`
	Finished  int `json:"finished"`
	Completed int `json:"completed"`
	Stopped   int `json:"stopped"`
	Faults    int `json:"faults"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Pin         int    `json:"pin"`
	ActiveHigh  bool   `json:"active_high"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

// NewSwitchJSON builds the switch section for the switch on pin.
func NewSwitchJSON(pin int, s switcher.Status) SwitchJSON {
	return SwitchJSON{
		StateReport:    switcher.NewStateReport(pin, s),
		RunID:          s.RunID,
		ElapsedSeconds: int64(s.Elapsed / time.Second),
		WorkSeconds:    int64(s.Params.Work / time.Second),
		PauseSeconds:   int64(s.Params.Pause / time.Second),
		Count:          s.Params.Count,
	}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Name:          snap.Config.Name,
		Switch:        NewSwitchJSON(snap.Config.Pin, snap.Switch),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Starts:    snap.Counts.Starts,
			WorkDone:  snap.Counts.WorkDone,
			PauseDone: snap.Counts.PauseDone,
			Finished:  snap.Counts.Finished,
			Completed: snap.Counts.Completed,
			Stopped:   snap.Counts.StoppedRun,
			Faults:    snap.Counts.Faults,
		},
		LastEvent: snap.LastEvent,
		LastError: snap.LastError,
		Config: ConfigJSON{
			Pin:         snap.Config.Pin,
			ActiveHigh:  snap.Config.ActiveHigh,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatState returns the compact switch state report for the snapshot.
func FormatState(snap Snapshot) []byte {
	return switcher.FormatState(snap.Config.Pin, snap.Switch)
}

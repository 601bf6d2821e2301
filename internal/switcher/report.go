package switcher

import (
	"encoding/json"
	"time"
)

// StateReport is the JSON state report of one switch. TimeLeft and CountLeft
// are present only while the switch is running or paused.
type StateReport struct {
	ID        int     `json:"id"`
	State     string  `json:"state"`
	TimeLeft  *int64  `json:"time_left,omitempty"`
	CountLeft *uint32 `json:"count_left,omitempty"`
}

// NewStateReport builds the report for the switch on pin id.
func NewStateReport(id int, s Status) StateReport {
	r := StateReport{ID: id, State: s.Phase.String()}
	if s.Phase == PhaseRunning || s.Phase == PhasePaused {
		left := secondsLeft(s.TimeLeft)
		count := s.CyclesLeft
		r.TimeLeft = &left
		r.CountLeft = &count
	}
	return r
}

// FormatState returns the compact JSON state report.
func FormatState(id int, s Status) []byte {
	data, _ := json.Marshal(NewStateReport(id, s))
	return data
}

// StateJSON returns the state report for this controller.
func (c *Controller) StateJSON() []byte {
	return FormatState(c.pin, c.Snapshot())
}

// secondsLeft rounds d up to whole seconds: a phase reports its full length
// when it starts and reaches zero only when it expires.
func secondsLeft(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

package monitor

import (
	"time"

	"github.com/user/connwatch/internal/aggregate"
)

// State is the position of the monitor in its cycle.
type State string

const (
	StateIdle        State = "idle"
	StateSampling    State = "sampling"
	StateClassifying State = "classifying"
	StatePersisting  State = "persisting"
	StateSummarizing State = "summarizing"
	StateReporting   State = "reporting"
	StateSleeping    State = "sleeping"
	StateStopped     State = "stopped"
)

// Finding is one suspicious observation of a pass.
type Finding struct {
	Local   string   `json:"local"`
	Remote  string   `json:"remote"`
	Status  string   `json:"status"`
	Process string   `json:"process"`
	PID     int32    `json:"pid,omitempty"`
	Rules   []string `json:"rules,omitempty"`
}

// CycleReport describes one sampling pass.
type CycleReport struct {
	PassID        string             `json:"pass_id"`
	Timestamp     time.Time          `json:"timestamp"`
	Duration      time.Duration      `json:"duration_ns"`
	Observed      int                `json:"observed"`
	Suspicious    int                `json:"suspicious"`
	PersistErrors int                `json:"persist_errors"`
	AlertWritten  bool               `json:"alert_written"`
	Findings      []Finding          `json:"findings"`
	Summary       *aggregate.Summary `json:"summary,omitempty"`
	SummaryError  string             `json:"summary_error,omitempty"`
	Error         string             `json:"error,omitempty"`

	Err error `json:"-"`
}

// Failed reports whether the pass was aborted.
func (r *CycleReport) Failed() bool {
	return r.Err != nil
}

// Status is a snapshot of the monitor for status endpoints.
type Status struct {
	State      State        `json:"state"`
	Interval   string       `json:"interval"`
	Cycles     uint64       `json:"cycles"`
	StartedAt  time.Time    `json:"started_at"`
	LastReport *CycleReport `json:"last_report,omitempty"`
}

// Hook is notified after every pass, successful or not.
type Hook interface {
	CycleCompleted(r *CycleReport)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(r *CycleReport)

// CycleCompleted calls f(r).
func (f HookFunc) CycleCompleted(r *CycleReport) {
	f(r)
}

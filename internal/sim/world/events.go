package world

import (
	"errors"
	"time"
)

// Event codes shared by the log stream, the event log files and the run index.
const (
	EventScenarioInit   = "SCINIT"
	EventSandboxLoaded  = "SBXLD"
	EventWindChange     = "WNDCHG"
	EventLostConnection = "LSTCN"
	EventReconnected    = "RECON"
	EventTaskComplete   = "TSKCMP"
	EventReassign       = "RASGN"
	EventTargetFound    = "TGTFND"
	EventPassthrough    = "SCPS"
	EventReset          = "SVRST"
	EventViewChange     = "VWCHG"
	EventAllocConfirmed = "ALCNF"
)

type Event struct {
	At      time.Time      `json:"at"`
	RunID   string         `json:"run_id,omitempty"`
	GameID  string         `json:"game_id,omitempty"`
	SimTime float64        `json:"sim_time"`
	Code    string         `json:"code"`
	AgentID string         `json:"agent_id,omitempty"`
	TaskID  string         `json:"task_id,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type EventLogger interface {
	WriteEvent(ev Event) error
}

// EventLoggers fans every event out to each sink in order.
type EventLoggers []EventLogger

func (ls EventLoggers) WriteEvent(ev Event) error {
	var errs []error
	for _, l := range ls {
		if l == nil {
			continue
		}
		if err := l.WriteEvent(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Metrics receives simulator measurements. Implementations must not block.
type Metrics interface {
	ObserveTick(d time.Duration)
	TaskCompleted(taskType string)
	Reassigned(assigned int)
	AgentLost()
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration) {}
func (noopMetrics) TaskCompleted(string)      {}
func (noopMetrics) Reassigned(int)            {}
func (noopMetrics) AgentLost()                {}

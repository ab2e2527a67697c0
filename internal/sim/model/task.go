package model

import (
	"errors"
	"fmt"

	"swarmsim.ai/internal/sim/geo"
)

type TaskType int

const (
	TaskGeneric TaskType = iota
	TaskDeepScan
	TaskShallowScan
)

func (t TaskType) String() string {
	switch t {
	case TaskGeneric:
		return "generic"
	case TaskDeepScan:
		return "deep_scan"
	case TaskShallowScan:
		return "shallow_scan"
	default:
		return fmt.Sprintf("task_type(%d)", int(t))
	}
}

func (t TaskType) Valid() bool { return t >= TaskGeneric && t <= TaskShallowScan }

type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskInProgress
	TaskComplete
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInProgress:
		return "in_progress"
	case TaskComplete:
		return "complete"
	default:
		return "unknown"
	}
}

var ErrTaskClosed = errors.New("task already completed")

// CaptureRequest is the one-way notification handed to the image subsystem.
type CaptureRequest struct {
	TaskID     string         `json:"task_id"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Deep       bool           `json:"deep"`
	Time       float64        `json:"time"`
}

type TaskEnv struct {
	// Agent resolves an assigned agent id; nil when the agent is gone.
	Agent       func(id string) *Agent
	ReachRadius float64 // meters
	Time        float64
	Capture     func(CaptureRequest)
}

type RouteEnv struct {
	Hub            *geo.Coordinate
	ApproachRadius float64 // deep scans skip the target leg when already this close
}

// behaviour is the per-kind part of a task.
type behaviour interface {
	route(t *Task, a *Agent, env RouteEnv) []geo.Coordinate
	perform(t *Task, env TaskEnv) bool
}

type Task struct {
	id string

	Type       TaskType
	Coordinate geo.Coordinate
	// Capacity bounds concurrently assigned agents.
	Capacity int
	Agents   []string
	Status   TaskStatus

	CreatedAt   float64
	CompletedAt float64

	done   bool // perform reported completion
	closed bool // Complete ran

	b behaviour
}

func NewTask(id string, typ TaskType, c geo.Coordinate) *Task {
	t := &Task{id: id, Type: typ, Coordinate: c, Capacity: 1}
	switch typ {
	case TaskDeepScan:
		t.b = deepScan{}
	case TaskShallowScan:
		t.b = visit{capture: true}
	default:
		t.b = visit{}
	}
	return t
}

func (t *Task) ID() string { return t.id }
func (t *Task) Kind() Kind { return KindTask }

func (t *Task) IsComplete() bool { return t.closed }

// EffectiveCapacity is Capacity with the default of one applied.
func (t *Task) EffectiveCapacity() int {
	if t.Capacity <= 0 {
		return 1
	}
	return t.Capacity
}

// Remaining returns how many more agents may be assigned.
func (t *Task) Remaining() int {
	if t.closed {
		return 0
	}
	if r := t.EffectiveCapacity() - len(t.Agents); r > 0 {
		return r
	}
	return 0
}

func (t *Task) HasAgent(id string) bool {
	for _, a := range t.Agents {
		if a == id {
			return true
		}
	}
	return false
}

// AddAgent records a as assigned and returns the route a must fly for this task.
func (t *Task) AddAgent(a *Agent, env RouteEnv) []geo.Coordinate {
	if !t.HasAgent(a.ID()) {
		t.Agents = append(t.Agents, a.ID())
	}
	return t.b.route(t, a, env)
}

// Route returns the route for a without assigning it.
func (t *Task) Route(a *Agent, env RouteEnv) []geo.Coordinate {
	return t.b.route(t, a, env)
}

func (t *Task) RemoveAgent(id string) bool {
	for i, a := range t.Agents {
		if a == id {
			t.Agents = append(t.Agents[:i], t.Agents[i+1:]...)
			return true
		}
	}
	return false
}

// Step advances the task by one tick. It returns true exactly once, on the
// tick its completion condition is first met.
func (t *Task) Step(env TaskEnv) bool {
	if t.closed || t.done {
		return false
	}
	if len(t.Agents) == 0 {
		t.Status = TaskPending
		return false
	}
	t.Status = TaskInProgress
	if t.b.perform(t, env) {
		t.done = true
		return true
	}
	return false
}

// Complete closes the task and returns the ids of the agents it released.
// A second call fails with ErrTaskClosed.
func (t *Task) Complete(now float64) ([]string, error) {
	if t.closed {
		return nil, fmt.Errorf("%s %q: %w", KindTask, t.id, ErrTaskClosed)
	}
	t.closed = true
	t.done = true
	t.Status = TaskComplete
	t.CompletedAt = now
	released := t.Agents
	t.Agents = nil
	return released, nil
}

// workingAgents yields assigned agents that are actively working on this task.
func (t *Task) workingAgents(env TaskEnv) []*Agent {
	if env.Agent == nil {
		return nil
	}
	out := make([]*Agent, 0, len(t.Agents))
	for _, id := range t.Agents {
		a := env.Agent(id)
		if a == nil || !a.Working || a.AllocatedTaskID != t.id {
			continue
		}
		out = append(out, a)
	}
	return out
}

// visit completes once an assigned agent reaches the task coordinate.
type visit struct {
	capture bool
}

func (visit) route(t *Task, _ *Agent, _ RouteEnv) []geo.Coordinate {
	return []geo.Coordinate{t.Coordinate}
}

func (v visit) perform(t *Task, env TaskEnv) bool {
	for _, a := range t.workingAgents(env) {
		if !a.FinalDestinationReached && a.Coordinate.Distance(t.Coordinate) > env.ReachRadius {
			continue
		}
		if v.capture && env.Capture != nil {
			env.Capture(CaptureRequest{TaskID: t.id, Coordinate: t.Coordinate, Deep: false, Time: env.Time})
		}
		return true
	}
	return false
}

// deepScan flies over the target and back to the hub; the image is taken when
// a working agent reaches the end of that route.
type deepScan struct{}

func (deepScan) route(t *Task, a *Agent, env RouteEnv) []geo.Coordinate {
	var route []geo.Coordinate
	if a.Coordinate.Distance(t.Coordinate) > env.ApproachRadius {
		route = append(route, t.Coordinate)
	}
	if env.Hub != nil {
		route = append(route, *env.Hub)
	} else if len(route) == 0 {
		route = append(route, t.Coordinate)
	}
	return route
}

func (deepScan) perform(t *Task, env TaskEnv) bool {
	for _, a := range t.workingAgents(env) {
		if !a.FinalDestinationReached {
			continue
		}
		if env.Capture != nil {
			env.Capture(CaptureRequest{TaskID: t.id, Coordinate: t.Coordinate, Deep: true, Time: env.Time})
		}
		return true
	}
	return false
}

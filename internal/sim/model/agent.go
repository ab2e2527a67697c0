package model

import (
	"math"
	"math/rand"
	"time"

	"swarmsim.ai/internal/sim/geo"
)

// Agent is a simulated or physically connected drone. All fields are owned by
// the world state and must only be touched while its lock is held.
type Agent struct {
	id string

	Coordinate geo.Coordinate
	Battery    float64 // 0..1
	Heading    float64 // degrees
	Speed      float64 // m/s
	Simulated  bool
	Hub        bool

	TimedOut      bool
	LastHeartbeat time.Time

	Working                 bool
	FinalDestinationReached bool
	// Stopped holds the agent in place while the operator edits the allocation.
	Stopped bool

	Route     []geo.Coordinate
	TempRoute []geo.Coordinate

	AllocatedTaskID string
}

func NewAgent(id string, c geo.Coordinate) *Agent {
	return &Agent{id: id, Coordinate: c, Battery: 1}
}

func (a *Agent) ID() string { return a.id }
func (a *Agent) Kind() Kind { return KindAgent }

func (a *Agent) IsTimedOut() bool { return a.TimedOut }

// Heartbeat resets the timeout window and reconnects a timed-out agent.
func (a *Agent) Heartbeat(now time.Time) {
	a.LastHeartbeat = now
	a.TimedOut = false
}

func (a *Agent) Stop()   { a.Stopped = true }
func (a *Agent) Resume() { a.Stopped = false }

// SetRoute replaces the confirmed route. An empty route means the agent is
// already where it needs to be.
func (a *Agent) SetRoute(route []geo.Coordinate) {
	a.Route = append([]geo.Coordinate(nil), route...)
	a.FinalDestinationReached = len(a.Route) == 0
}

func (a *Agent) SetTempRoute(route []geo.Coordinate) {
	if route == nil {
		a.TempRoute = nil
		return
	}
	a.TempRoute = append([]geo.Coordinate(nil), route...)
}

// Release clears any work assignment; the agent holds its position.
func (a *Agent) Release() {
	a.Working = false
	a.AllocatedTaskID = ""
	a.Route = nil
	a.TempRoute = nil
	a.FinalDestinationReached = false
}

// Assign marks the agent as working on taskID along route.
func (a *Agent) Assign(taskID string, route []geo.Coordinate) {
	a.AllocatedTaskID = taskID
	a.Working = true
	a.SetRoute(route)
}

type AgentEnv struct {
	Now              time.Time
	Dt               float64 // simulated seconds per tick
	HeartbeatTimeout time.Duration

	Flocking    bool
	FlockRadius float64 // meters
	FlockWeight float64 // 0..1 share of the step spent on the flocking nudge

	Dropout      float64 // per-tick probability of a simulated connectivity fault
	BatteryDrain float64 // per simulated second of flight

	Neighbours []Neighbour
	Rand       *rand.Rand
}

// Neighbour is another agent as it stood at the start of the tick.
type Neighbour struct {
	ID         string
	Coordinate geo.Coordinate
	Heading    float64
}

// Neighbours copies the flocking view of every active agent in agents.
func Neighbours(agents []*Agent) []Neighbour {
	out := make([]Neighbour, 0, len(agents))
	for _, o := range agents {
		if o == nil || o.Hub || o.TimedOut {
			continue
		}
		out = append(out, Neighbour{ID: o.id, Coordinate: o.Coordinate, Heading: o.Heading})
	}
	return out
}

// Step advances the agent by one tick. It returns true when the agent lost its
// connection during this step.
func (a *Agent) Step(env AgentEnv) (lost bool) {
	if a.TimedOut {
		return false
	}
	if a.Simulated {
		a.LastHeartbeat = env.Now
		if !a.Hub && env.Dropout > 0 && env.Rand != nil && env.Rand.Float64() < env.Dropout {
			a.TimedOut = true
			return true
		}
	} else if env.HeartbeatTimeout > 0 && !a.LastHeartbeat.IsZero() && env.Now.Sub(a.LastHeartbeat) > env.HeartbeatTimeout {
		a.TimedOut = true
		return true
	}

	if a.Hub || a.Stopped || len(a.Route) == 0 {
		return false
	}
	if a.Simulated && a.Battery <= 0 {
		return false
	}

	stepLen := a.Speed * env.Dt
	if env.Flocking && env.FlockWeight > 0 {
		if e, n, ok := a.flockNudge(env.Neighbours, env.FlockRadius); ok {
			nudge := stepLen * env.FlockWeight
			a.Coordinate = a.Coordinate.Offset(e*nudge, n*nudge)
			stepLen -= nudge
		}
	}

	for stepLen > 0 && len(a.Route) > 0 {
		next := a.Route[0]
		d := a.Coordinate.Distance(next)
		if d > 0 {
			a.Heading = a.Coordinate.Bearing(next)
		}
		if d <= stepLen {
			a.Coordinate = next
			a.Route = a.Route[1:]
			stepLen -= d
			continue
		}
		a.Coordinate = a.Coordinate.Towards(next, stepLen)
		stepLen = 0
	}
	if len(a.Route) == 0 {
		a.Route = nil
		a.FinalDestinationReached = true
	}

	if a.Simulated && env.BatteryDrain > 0 {
		a.Battery = math.Max(0, a.Battery-env.BatteryDrain*env.Dt)
	}
	return false
}

// flockNudge returns a unit east/north vector combining cohesion towards the
// neighbours' centre and alignment with their mean heading.
func (a *Agent) flockNudge(neighbours []Neighbour, radius float64) (east, north float64, ok bool) {
	var ce, cn, he, hn float64
	n := 0
	for _, o := range neighbours {
		if o.ID == a.id {
			continue
		}
		d := a.Coordinate.Distance(o.Coordinate)
		if d == 0 || (radius > 0 && d > radius) {
			continue
		}
		b := a.Coordinate.Bearing(o.Coordinate) * math.Pi / 180
		ce += math.Sin(b) * d
		cn += math.Cos(b) * d
		h := o.Heading * math.Pi / 180
		he += math.Sin(h)
		hn += math.Cos(h)
		n++
	}
	if n == 0 {
		return 0, 0, false
	}
	ce /= float64(n)
	cn /= float64(n)
	if l := math.Hypot(ce, cn); l > 0 {
		ce /= l
		cn /= l
	}
	if l := math.Hypot(he, hn); l > 0 {
		he /= l
		hn /= l
	}
	east, north = ce+he, cn+hn
	l := math.Hypot(east, north)
	if l == 0 {
		return 0, 0, false
	}
	return east / l, north / l, true
}

package world

import (
	"fmt"

	"swarmsim.ai/internal/sim/alloc"
	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
)

// HubID is the id of the stationary hub agent created for scenarios with a hub.
const HubID = "HUB"

type AgentSpec struct {
	Coordinate geo.Coordinate
	Battery    float64 // 0 means full
	Simulated  bool
}

type TaskSpec struct {
	Type       model.TaskType
	Coordinate geo.Coordinate
	Capacity   int
}

type HazardSpec struct {
	Type       model.HazardType
	Coordinate geo.Coordinate
	Size       float64
}

type TargetSpec struct {
	Type           model.TargetType
	Coordinate     geo.Coordinate
	Classification string
	LowResImage    string
	HighResImage   string
}

// Scenario is an already validated initial-state descriptor.
type Scenario struct {
	GameID          string
	GameDescription string
	GameType        GameType
	GameCentre      *geo.Coordinate
	Hub             *geo.Coordinate

	AllocationMethod alloc.Method
	FlockingEnabled  bool
	AvgAgentDropout  float64
	IgnoredTaskProb  float64
	DeepAllowed      bool

	Wind             []WindEvent
	TimeLimitSeconds float64
	NextScenarioFile string

	Agents  []AgentSpec
	Tasks   []TaskSpec
	Hazards []HazardSpec
	Targets []TargetSpec

	UIOptions         []string
	UncertaintyRadius float64
	Markers           []Marker
}

// LoadScenario stops any running loop, resets state and populates it from sc.
// The initial allocation is solved immediately; the clock starts with StartSimulation.
func (s *Simulator) LoadScenario(sc Scenario) error {
	s.stopLoop()
	st := s.state
	st.mu.Lock()
	err := s.loadLocked(sc)
	if err != nil {
		s.resetLocked()
	}
	st.mu.Unlock()
	s.flush()
	return err
}

func (s *Simulator) loadLocked(sc Scenario) error {
	st := s.state
	st.resetLocked()
	st.resetNextLocked()

	st.gameID = sc.GameID
	st.gameDescription = sc.GameDescription
	st.gameType = sc.GameType
	st.gameCentre = copyCoord(sc.GameCentre)
	st.hub = copyCoord(sc.Hub)
	st.allocationMethod = sc.AllocationMethod
	if st.allocationMethod == "" {
		st.allocationMethod = alloc.MethodMaxSum
	}
	st.flocking = sc.FlockingEnabled
	st.avgDropout = sc.AvgAgentDropout
	st.ignoredTaskProb = sc.IgnoredTaskProb
	st.deepAllowed = sc.DeepAllowed
	st.uiOptions = append([]string(nil), sc.UIOptions...)
	st.uncertaintyRadius = sc.UncertaintyRadius
	st.markers = append([]Marker(nil), sc.Markers...)
	for _, w := range sc.Wind {
		st.addFutureWindLocked(w)
	}
	st.timeLimit = sc.TimeLimitSeconds
	if sc.NextScenarioFile != "" {
		st.passthrough = true
		st.nextFile = sc.NextScenarioFile
	}

	now := s.now()
	if st.hub != nil {
		hub := model.NewAgent(HubID, *st.hub)
		hub.Hub = true
		hub.Simulated = true
		hub.Heartbeat(now)
		if err := st.addLocked(hub); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}
	for _, spec := range sc.Agents {
		a := model.NewAgent(st.nextIDLocked(model.KindAgent), spec.Coordinate)
		a.Simulated = spec.Simulated
		a.Speed = s.cfg.AgentSpeed
		if spec.Battery > 0 {
			a.Battery = spec.Battery
		}
		a.Heartbeat(now)
		if err := st.addLocked(a); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}
	for _, spec := range sc.Hazards {
		h := model.NewHazard(st.nextIDLocked(model.KindHazard), spec.Type, spec.Coordinate, spec.Size)
		if err := st.addLocked(h); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}
	for _, spec := range sc.Targets {
		t := model.NewTarget(st.nextIDLocked(model.KindTarget), spec.Type, spec.Coordinate)
		t.Classification = spec.Classification
		t.LowResImage, t.HighResImage = spec.LowResImage, spec.HighResImage
		if err := st.addLocked(t); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}
	for _, spec := range sc.Tasks {
		t := model.NewTask(st.nextIDLocked(model.KindTask), spec.Type, spec.Coordinate)
		if spec.Capacity > 0 {
			t.Capacity = spec.Capacity
		}
		if err := st.addLocked(t); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}
	if _, err := s.alloc.autoAllocateLocked(); err != nil {
		return fmt.Errorf("load scenario: initial allocation: %w", err)
	}

	runID := s.newRunID()
	st.recordLocked(EventScenarioInit, Event{RunID: runID, Data: map[string]any{
		"game_type":  int(st.gameType),
		"agents":     len(sc.Agents),
		"tasks":      len(sc.Tasks),
		"hazards":    len(sc.Hazards),
		"targets":    len(sc.Targets),
		"allocation": string(st.allocationMethod),
	}})
	return nil
}

// StartSandbox resets into an empty sandbox session and starts the clock.
func (s *Simulator) StartSandbox() {
	s.stopLoop()
	st := s.state
	st.mu.Lock()
	s.resetLocked()
	st.gameType = GameSandbox
	st.gameID = "Sandbox"
	st.gameDescription = ""
	runID := s.newRunID()
	st.recordLocked(EventSandboxLoaded, Event{RunID: runID})
	st.mu.Unlock()
	s.flush()
	s.StartSimulation()
}

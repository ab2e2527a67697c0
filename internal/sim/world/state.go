package world

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"swarmsim.ai/internal/sim/alloc"
	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/hazard"
	"swarmsim.ai/internal/sim/model"
)

type EditMode int

const (
	ModeMonitor EditMode = 1
	ModeEdit    EditMode = 2
	ModeImages  EditMode = 3
)

func (m EditMode) Valid() bool { return m >= ModeMonitor && m <= ModeImages }

type GameType int

const (
	GameSandbox  GameType = 0
	GameScenario GameType = 1
)

// WindEvent changes wind At seconds of wall-clock time after the scenario started.
type WindEvent struct {
	At      float64 `json:"time"`
	Speed   float64 `json:"speed"`
	Heading float64 `json:"heading"`
}

type Marker struct {
	ID     string         `json:"id"`
	Shape  string         `json:"shape"`
	Centre geo.Coordinate `json:"centre"`
	Radius float64        `json:"radius"`
}

// State is the single authoritative aggregate. Every exported method takes mu;
// helpers named *Locked expect the caller to hold it.
type State struct {
	mu  sync.Mutex
	now func() time.Time

	agents    collection[*model.Agent]
	tasks     collection[*model.Task]
	completed []*model.Task
	hazards   collection[*model.Hazard]
	targets   collection[*model.Target]

	allocation        alloc.Assignment
	tempAllocation    alloc.Assignment
	droppedAllocation alloc.Assignment
	undo, redo        []alloc.Assignment

	hits *hazard.Collection

	gameID          string
	gameDescription string
	gameType        GameType
	gameCentre      *geo.Coordinate
	hub             *geo.Coordinate

	allocationMethod alloc.Method
	flocking         bool
	avgDropout       float64
	ignoredTaskProb  float64
	deepAllowed      bool

	time          float64
	timeLimit     float64
	scenarioStart time.Time
	scenarioEnd   time.Time // zero: no limit
	editMode      EditMode
	inProgress    bool

	passthrough bool
	nextFile    string

	windSpeed   float64
	windHeading float64
	futureWind  []WindEvent

	uiOptions         []string
	uncertaintyRadius float64
	markers           []Marker

	storedImages map[string]string
	deepScanned  []string

	counters map[model.Kind]int
	events   []Event
}

func NewState(decayRates map[model.HazardType]float64, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	s := &State{
		now:     now,
		agents:  collection[*model.Agent]{kind: model.KindAgent},
		tasks:   collection[*model.Task]{kind: model.KindTask},
		hazards: collection[*model.Hazard]{kind: model.KindHazard},
		targets: collection[*model.Target]{kind: model.KindTarget},
		hits:    hazard.NewCollection(decayRates),
	}
	s.resetLocked()
	s.resetNextLocked()
	return s
}

// Reset restores every scenario field to its default. Calling it twice is the
// same as calling it once.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *State) resetLocked() {
	s.time = 0
	s.editMode = ModeMonitor
	s.inProgress = false
	s.allocationMethod = alloc.MethodMaxSum
	s.flocking = false
	s.uncertaintyRadius = 0
	s.windSpeed, s.windHeading = 0, 0
	s.futureWind = nil
	s.markers = nil
	s.gameCentre = nil
	s.hub = nil
	s.avgDropout = 0
	s.ignoredTaskProb = 0
	s.deepAllowed = false

	s.agents.clear()
	s.tasks.clear()
	s.completed = nil
	s.hazards.clear()
	s.targets.clear()

	s.allocation = alloc.Assignment{}
	s.tempAllocation = alloc.Assignment{}
	s.droppedAllocation = alloc.Assignment{}
	s.undo, s.redo = nil, nil

	s.hits.Clear()
	s.storedImages = map[string]string{}
	s.deepScanned = nil
	s.uiOptions = nil
	s.counters = map[model.Kind]int{}
}

// resetNextLocked clears the fields describing how the current scenario ends.
func (s *State) resetNextLocked() {
	s.passthrough = false
	s.nextFile = ""
	s.timeLimit = 0
	s.scenarioEnd = time.Time{}
}

func (s *State) Time() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.time
}

func (s *State) EditMode() EditMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

func (s *State) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

func (s *State) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

// SetTimeLimit sets the limit in seconds and derives the wall-clock end time
// from now. Zero removes the limit.
func (s *State) SetTimeLimit(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTimeLimitLocked(seconds)
}

func (s *State) setTimeLimitLocked(seconds float64) {
	s.timeLimit = seconds
	s.updateScenarioEndLocked()
}

func (s *State) updateScenarioEndLocked() {
	if s.timeLimit <= 0 {
		s.scenarioEnd = time.Time{}
		return
	}
	s.scenarioEnd = s.now().Add(time.Duration(s.timeLimit * float64(time.Second)))
}

func (s *State) ExtendTimeLimit(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTimeLimitLocked(s.timeLimit + seconds)
}

// AddFutureWind queues a wind change; the queue stays ordered by time.
func (s *State) AddFutureWind(ev WindEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addFutureWindLocked(ev)
}

func (s *State) addFutureWindLocked(ev WindEvent) {
	s.futureWind = append(s.futureWind, ev)
	sort.SliceStable(s.futureWind, func(i, j int) bool { return s.futureWind[i].At < s.futureWind[j].At })
}

// applyWindLocked applies every due wind change in time order and returns them.
func (s *State) applyWindLocked(now time.Time) []WindEvent {
	var applied []WindEvent
	for len(s.futureWind) > 0 {
		ev := s.futureWind[0]
		due := s.scenarioStart.Add(time.Duration(ev.At * float64(time.Second)))
		if now.Before(due) {
			break
		}
		s.windSpeed, s.windHeading = ev.Speed, ev.Heading
		s.futureWind = s.futureWind[1:]
		applied = append(applied, ev)
	}
	return applied
}

func (s *State) Wind() (speed, heading float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windSpeed, s.windHeading
}

func (s *State) AddMarker(m Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
}

// RecordImage stores a captured image filename for the entity id.
func (s *State) RecordImage(id, filename string, deep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storedImages[id] = filename
	if deep {
		s.deepScanned = append(s.deepScanned, id)
	}
}

func (s *State) StoredImages() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.storedImages))
	for k, v := range s.storedImages {
		out[k] = v
	}
	return out
}

func (s *State) HubLocation() (geo.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub == nil {
		return geo.Coordinate{}, false
	}
	return *s.hub, true
}

// AddHazardHit registers a sensor sample. Unknown hazard types are rejected.
func (s *State) AddHazardHit(typ model.HazardType, at geo.Coordinate) error {
	return s.hits.Add(typ, at)
}

func (s *State) DecayHazardHits() { s.hits.DecayAll() }

func (s *State) HazardHits() *hazard.Collection { return s.hits }

// Allocation returns a copy of the confirmed allocation.
func (s *State) Allocation() alloc.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocation.Clone()
}

func (s *State) TempAllocation() alloc.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempAllocation.Clone()
}

func (s *State) DroppedAllocation() alloc.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedAllocation.Clone()
}

// CompletedTaskIDs lists completed tasks in completion order.
func (s *State) CompletedTaskIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.completed))
	for _, t := range s.completed {
		out = append(out, t.ID())
	}
	return out
}

func (s *State) Counts() (agents, tasks, hazards, targets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents.len(), s.tasks.len(), s.hazards.len(), s.targets.len()
}

// record queues an event for the simulator to publish once the lock is released.
func (s *State) recordLocked(code string, ev Event) {
	ev.Code = code
	ev.SimTime = s.time
	ev.GameID = s.gameID
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.events = append(s.events, ev)
}

func (s *State) drainEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func (s *State) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("state(game=%q t=%.1f agents=%d tasks=%d mode=%d)", s.gameID, s.time, s.agents.len(), s.tasks.len(), s.editMode)
}

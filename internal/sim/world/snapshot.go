package world

import (
	"strconv"

	"github.com/paulmach/orb/geojson"

	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/hazard"
	"swarmsim.ai/internal/sim/model"
)

type AgentView struct {
	ID                      string           `json:"id"`
	Coordinate              geo.Coordinate   `json:"coordinate"`
	Battery                 float64          `json:"battery"`
	Heading                 float64          `json:"heading"`
	Speed                   float64          `json:"speed"`
	Simulated               bool             `json:"simulated"`
	Hub                     bool             `json:"hub,omitempty"`
	TimedOut                bool             `json:"timedOut"`
	Working                 bool             `json:"working"`
	Stopped                 bool             `json:"stopped"`
	FinalDestinationReached bool             `json:"finalDestinationReached"`
	Route                   []geo.Coordinate `json:"route"`
	TempRoute               []geo.Coordinate `json:"tempRoute"`
	AllocatedTaskID         string           `json:"allocatedTaskId,omitempty"`
}

type TaskView struct {
	ID          string         `json:"id"`
	Type        int            `json:"type"`
	Coordinate  geo.Coordinate `json:"coordinate"`
	Capacity    int            `json:"capacity"`
	Agents      []string       `json:"agents"`
	Status      string         `json:"status"`
	CreatedAt   float64        `json:"createdAt"`
	CompletedAt float64        `json:"completedAt,omitempty"`
}

type HazardView struct {
	ID         string         `json:"id"`
	Type       int            `json:"type"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Size       float64        `json:"size"`
}

type TargetView struct {
	ID         string         `json:"id"`
	Type       int            `json:"type"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Visible    bool           `json:"visible"`
}

// Snapshot is a deep, lock-free copy of State for serializers.
type Snapshot struct {
	GameID           string          `json:"gameId"`
	GameDescription  string          `json:"gameDescription"`
	GameType         int             `json:"gameType"`
	GameCentre       *geo.Coordinate `json:"gameCentre,omitempty"`
	HubLocation      *geo.Coordinate `json:"hubLocation,omitempty"`
	AllocationMethod string          `json:"allocationMethod"`
	FlockingEnabled  bool            `json:"flockingEnabled"`
	DeepAllowed      bool            `json:"deepAllowed"`
	AvgAgentDropout  float64         `json:"avgAgentDropout"`
	IgnoredTaskProb  float64         `json:"ignoredTaskProb"`

	Time              float64 `json:"time"`
	TimeLimit         float64 `json:"timeLimit"`
	ScenarioStartTime int64   `json:"scenarioStartTime"` // unix ms
	ScenarioEndTime   int64   `json:"scenarioEndTime"`   // unix ms, 0 when unlimited
	EditMode          int     `json:"editMode"`
	InProgress        bool    `json:"inProgress"`
	Passthrough       bool    `json:"passthrough"`
	NextFileName      string  `json:"nextFileName"`

	Agents         []AgentView  `json:"agents"`
	Tasks          []TaskView   `json:"tasks"`
	CompletedTasks []TaskView   `json:"completedTasks"`
	Hazards        []HazardView `json:"hazards"`
	Targets        []TargetView `json:"targets"`

	Allocation              map[string]string `json:"allocation"`
	TempAllocation          map[string]string `json:"tempAllocation"`
	DroppedAllocation       map[string]string `json:"droppedAllocation"`
	AllocationUndoAvailable bool              `json:"allocationUndoAvailable"`
	AllocationRedoAvailable bool              `json:"allocationRedoAvailable"`

	HazardHits map[string][]hazard.Hit `json:"hazardHits"`

	WindSpeed   float64     `json:"windSpeed"`
	WindHeading float64     `json:"windHeading"`
	FutureWind  []WindEvent `json:"futureWind"`

	UIOptions         []string                   `json:"uiOptions"`
	UncertaintyRadius float64                    `json:"uncertaintyRadius"`
	Markers           *geojson.FeatureCollection `json:"markers"`
	StoredImages      map[string]string          `json:"storedImages"`
	DeepScannedIDs    []string                   `json:"deepScannedIds"`
}

// Snapshot copies the whole state under the lock, so readers never see a torn tick.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	out := Snapshot{
		GameID:           s.gameID,
		GameDescription:  s.gameDescription,
		GameType:         int(s.gameType),
		GameCentre:       copyCoord(s.gameCentre),
		HubLocation:      copyCoord(s.hub),
		AllocationMethod: string(s.allocationMethod),
		FlockingEnabled:  s.flocking,
		DeepAllowed:      s.deepAllowed,
		AvgAgentDropout:  s.avgDropout,
		IgnoredTaskProb:  s.ignoredTaskProb,

		Time:         s.time,
		TimeLimit:    s.timeLimit,
		EditMode:     int(s.editMode),
		InProgress:   s.inProgress,
		Passthrough:  s.passthrough,
		NextFileName: s.nextFile,

		Agents:         make([]AgentView, 0, s.agents.len()),
		Tasks:          make([]TaskView, 0, s.tasks.len()),
		CompletedTasks: make([]TaskView, 0, len(s.completed)),
		Hazards:        make([]HazardView, 0, s.hazards.len()),
		Targets:        make([]TargetView, 0, s.targets.len()),

		Allocation:              s.allocation.Clone(),
		TempAllocation:          s.tempAllocation.Clone(),
		DroppedAllocation:       s.droppedAllocation.Clone(),
		AllocationUndoAvailable: len(s.undo) > 0,
		AllocationRedoAvailable: len(s.redo) > 0,

		HazardHits: map[string][]hazard.Hit{},

		WindSpeed:   s.windSpeed,
		WindHeading: s.windHeading,
		FutureWind:  append([]WindEvent{}, s.futureWind...),

		UIOptions:         append([]string{}, s.uiOptions...),
		UncertaintyRadius: s.uncertaintyRadius,
		Markers:           markersGeoJSON(s.markers),
		StoredImages:      make(map[string]string, len(s.storedImages)),
		DeepScannedIDs:    append([]string{}, s.deepScanned...),
	}
	if !s.scenarioStart.IsZero() {
		out.ScenarioStartTime = s.scenarioStart.UnixMilli()
	}
	if !s.scenarioEnd.IsZero() {
		out.ScenarioEndTime = s.scenarioEnd.UnixMilli()
	}
	for _, a := range s.agents.items {
		out.Agents = append(out.Agents, AgentView{
			ID:                      a.ID(),
			Coordinate:              a.Coordinate,
			Battery:                 a.Battery,
			Heading:                 a.Heading,
			Speed:                   a.Speed,
			Simulated:               a.Simulated,
			Hub:                     a.Hub,
			TimedOut:                a.TimedOut,
			Working:                 a.Working,
			Stopped:                 a.Stopped,
			FinalDestinationReached: a.FinalDestinationReached,
			Route:                   append([]geo.Coordinate{}, a.Route...),
			TempRoute:               append([]geo.Coordinate{}, a.TempRoute...),
			AllocatedTaskID:         a.AllocatedTaskID,
		})
	}
	for _, t := range s.tasks.items {
		out.Tasks = append(out.Tasks, taskView(t))
	}
	for _, t := range s.completed {
		out.CompletedTasks = append(out.CompletedTasks, taskView(t))
	}
	for _, h := range s.hazards.items {
		out.Hazards = append(out.Hazards, HazardView{ID: h.ID(), Type: int(h.Type), Coordinate: h.Coordinate, Size: h.Size})
	}
	for _, t := range s.targets.items {
		out.Targets = append(out.Targets, TargetView{ID: t.ID(), Type: int(t.Type), Coordinate: t.Coordinate, Visible: t.Visible})
	}
	for typ, hits := range s.hits.Snapshot() {
		out.HazardHits[strconv.Itoa(int(typ))] = hits
	}
	for k, v := range s.storedImages {
		out.StoredImages[k] = v
	}
	return out
}

func taskView(t *model.Task) TaskView {
	return TaskView{
		ID:          t.ID(),
		Type:        int(t.Type),
		Coordinate:  t.Coordinate,
		Capacity:    t.Capacity,
		Agents:      append([]string{}, t.Agents...),
		Status:      t.Status.String(),
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func copyCoord(c *geo.Coordinate) *geo.Coordinate {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func markersGeoJSON(markers []Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		f := geojson.NewFeature(m.Centre.Point())
		f.ID = m.ID
		f.Properties["shape"] = m.Shape
		f.Properties["radius"] = m.Radius
		fc.Append(f)
	}
	return fc
}

package scenario

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"swarmsim.ai/internal/sim/alloc"
	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
	"swarmsim.ai/internal/sim/world"
)

// ErrInvalid wraps every descriptor that fails the hard shape checks.
var ErrInvalid = errors.New("invalid scenario")

const defaultHazardSize = 10 // meters

//go:embed schema.json
var schemaJSON string

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("scenario.schema.json", schemaJSON)
})

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p latLng) coord() geo.Coordinate { return geo.New(p.Lat, p.Lng) }

type descriptor struct {
	GameID          string  `json:"gameId"`
	GameDescription string  `json:"gameDescription"`
	GameCentre      *latLng `json:"gameCentre"`
	Hub             *latLng `json:"hub"`

	// Soft fields: a wrong type falls back to the default with a warning.
	AllocationMethod json.RawMessage `json:"allocationMethod"`
	FlockingEnabled  json.RawMessage `json:"flockingEnabled"`
	FaultySwarm      json.RawMessage `json:"faultySwarm"`
	AvgAgentDropout  json.RawMessage `json:"avgAgentDropout"`
	IgnoredTaskProb  json.RawMessage `json:"ignoredTaskProb"`
	TimeLimitSeconds json.RawMessage `json:"timeLimitSeconds"`
	TimeLimitMinutes json.RawMessage `json:"timeLimitMinutes"`
	NextScenarioFile json.RawMessage `json:"nextScenarioFile"`
	DeepAllowed      json.RawMessage `json:"deepAllowed"`

	Wind []struct {
		Time    float64 `json:"time"`
		Speed   float64 `json:"speed"`
		Heading float64 `json:"heading"`
	} `json:"wind"`

	Agents []struct {
		latLng
		Battery   float64 `json:"battery"`
		Simulated *bool   `json:"simulated"`
	} `json:"agents"`

	Tasks []struct {
		latLng
		Type     int `json:"type"`
		Capacity int `json:"capacity"`
	} `json:"tasks"`

	Hazards []struct {
		latLng
		Type int      `json:"type"`
		Size *float64 `json:"size"`
	} `json:"hazards"`

	Targets []struct {
		latLng
		Type                  int     `json:"type"`
		CorrectClassification *string `json:"correctClassification"`
		LowRes                string  `json:"lowRes"`
		HighRes               string  `json:"highRes"`
	} `json:"targets"`

	ExtendedUIOptions *struct {
		Predictions   bool `json:"predictions"`
		Uncertainties bool `json:"uncertainties"`
	} `json:"extendedUIOptions"`
	UncertaintyRadius float64 `json:"uncertaintyRadius"`

	Markers []struct {
		Shape     string  `json:"shape"`
		CentreLat float64 `json:"centreLat"`
		CentreLng float64 `json:"centreLng"`
		Radius    float64 `json:"radius"`
	} `json:"markers"`
}

// Parse validates a scenario descriptor and converts it for world.Simulator.LoadScenario.
func Parse(data []byte, log *slog.Logger) (world.Scenario, error) {
	if log == nil {
		log = slog.Default()
	}
	schema, err := compiledSchema()
	if err != nil {
		return world.Scenario{}, fmt.Errorf("compile scenario schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return world.Scenario{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(raw); err != nil {
		return world.Scenario{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return world.Scenario{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	log = log.With("game_id", d.GameID)
	sc := world.Scenario{
		GameID:            d.GameID,
		GameDescription:   d.GameDescription,
		GameType:          world.GameScenario,
		AllocationMethod:  alloc.MethodMaxSum,
		UncertaintyRadius: d.UncertaintyRadius,
	}
	if d.GameCentre != nil {
		c := d.GameCentre.coord()
		sc.GameCentre = &c
	}
	if d.Hub != nil {
		c := d.Hub.coord()
		sc.Hub = &c
	}

	if s, ok := softString(log, "allocationMethod", d.AllocationMethod); ok {
		m, err := alloc.ParseMethod(s)
		if err != nil {
			log.Warn("allocation method not valid, using maxsum", "value", s)
		}
		sc.AllocationMethod = m
	}
	sc.FlockingEnabled, _ = softBool(log, "flockingEnabled", d.FlockingEnabled)
	faulty, _ := softBool(log, "faultySwarm", d.FaultySwarm)
	sc.AvgAgentDropout, _ = softFloat(log, "avgAgentDropout", d.AvgAgentDropout)
	sc.IgnoredTaskProb, _ = softFloat(log, "ignoredTaskProb", d.IgnoredTaskProb)
	sc.DeepAllowed, _ = softBool(log, "deepAllowed", d.DeepAllowed)
	if secs, ok := softFloat(log, "timeLimitSeconds", d.TimeLimitSeconds); ok {
		sc.TimeLimitSeconds += secs
	}
	if mins, ok := softFloat(log, "timeLimitMinutes", d.TimeLimitMinutes); ok {
		sc.TimeLimitSeconds += mins * 60
	}
	if next, ok := softString(log, "nextScenarioFile", d.NextScenarioFile); ok {
		sc.NextScenarioFile = next
	}

	for _, w := range d.Wind {
		sc.Wind = append(sc.Wind, world.WindEvent{At: w.Time, Speed: w.Speed, Heading: w.Heading})
	}
	for _, a := range d.Agents {
		spec := world.AgentSpec{Coordinate: a.coord(), Battery: a.Battery, Simulated: true}
		if a.Simulated != nil {
			spec.Simulated = *a.Simulated
		}
		sc.Agents = append(sc.Agents, spec)
	}
	for _, t := range d.Tasks {
		sc.Tasks = append(sc.Tasks, world.TaskSpec{Type: model.TaskType(t.Type), Coordinate: t.coord(), Capacity: t.Capacity})
	}
	for _, h := range d.Hazards {
		size := float64(defaultHazardSize)
		if h.Size != nil {
			size = *h.Size
		}
		sc.Hazards = append(sc.Hazards, world.HazardSpec{Type: model.HazardType(h.Type), Coordinate: h.coord(), Size: size})
	}
	for _, t := range d.Targets {
		spec := world.TargetSpec{Type: model.TargetType(t.Type), Coordinate: t.coord(), LowResImage: t.LowRes, HighResImage: t.HighRes}
		if t.CorrectClassification != nil {
			// False alarms only exist when the swarm is faulty.
			if *t.CorrectClassification == "false" && !faulty {
				continue
			}
			spec.Classification = *t.CorrectClassification
		}
		sc.Targets = append(sc.Targets, spec)
	}
	if o := d.ExtendedUIOptions; o != nil {
		if o.Predictions {
			sc.UIOptions = append(sc.UIOptions, "predictions")
		}
		if o.Uncertainties {
			sc.UIOptions = append(sc.UIOptions, "uncertainties")
		}
	}
	for i, m := range d.Markers {
		sc.Markers = append(sc.Markers, world.Marker{
			ID:     fmt.Sprintf("marker-%d", i+1),
			Shape:  m.Shape,
			Centre: geo.New(m.CentreLat, m.CentreLng),
			Radius: m.Radius,
		})
	}
	return sc, nil
}

// LoadFile reads and parses a descriptor from disk.
func LoadFile(path string, log *slog.Logger) (world.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return world.Scenario{}, err
	}
	sc, err := Parse(data, log)
	if err != nil {
		return world.Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func softBool(log *slog.Logger, field string, raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn("expected boolean, using default", "field", field, "value", string(raw))
		return false, false
	}
	return v, true
}

func softFloat(log *slog.Logger, field string, raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn("expected number, using default", "field", field, "value", string(raw))
		return 0, false
	}
	return v, true
}

func softString(log *slog.Logger, field string, raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn("expected string, ignoring", "field", field, "value", string(raw))
		return "", false
	}
	return strings.TrimSpace(v), true
}

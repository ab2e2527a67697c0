package tuning

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"swarmsim.ai/internal/sim/model"
	"swarmsim.ai/internal/sim/world"
)

type Tuning struct {
	GameSpeed      float64 `yaml:"game_speed"`
	TickSeconds    float64 `yaml:"tick_seconds"`
	TicksPerSecond int     `yaml:"ticks_per_second"`

	HeartbeatTimeoutSeconds float64 `yaml:"heartbeat_timeout_seconds"`

	Agent  Agent  `yaml:"agent"`
	Tasks  Tasks  `yaml:"tasks"`
	Sensor Sensor `yaml:"sensor"`
	Images Images `yaml:"images"`

	// HazardDecay maps hazard type ("-1", "0", "1") to its per-tick decay rate.
	HazardDecay map[string]float64 `yaml:"hazard_decay"`

	Seed int64 `yaml:"seed"`

	StatePushHz float64 `yaml:"state_push_hz"`
}

type Agent struct {
	Speed        float64 `yaml:"speed_mps"`
	BatteryDrain float64 `yaml:"battery_drain_per_second"`
	FlockRadius  float64 `yaml:"flock_radius_m"`
	FlockWeight  float64 `yaml:"flock_weight"`
}

type Tasks struct {
	ReachRadius    float64 `yaml:"reach_radius_m"`
	ApproachRadius float64 `yaml:"deep_scan_approach_radius_m"`
}

type Sensor struct {
	Radius float64 `yaml:"radius_m"`
}

// Images holds the simulated capture latency, in virtual seconds.
type Images struct {
	ShallowDelay float64 `yaml:"shallow_delay_s"`
	DeepDelay    float64 `yaml:"deep_delay_s"`
}

// Defaults mirrors the zero-value defaults world.Config applies.
func Defaults() Tuning {
	return Tuning{
		GameSpeed:               1,
		TickSeconds:             0.2,
		TicksPerSecond:          5,
		HeartbeatTimeoutSeconds: 20,
		Agent:                   Agent{Speed: 10, FlockRadius: 50, FlockWeight: 0.2},
		Tasks:                   Tasks{ReachRadius: 2, ApproachRadius: 3},
		Sensor:                  Sensor{Radius: 15},
		Images:                  Images{ShallowDelay: 1, DeepDelay: 5},
		HazardDecay:             map[string]float64{"-1": 0.001, "0": 0, "1": 0},
		Seed:                    1,
		StatePushHz:             5,
	}
}

// Load reads path over Defaults; keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if _, err := t.decayRates(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) decayRates() (map[model.HazardType]float64, error) {
	if len(t.HazardDecay) == 0 {
		return nil, nil
	}
	out := make(map[model.HazardType]float64, len(t.HazardDecay))
	for k, v := range t.HazardDecay {
		n, err := strconv.Atoi(k)
		if err != nil || !model.HazardType(n).Valid() {
			return nil, fmt.Errorf("hazard_decay: unknown hazard type %q", k)
		}
		if v < 0 {
			return nil, fmt.Errorf("hazard_decay[%s]: negative rate %v", k, v)
		}
		out[model.HazardType(n)] = v
	}
	return out, nil
}

// WorldConfig converts the tuning into the simulator config.
func (t Tuning) WorldConfig() world.Config {
	rates, _ := t.decayRates()
	return world.Config{
		GameSpeed:        t.GameSpeed,
		TickSeconds:      t.TickSeconds,
		TicksPerSecond:   t.TicksPerSecond,
		HeartbeatTimeout: time.Duration(t.HeartbeatTimeoutSeconds * float64(time.Second)),
		AgentSpeed:       t.Agent.Speed,
		BatteryDrain:     t.Agent.BatteryDrain,
		FlockRadius:      t.Agent.FlockRadius,
		FlockWeight:      t.Agent.FlockWeight,
		ReachRadius:      t.Tasks.ReachRadius,
		ApproachRadius:   t.Tasks.ApproachRadius,
		SensorRadius:     t.Sensor.Radius,
		DecayRates:       rates,
		Seed:             t.Seed,
	}
}

// PushInterval is how often websocket clients receive a state snapshot.
func (t Tuning) PushInterval() time.Duration {
	if t.StatePushHz <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(float64(time.Second) / t.StatePushHz)
}

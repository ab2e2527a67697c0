package world

import (
	"time"

	"swarmsim.ai/internal/sim/hazard"
	"swarmsim.ai/internal/sim/model"
)

type Config struct {
	// GameSpeed scales the real-time cadence. Virtual time per tick is fixed.
	GameSpeed      float64
	TickSeconds    float64
	TicksPerSecond int

	HeartbeatTimeout time.Duration

	// Agent kinematics.
	AgentSpeed   float64 // m/s
	BatteryDrain float64 // battery fraction per simulated second; 0 disables drain
	FlockRadius  float64 // meters
	FlockWeight  float64

	// Task completion.
	ReachRadius    float64 // meters
	ApproachRadius float64 // deep scans skip the target leg inside this radius

	// SensorRadius bounds target discovery around each agent.
	SensorRadius float64

	// DecayRates per hazard type; types absent here cannot receive hits.
	DecayRates map[model.HazardType]float64

	Seed int64
}

func (c *Config) applyDefaults() {
	if c.GameSpeed <= 0 {
		c.GameSpeed = 1
	}
	if c.TickSeconds <= 0 {
		c.TickSeconds = 0.2
	}
	if c.TicksPerSecond <= 0 {
		c.TicksPerSecond = 5
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 20 * time.Second
	}
	if c.AgentSpeed <= 0 {
		c.AgentSpeed = 10
	}
	if c.BatteryDrain < 0 {
		c.BatteryDrain = 0
	}
	if c.FlockRadius <= 0 {
		c.FlockRadius = 50
	}
	if c.FlockWeight <= 0 || c.FlockWeight > 1 {
		c.FlockWeight = 0.2
	}
	if c.ReachRadius <= 0 {
		c.ReachRadius = 2
	}
	if c.ApproachRadius <= 0 {
		c.ApproachRadius = 3
	}
	if c.SensorRadius <= 0 {
		c.SensorRadius = 15
	}
	if len(c.DecayRates) == 0 {
		c.DecayRates = make(map[model.HazardType]float64, len(hazard.DefaultDecayRates))
		for k, v := range hazard.DefaultDecayRates {
			c.DecayRates[k] = v
		}
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Period is the real-time length of one tick: 1s / (GameSpeed * TicksPerSecond).
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / (c.GameSpeed * float64(c.TicksPerSecond)))
}

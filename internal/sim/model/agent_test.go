package model

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim.ai/internal/sim/geo"
)

func TestAgentStep_FollowsRoute(t *testing.T) {
	start := geo.New(50.0, -1.0)
	wp1 := start.Offset(0, 10)
	wp2 := wp1.Offset(10, 0)
	a := NewAgent("UAV-1", start)
	a.Simulated = true
	a.Speed = 10
	a.SetRoute([]geo.Coordinate{wp1, wp2})
	require.False(t, a.FinalDestinationReached)

	env := AgentEnv{Now: time.Unix(0, 0), Dt: 0.2}
	for i := 0; i < 4; i++ {
		a.Step(env)
	}
	assert.InDelta(t, 8.0, start.Distance(a.Coordinate), 0.1)
	assert.Len(t, a.Route, 2)

	for i := 0; i < 20; i++ {
		a.Step(env)
	}
	assert.Empty(t, a.Route)
	assert.True(t, a.FinalDestinationReached)
	assert.Equal(t, wp2, a.Coordinate)
}

func TestAgentStep_StoppedHolds(t *testing.T) {
	start := geo.New(50.0, -1.0)
	a := NewAgent("UAV-1", start)
	a.Simulated = true
	a.Speed = 10
	a.SetRoute([]geo.Coordinate{start.Offset(0, 100)})
	a.Stop()
	a.Step(AgentEnv{Dt: 0.2})
	assert.Equal(t, start, a.Coordinate)
	a.Resume()
	a.Step(AgentEnv{Dt: 0.2})
	assert.NotEqual(t, start, a.Coordinate)
}

func TestAgentStep_HeartbeatTimeout(t *testing.T) {
	t0 := time.Unix(1000, 0)
	a := NewAgent("UAV-1", geo.New(50, -1))
	a.Heartbeat(t0)

	env := AgentEnv{Now: t0.Add(10 * time.Second), HeartbeatTimeout: 20 * time.Second, Dt: 0.2}
	assert.False(t, a.Step(env))
	assert.False(t, a.IsTimedOut())

	env.Now = t0.Add(21 * time.Second)
	assert.True(t, a.Step(env))
	assert.True(t, a.IsTimedOut())
	assert.False(t, a.Step(env), "a timed-out agent is not stepped again")

	a.Heartbeat(env.Now)
	assert.False(t, a.IsTimedOut())
}

func TestAgentStep_SimulatedDropout(t *testing.T) {
	a := NewAgent("UAV-1", geo.New(50, -1))
	a.Simulated = true
	lost := a.Step(AgentEnv{Dt: 0.2, Dropout: 1, Rand: rand.New(rand.NewSource(1))})
	assert.True(t, lost)
	assert.True(t, a.IsTimedOut())

	hub := NewAgent("HUB", geo.New(50, -1))
	hub.Simulated = true
	hub.Hub = true
	assert.False(t, hub.Step(AgentEnv{Dt: 0.2, Dropout: 1, Rand: rand.New(rand.NewSource(1))}))
}

func TestAgentStep_FlockingNudgesTowardsNeighbours(t *testing.T) {
	start := geo.New(50.0, -1.0)
	a := NewAgent("UAV-1", start)
	a.Simulated = true
	a.Speed = 10
	a.SetRoute([]geo.Coordinate{start.Offset(0, 1000)})

	n := NewAgent("UAV-2", start.Offset(50, 0))
	n.Heading = 90

	a.Step(AgentEnv{Dt: 1, Flocking: true, FlockRadius: 200, FlockWeight: 0.5, Neighbours: Neighbours([]*Agent{a, n})})
	assert.Greater(t, a.Coordinate.Lng, start.Lng)
	assert.Greater(t, a.Coordinate.Lat, start.Lat)
}

func TestAgentStep_BatteryDrain(t *testing.T) {
	start := geo.New(50.0, -1.0)
	a := NewAgent("UAV-1", start)
	a.Simulated = true
	a.Speed = 1
	a.SetRoute([]geo.Coordinate{start.Offset(0, 1000)})
	a.Step(AgentEnv{Dt: 1, BatteryDrain: 0.6})
	a.Step(AgentEnv{Dt: 1, BatteryDrain: 0.6})
	assert.Zero(t, a.Battery)
	pos := a.Coordinate
	a.Step(AgentEnv{Dt: 1, BatteryDrain: 0.6})
	assert.Equal(t, pos, a.Coordinate)
}

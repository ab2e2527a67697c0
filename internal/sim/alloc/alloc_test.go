package alloc

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim.ai/internal/sim/geo"
)

var origin = geo.New(50.0, -1.0)

func at(north float64) geo.Coordinate { return origin.Offset(0, north) }

func TestMaxSum_PrefersNearest(t *testing.T) {
	agents := []Agent{{ID: "UAV-1", Coordinate: at(0)}, {ID: "UAV-2", Coordinate: at(1000)}}
	tasks := []Task{{ID: "TASK-1", Coordinate: at(990), Slots: 1}, {ID: "TASK-2", Coordinate: at(10), Slots: 1}}
	got := MaxSum(agents, tasks)
	assert.Equal(t, Assignment{"UAV-1": "TASK-2", "UAV-2": "TASK-1"}, got)
}

func TestMaxSum_Deterministic(t *testing.T) {
	var agents []Agent
	var tasks []Task
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 12; i++ {
		agents = append(agents, Agent{ID: fmt.Sprintf("UAV-%d", i), Coordinate: origin.Offset(r.Float64()*500, r.Float64()*500)})
	}
	for i := 0; i < 8; i++ {
		tasks = append(tasks, Task{ID: fmt.Sprintf("TASK-%d", i), Coordinate: origin.Offset(r.Float64()*500, r.Float64()*500), Slots: 1})
	}
	first := MaxSum(agents, tasks)
	rev := make([]Agent, len(agents))
	for i := range agents {
		rev[len(agents)-1-i] = agents[i]
	}
	assert.Equal(t, first, MaxSum(rev, tasks))
	assert.Len(t, first, 8)
}

func TestMaxSum_TieBreaksOnID(t *testing.T) {
	agents := []Agent{{ID: "UAV-2", Coordinate: at(0)}, {ID: "UAV-1", Coordinate: at(0)}}
	tasks := []Task{{ID: "TASK-1", Coordinate: at(100), Slots: 1}}
	assert.Equal(t, Assignment{"UAV-1": "TASK-1"}, MaxSum(agents, tasks))
}

func TestMaxSum_RespectsCapacity(t *testing.T) {
	agents := []Agent{
		{ID: "UAV-1", Coordinate: at(0)},
		{ID: "UAV-2", Coordinate: at(1)},
		{ID: "UAV-3", Coordinate: at(2)},
	}
	tasks := []Task{{ID: "TASK-1", Coordinate: at(0), Slots: 2}, {ID: "TASK-2", Coordinate: at(5000), Slots: 0}}
	got := MaxSum(agents, tasks)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, got.Counts()["TASK-1"])
	assert.NotContains(t, got, "UAV-3")
}

func TestRandom_CapacityAndDeterminism(t *testing.T) {
	var agents []Agent
	for i := 0; i < 10; i++ {
		agents = append(agents, Agent{ID: fmt.Sprintf("UAV-%d", i), Coordinate: at(float64(i))})
	}
	tasks := []Task{{ID: "TASK-1", Coordinate: at(0), Slots: 1}, {ID: "TASK-2", Coordinate: at(0), Slots: 3}}
	a := Random(agents, tasks, rand.New(rand.NewSource(3)), 0)
	b := Random(agents, tasks, rand.New(rand.NewSource(3)), 0)
	require.Equal(t, a, b)
	c := a.Counts()
	assert.LessOrEqual(t, c["TASK-1"], 1)
	assert.LessOrEqual(t, c["TASK-2"], 3)
	assert.Len(t, a, 4)
}

func TestRandom_IgnoreAll(t *testing.T) {
	agents := []Agent{{ID: "UAV-1", Coordinate: at(0)}}
	tasks := []Task{{ID: "TASK-1", Coordinate: at(0), Slots: 1}}
	assert.Empty(t, Random(agents, tasks, rand.New(rand.NewSource(1)), 1))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("random")
	require.NoError(t, err)
	assert.Equal(t, MethodRandom, m)
	m, err = ParseMethod(" MaxSum ")
	require.NoError(t, err)
	assert.Equal(t, MethodMaxSum, m)
	m, err = ParseMethod("hungarian")
	require.Error(t, err)
	assert.Equal(t, MethodMaxSum, m)
}

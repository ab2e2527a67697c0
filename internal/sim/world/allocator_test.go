package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim.ai/internal/sim/model"
)

// loadEditFixture: UAV-1 near TASK-1, UAV-2 near TASK-2, TASK-3 far away with capacity 2.
func loadEditFixture(t *testing.T) *Simulator {
	t.Helper()
	sim := New(Config{}, nil, WithClock(newFakeClock().Now))
	require.NoError(t, sim.LoadScenario(Scenario{
		Agents: []AgentSpec{
			{Coordinate: origin, Simulated: true},
			{Coordinate: origin.Offset(500, 0), Simulated: true},
			{Coordinate: origin.Offset(1000, 0), Simulated: true},
		},
		Tasks: []TaskSpec{
			{Type: model.TaskGeneric, Coordinate: origin.Offset(0, 300)},
			{Type: model.TaskGeneric, Coordinate: origin.Offset(500, 300)},
			{Type: model.TaskGeneric, Coordinate: origin.Offset(3000, 3000), Capacity: 2},
		},
	}))
	return sim
}

func TestChangeView_EditCopiesAllocationAndStopsAgents(t *testing.T) {
	sim := loadEditFixture(t)
	confirmed := sim.State().Allocation()
	require.Equal(t, "TASK-1", confirmed["UAV-1"])
	require.Equal(t, "TASK-2", confirmed["UAV-2"])

	require.NoError(t, sim.ChangeView(ModeEdit))
	snap := sim.State().Snapshot()
	assert.Equal(t, int(ModeEdit), snap.EditMode)
	assert.Equal(t, map[string]string(confirmed), snap.TempAllocation)
	for _, a := range snap.Agents {
		assert.True(t, a.Stopped, a.ID)
		assert.Equal(t, a.Route, a.TempRoute, a.ID)
	}

	before := snap.Agents[0].Coordinate
	require.NoError(t, sim.Tick())
	assert.Equal(t, before, sim.State().Snapshot().Agents[0].Coordinate)

	require.NoError(t, sim.ChangeView(ModeImages))
	for _, a := range sim.State().Snapshot().Agents {
		assert.False(t, a.Stopped, a.ID)
	}
	require.Error(t, sim.ChangeView(EditMode(9)))
}

func TestSetTempAllocation_Validation(t *testing.T) {
	sim := loadEditFixture(t)
	al := sim.Allocator()
	require.NoError(t, sim.ChangeView(ModeEdit))

	err := al.SetTempAllocation(map[string]string{"UAV-9": "TASK-1"})
	require.ErrorIs(t, err, model.ErrNotFound)
	err = al.SetTempAllocation(map[string]string{"UAV-1": "TASK-9"})
	require.ErrorIs(t, err, model.ErrNotFound)
	err = al.SetTempAllocation(map[string]string{"UAV-1": "TASK-1", "UAV-2": "TASK-1"})
	require.ErrorIs(t, err, model.ErrCapacity)

	require.NoError(t, al.SetTempAllocation(map[string]string{"UAV-1": "TASK-3", "UAV-2": "TASK-3"}))
	assert.Equal(t, map[string]string{"UAV-1": "TASK-3", "UAV-2": "TASK-3"}, map[string]string(sim.State().TempAllocation()))
	// The confirmed allocation is untouched until confirmation.
	assert.Equal(t, "TASK-1", sim.State().Allocation()["UAV-1"])
}

func TestUndoRedo(t *testing.T) {
	sim := loadEditFixture(t)
	al := sim.Allocator()
	require.NoError(t, sim.ChangeView(ModeEdit))
	initial := sim.State().TempAllocation()
	assert.False(t, sim.State().Snapshot().AllocationUndoAvailable)

	require.NoError(t, al.PutInTempAllocation("UAV-1", "TASK-3"))
	require.NoError(t, al.RemoveFromTempAllocation("UAV-2"))
	after := sim.State().TempAllocation()
	assert.NotContains(t, after, "UAV-2")
	assert.Equal(t, "TASK-3", after["UAV-1"])
	assert.Equal(t, "TASK-3", after["UAV-3"])
	snap := sim.State().Snapshot()
	assert.True(t, snap.AllocationUndoAvailable)
	assert.False(t, snap.AllocationRedoAvailable)

	require.True(t, al.Undo())
	require.True(t, al.Undo())
	assert.Equal(t, initial, sim.State().TempAllocation())
	assert.False(t, al.Undo())
	assert.True(t, sim.State().Snapshot().AllocationRedoAvailable)

	require.True(t, al.Redo())
	require.True(t, al.Redo())
	assert.Equal(t, after, sim.State().TempAllocation())
	assert.False(t, al.Redo())

	al.ClearAllocationHistory()
	snap = sim.State().Snapshot()
	assert.False(t, snap.AllocationUndoAvailable)
	assert.False(t, snap.AllocationRedoAvailable)
}

func TestConfirmAllocation_AppliesTempAndResumes(t *testing.T) {
	sim := loadEditFixture(t)
	al := sim.Allocator()
	require.NoError(t, sim.ChangeView(ModeEdit))
	require.NoError(t, al.SetTempAllocation(map[string]string{"UAV-1": "TASK-2", "UAV-2": "TASK-1", "UAV-3": "TASK-3"}))
	require.NoError(t, sim.ConfirmAllocation())

	snap := sim.State().Snapshot()
	assert.Equal(t, map[string]string{"UAV-1": "TASK-2", "UAV-2": "TASK-1", "UAV-3": "TASK-3"}, snap.Allocation)
	assert.Empty(t, snap.TempAllocation)
	assert.Equal(t, int(ModeMonitor), snap.EditMode)
	for _, a := range snap.Agents {
		assert.False(t, a.Stopped)
		assert.True(t, a.Working)
		assert.Empty(t, a.TempRoute)
	}
	for _, task := range snap.Tasks {
		assert.LessOrEqual(t, len(task.Agents), task.Capacity)
	}
	require.NoError(t, sim.ConfirmAllocation(), "no-op outside edit mode")
}

func TestMonitorDiscardsTemp(t *testing.T) {
	sim := loadEditFixture(t)
	require.NoError(t, sim.ChangeView(ModeEdit))
	require.NoError(t, sim.Allocator().RemoveFromTempAllocation("UAV-3"))
	require.NoError(t, sim.ChangeView(ModeMonitor))
	snap := sim.State().Snapshot()
	assert.Empty(t, snap.TempAllocation)
	assert.Equal(t, "TASK-3", snap.Allocation["UAV-3"])
}

func TestDynamicReassign_EditModeWritesTemp(t *testing.T) {
	sim := loadEditFixture(t)
	al := sim.Allocator()
	confirmed := sim.State().Allocation()
	require.NoError(t, sim.ChangeView(ModeEdit))
	require.NoError(t, al.RemoveFromTempAllocation("UAV-2"))

	n := al.DynamicReassign()
	assert.Equal(t, 1, n)
	temp := sim.State().TempAllocation()
	assert.Equal(t, "TASK-2", temp["UAV-2"])
	assert.Equal(t, confirmed, sim.State().Allocation())
}

func TestDynamicReassign_OnlyIdleAgentsAndOpenTasks(t *testing.T) {
	sim := loadEditFixture(t)
	before := sim.State().Allocation()
	require.Len(t, before, 3)
	assert.Equal(t, "TASK-3", before["UAV-3"])

	assert.Zero(t, sim.Allocator().DynamicReassign())
	assert.Equal(t, before, sim.State().Allocation())

	_, err := sim.AddTask("", model.TaskGeneric, origin.Offset(1000, 10), 1)
	require.NoError(t, err)
	assert.Equal(t, before, sim.State().Allocation(), "busy agents keep their tasks")
}

func TestAutoAllocate_EditModeProposes(t *testing.T) {
	sim := loadEditFixture(t)
	al := sim.Allocator()
	require.NoError(t, sim.ChangeView(ModeEdit))
	require.NoError(t, al.SetTempAllocation(map[string]string{}))
	res, err := al.AutoAllocate()
	require.NoError(t, err)
	assert.Equal(t, res, sim.State().TempAllocation())
	assert.Len(t, res, 3)
}

func TestRemoveTask_ReleasesAndReassigns(t *testing.T) {
	sim := loadEditFixture(t)
	ok, err := sim.RemoveTask("TASK-1")
	require.NoError(t, err)
	assert.True(t, ok)
	got := sim.State().Allocation()
	assert.Equal(t, "TASK-3", got["UAV-1"], "UAV-1 takes the free slot on TASK-3")

	_, err = sim.RemoveTask("TASK-1")
	require.ErrorIs(t, err, model.ErrNotFound)

	ok, err = sim.RemoveAgent("UAV-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, sim.State().Allocation(), "UAV-2")
}

func TestTempAllocation_RejectsLostAgents(t *testing.T) {
	clock := newFakeClock()
	sim := New(Config{HeartbeatTimeout: 20 * time.Second}, nil, WithClock(clock.Now))
	require.NoError(t, sim.LoadScenario(Scenario{
		Agents: []AgentSpec{
			{Coordinate: origin.Offset(0, 900), Simulated: false},
			{Coordinate: origin, Simulated: true},
		},
		Tasks: []TaskSpec{{Type: model.TaskGeneric, Coordinate: origin.Offset(0, 1000)}},
	}))
	clock.Advance(21 * time.Second)
	require.NoError(t, sim.Tick())
	require.Equal(t, map[string]string{"UAV-2": "TASK-1"}, map[string]string(sim.State().Allocation()))

	al := sim.Allocator()
	require.NoError(t, sim.ChangeView(ModeEdit))
	require.Error(t, al.SetTempAllocation(map[string]string{"UAV-1": "TASK-1"}))
	require.Error(t, al.PutInTempAllocation("UAV-1", "TASK-1"))
	assert.Equal(t, map[string]string{"UAV-2": "TASK-1"}, map[string]string(sim.State().TempAllocation()))

	require.NoError(t, sim.ConfirmAllocation())
	assert.Equal(t, map[string]string{"UAV-2": "TASK-1"}, map[string]string(sim.State().Allocation()))
}

func TestDynamicReassign_EditModeKeepsUndoHistory(t *testing.T) {
	sim := New(Config{}, nil, WithClock(newFakeClock().Now))
	require.NoError(t, sim.LoadScenario(Scenario{Agents: []AgentSpec{{Coordinate: origin, Simulated: true}}}))
	require.NoError(t, sim.ChangeView(ModeEdit))

	_, err := sim.AddTask("", model.TaskGeneric, origin.Offset(0, 200), 1)
	require.NoError(t, err)
	require.Equal(t, 1, sim.Allocator().DynamicReassign())
	snap := sim.State().Snapshot()
	assert.Equal(t, map[string]string{"UAV-1": "TASK-1"}, snap.TempAllocation)
	assert.False(t, snap.AllocationUndoAvailable)

	assert.False(t, sim.Allocator().Undo())
	assert.Equal(t, map[string]string{"UAV-1": "TASK-1"}, map[string]string(sim.State().TempAllocation()))
}

func TestConfirmAllocation_FailsWithoutPartialChanges(t *testing.T) {
	sim := loadEditFixture(t)
	al := sim.Allocator()
	before := sim.State().Allocation()
	require.NoError(t, sim.ChangeView(ModeEdit))
	require.NoError(t, al.SetTempAllocation(map[string]string{"UAV-1": "TASK-2", "UAV-2": "TASK-1", "UAV-3": "TASK-3"}))

	// A holder the allocation map does not know about leaves TASK-1 no room for UAV-2.
	st := sim.State()
	st.mu.Lock()
	task, ok, err := st.tasks.get("TASK-1")
	require.True(t, ok)
	require.NoError(t, err)
	task.Agents = append(task.Agents, "UAV-9")
	st.mu.Unlock()

	err = sim.ConfirmAllocation()
	require.ErrorIs(t, err, model.ErrCapacity)
	assert.Equal(t, before, st.Allocation())
	assert.Equal(t, ModeEdit, st.EditMode())
	assert.Equal(t, "TASK-2", st.TempAllocation()["UAV-1"])
}

package imaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
	"swarmsim.ai/internal/sim/tuning"
	"swarmsim.ai/internal/sim/world"
)

type stored struct {
	id, file string
	deep     bool
}

type recorder struct{ got []stored }

func (r *recorder) RecordImage(id, file string, deep bool) {
	r.got = append(r.got, stored{id, file, deep})
}

func TestScheduler_HonoursDelays(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(rec, 1, 5, nil)

	s.Capture(model.CaptureRequest{TaskID: "TASK-1", Time: 10})
	s.Capture(model.CaptureRequest{TaskID: "TASK-2", Time: 10, Deep: true})
	assert.Equal(t, 2, s.Pending())

	s.Check(10.8)
	assert.Empty(t, rec.got)

	s.Check(11)
	require.Len(t, rec.got, 1)
	assert.Equal(t, stored{"TASK-1", "TASK-1-low.png", false}, rec.got[0])

	s.Check(15)
	require.Len(t, rec.got, 2)
	assert.Equal(t, stored{"TASK-2", "TASK-2-high.png", true}, rec.got[1])
	assert.Zero(t, s.Pending())
}

func TestScheduler_ClearsOnReset(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(rec, 0, 0, nil)
	s.Capture(model.CaptureRequest{TaskID: "TASK-1"})

	require.NoError(t, s.WriteEvent(world.Event{Code: world.EventTaskComplete}))
	assert.Equal(t, 1, s.Pending())
	require.NoError(t, s.WriteEvent(world.Event{Code: world.EventReset}))
	assert.Zero(t, s.Pending())

	s.Check(100)
	assert.Empty(t, rec.got)
}

func TestScheduler_StoresIntoState(t *testing.T) {
	sim := world.New(tuning.Defaults().WorldConfig(), nil)
	s := NewScheduler(sim.State(), 0, 0, nil)

	s.Capture(model.CaptureRequest{TaskID: "TASK-3", Coordinate: geo.New(50.9, -1.4), Deep: true})
	s.Check(0)

	snap := sim.State().Snapshot()
	assert.Equal(t, "TASK-3-high.png", snap.StoredImages["TASK-3"])
	assert.Equal(t, []string{"TASK-3"}, snap.DeepScannedIDs)
}

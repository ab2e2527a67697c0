package hazard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
)

func TestAdd_CoalescesWithinCell(t *testing.T) {
	c := NewCollection(map[model.HazardType]float64{model.HazardFire: 0.1})
	first := geo.New(50.93791, -1.39724)
	second := geo.New(50.93794, -1.39716)

	require.NoError(t, c.Add(model.HazardFire, first))
	c.DecayAll()
	h, ok := c.Get(model.HazardFire, first)
	require.True(t, ok)
	assert.InDelta(t, 0.9, h.Weight, 1e-9)

	require.NoError(t, c.Add(model.HazardFire, second))
	assert.Equal(t, 1, c.Len(model.HazardFire))
	h, ok = c.Get(model.HazardFire, first)
	require.True(t, ok)
	assert.Equal(t, 1.0, h.Weight)
	assert.Equal(t, second, h.Coordinate, "exact position of the latest sample is kept")
}

func TestAdd_UnregisteredType(t *testing.T) {
	c := NewCollection(nil)
	err := c.Add(model.HazardType(7), geo.New(50, -1))
	require.Error(t, err)
	assert.Equal(t, 0, c.Len(model.HazardType(7)))
}

func TestDecayAll_RemovesAfterCeilInverseRate(t *testing.T) {
	for _, rate := range []float64{0.5, 0.3, 0.25, 0.2, 0.1, 0.07, 0.001} {
		c := NewCollection(map[model.HazardType]float64{model.HazardNone: rate})
		at := geo.New(50, -1)
		require.NoError(t, c.Add(model.HazardNone, at))
		n := int(math.Ceil(1 / rate))
		for i := 0; i < n-1; i++ {
			c.DecayAll()
		}
		_, ok := c.Get(model.HazardNone, at)
		require.True(t, ok, "rate %v", rate)
		c.DecayAll()
		_, ok = c.Get(model.HazardNone, at)
		assert.False(t, ok, "rate %v", rate)
	}
}

func TestDecayAll_ZeroRateIsPermanent(t *testing.T) {
	c := NewCollection(nil)
	at := geo.New(50, -1)
	require.NoError(t, c.Add(model.HazardFire, at))
	for i := 0; i < 5000; i++ {
		c.DecayAll()
	}
	h, ok := c.Get(model.HazardFire, at)
	require.True(t, ok)
	assert.Equal(t, 1.0, h.Weight)
}

func TestClear(t *testing.T) {
	c := NewCollection(nil)
	require.NoError(t, c.Add(model.HazardDebris, geo.New(50, -1)))
	require.NoError(t, c.Add(model.HazardNone, geo.New(51, -1)))
	c.Clear()
	for typ, hits := range c.Snapshot() {
		assert.Empty(t, hits, "type %d", typ)
	}
	require.NoError(t, c.Add(model.HazardDebris, geo.New(50, -1)))
}

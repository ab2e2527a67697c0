package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"swarmsim.ai/internal/sim/model"
)

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.applyDefaults()
	assert.Equal(t, 0.2, c.TickSeconds)
	assert.Equal(t, 20*time.Second, c.HeartbeatTimeout)
	assert.Equal(t, 3.0, c.ApproachRadius)
	assert.Equal(t, 200*time.Millisecond, c.Period())
	assert.Equal(t, 0.001, c.DecayRates[model.HazardNone])
	assert.Zero(t, c.DecayRates[model.HazardFire])

	c = Config{GameSpeed: 4}
	c.applyDefaults()
	assert.Equal(t, 50*time.Millisecond, c.Period())
}

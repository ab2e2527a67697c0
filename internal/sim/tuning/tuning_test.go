package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim.ai/internal/sim/model"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_RepoFile(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), tu)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	tu, err := Load(writeFile(t, "game_speed: 4\nagent:\n  speed_mps: 7\nhazard_decay:\n  \"0\": 0.05\n"))
	require.NoError(t, err)

	cfg := tu.WorldConfig()
	assert.InDelta(t, 4, cfg.GameSpeed, 1e-9)
	assert.InDelta(t, 7, cfg.AgentSpeed, 1e-9)
	assert.InDelta(t, 50, cfg.FlockRadius, 1e-9)
	assert.Equal(t, 20*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, map[model.HazardType]float64{-1: 0.001, 0: 0.05, 1: 0}, cfg.DecayRates)
	assert.Equal(t, 50*time.Millisecond, cfg.Period())
}

func TestLoad_RejectsUnknownHazardType(t *testing.T) {
	_, err := Load(writeFile(t, "hazard_decay:\n  \"fire\": 0.1\n"))
	require.Error(t, err)
	_, err = Load(writeFile(t, "hazard_decay:\n  \"5\": 0.1\n"))
	require.Error(t, err)
	_, err = Load(writeFile(t, "hazard_decay:\n  \"0\": -1\n"))
	require.Error(t, err)
}

func TestPushInterval(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, Defaults().PushInterval())
	assert.Equal(t, 100*time.Millisecond, Tuning{StatePushHz: 10}.PushInterval())
	assert.Equal(t, 200*time.Millisecond, Tuning{}.PushInterval())
}

package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
	"swarmsim.ai/internal/sim/world"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	require.NoError(t, sc.Err())
	return out
}

func TestEventLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	at := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	l.w.now = func() time.Time { return at }

	require.NoError(t, l.WriteEvent(world.Event{At: at, Code: world.EventTaskComplete, TaskID: "TASK-1", SimTime: 12.4}))
	require.NoError(t, l.WriteEvent(world.Event{At: at, Code: world.EventReassign, Data: map[string]any{"assigned": 2}}))
	require.NoError(t, l.Close())

	lines := readLines(t, filepath.Join(dir, "events", "events-2026-03-01-10.jsonl.zst"))
	require.Len(t, lines, 2)
	var ev world.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, world.EventTaskComplete, ev.Code)
	assert.Equal(t, "TASK-1", ev.TaskID)
	assert.InDelta(t, 12.4, ev.SimTime, 1e-9)
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "captures")
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }

	require.NoError(t, w.Write(model.CaptureRequest{TaskID: "TASK-1", Coordinate: geo.New(1, 2)}))
	at = at.Add(2 * time.Minute)
	require.NoError(t, w.Write(model.CaptureRequest{TaskID: "TASK-2", Deep: true}))
	require.NoError(t, w.Close())

	assert.Len(t, readLines(t, filepath.Join(dir, "captures-2026-03-01-10.jsonl.zst")), 1)
	assert.Len(t, readLines(t, filepath.Join(dir, "captures-2026-03-01-11.jsonl.zst")), 1)
}

func TestJSONLZstdWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		l := NewCaptureLogger(dir)
		l.w.now = func() time.Time { return at }
		require.NoError(t, l.WriteCapture(model.CaptureRequest{TaskID: "TASK-1"}))
		require.NoError(t, l.Close())
	}
	assert.Len(t, readLines(t, filepath.Join(dir, "captures", "captures-2026-03-01-10.jsonl.zst")), 2)
}

func TestReadEvents_AcrossRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return at }

	require.NoError(t, l.WriteEvent(world.Event{Code: world.EventScenarioInit, RunID: "r1"}))
	at = at.Add(2 * time.Minute)
	require.NoError(t, l.WriteEvent(world.Event{Code: world.EventTaskComplete, RunID: "r1", TaskID: "TASK-1"}))
	require.NoError(t, l.Close())

	var codes []string
	require.NoError(t, ReadEvents(dir, func(ev world.Event) error {
		codes = append(codes, ev.Code)
		return nil
	}))
	assert.Equal(t, []string{world.EventScenarioInit, world.EventTaskComplete}, codes)

	_, err := ListFiles(filepath.Join(dir, "missing"), "events")
	assert.Error(t, err)
}

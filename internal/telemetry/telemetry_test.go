package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestSimMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewSimMetrics(mp.Meter(scope))
	require.NoError(t, err)

	m.ObserveTick(3 * time.Millisecond)
	m.TaskCompleted("WAYPOINT")
	m.TaskCompleted("WAYPOINT")
	m.Reassigned(4)
	m.AgentLost()

	got := collect(t, reader)

	completed, ok := got["swarm.tasks.completed"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, completed.DataPoints, 1)
	assert.Equal(t, int64(2), completed.DataPoints[0].Value)
	v, _ := completed.DataPoints[0].Attributes.Value("task_type")
	assert.Equal(t, "WAYPOINT", v.AsString())

	lost, ok := got["swarm.agents.lost"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), lost.DataPoints[0].Value)

	tick, ok := got["swarm.tick.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(1), tick.DataPoints[0].Count)
	assert.InDelta(t, 3.0, tick.DataPoints[0].Sum, 1e-9)

	assigned, ok := got["swarm.allocation.assigned"].(metricdata.Histogram[int64])
	require.True(t, ok)
	assert.Equal(t, int64(4), assigned.DataPoints[0].Sum)
}

func TestGauge_ObservesCallback(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	n := int64(7)
	require.NoError(t, Gauge(mp.Meter(scope), "swarm.ws.sessions", "open sessions", func() int64 { return n }))

	g, ok := collect(t, reader)["swarm.ws.sessions"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, g.DataPoints, 1)
	assert.Equal(t, int64(7), g.DataPoints[0].Value)
}

func TestInit_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "swarmsim", "test", true)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Meter())
}

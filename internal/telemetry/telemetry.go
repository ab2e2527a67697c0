// Package telemetry initializes the OpenTelemetry metrics pipeline and the
// instruments the simulator reports through.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const scope = "swarmsim.ai/sim"

type Shutdown func(ctx context.Context) error

// Init configures the global meter provider. An empty endpoint leaves the
// global no-op provider in place.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

func Meter() metric.Meter {
	return otel.GetMeterProvider().Meter(scope)
}

// SimMetrics records simulator measurements on OpenTelemetry instruments.
type SimMetrics struct {
	tick       metric.Float64Histogram
	completed  metric.Int64Counter
	reassigned metric.Int64Counter
	assigned   metric.Int64Histogram
	lost       metric.Int64Counter
}

func NewSimMetrics(m metric.Meter) (*SimMetrics, error) {
	var (
		s   SimMetrics
		err error
	)
	if s.tick, err = m.Float64Histogram("swarm.tick.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Wall time spent advancing one simulation tick")); err != nil {
		return nil, err
	}
	if s.completed, err = m.Int64Counter("swarm.tasks.completed",
		metric.WithDescription("Tasks completed, by task type")); err != nil {
		return nil, err
	}
	if s.reassigned, err = m.Int64Counter("swarm.allocation.reassignments",
		metric.WithDescription("Dynamic reassignment rounds")); err != nil {
		return nil, err
	}
	if s.assigned, err = m.Int64Histogram("swarm.allocation.assigned",
		metric.WithDescription("Agents assigned per reassignment round")); err != nil {
		return nil, err
	}
	if s.lost, err = m.Int64Counter("swarm.agents.lost",
		metric.WithDescription("Agents that timed out or dropped out")); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *SimMetrics) ObserveTick(d time.Duration) {
	s.tick.Record(context.Background(), float64(d.Microseconds())/1000)
}

func (s *SimMetrics) TaskCompleted(taskType string) {
	s.completed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("task_type", taskType)))
}

func (s *SimMetrics) Reassigned(assigned int) {
	ctx := context.Background()
	s.reassigned.Add(ctx, 1)
	s.assigned.Record(ctx, int64(assigned))
}

func (s *SimMetrics) AgentLost() {
	s.lost.Add(context.Background(), 1)
}

// Gauge registers an observable gauge read from fn at each collection.
func Gauge(m metric.Meter, name, desc string, fn func() int64) error {
	_, err := m.Int64ObservableGauge(name,
		metric.WithDescription(desc),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(fn())
			return nil
		}))
	return err
}

// Package config loads process configuration from environment variables.
// Command-line flags in cmd/server override these values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server.
	Addr            string
	ShutdownTimeout time.Duration

	// Paths.
	DataDir     string
	TuningPath  string
	ScenarioDir string

	// Startup: a scenario file from ScenarioDir, or sandbox when empty and Sandbox is set.
	Scenario string
	Sandbox  bool

	// Persistence sinks; none of them is read back by the simulator.
	DisableDB        bool
	DisableEventLog  bool
	DisableSnapshots bool
	// IndexQueue bounds pending index writes; writes beyond it are dropped.
	IndexQueue int

	// ObserverLoopbackOnly restricts the /v1/observe feed to local clients.
	ObserverLoopbackOnly bool

	// OTEL settings. Metrics are a no-op when the endpoint is empty.
	OTELEndpoint string
	ServiceName  string

	LogLevel string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		Addr:         envStr("SWARM_ADDR", ":8080"),
		DataDir:      envStr("SWARM_DATA_DIR", "./data"),
		TuningPath:   envStr("SWARM_TUNING", "./configs/tuning.yaml"),
		ScenarioDir:  envStr("SWARM_SCENARIO_DIR", "./scenarios"),
		Scenario:     envStr("SWARM_SCENARIO", ""),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "swarmsim"),
		LogLevel:     envStr("SWARM_LOG_LEVEL", "info"),
	}
	var err error
	if cfg.ShutdownTimeout, err = envDuration("SWARM_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.Sandbox, err = envBool("SWARM_SANDBOX", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.DisableDB, err = envBool("SWARM_DISABLE_DB", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.DisableEventLog, err = envBool("SWARM_DISABLE_EVENT_LOG", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.DisableSnapshots, err = envBool("SWARM_DISABLE_SNAPSHOTS", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.IndexQueue, err = envInt("SWARM_INDEX_QUEUE", 4096); err != nil {
		errs = append(errs, err)
	}
	if cfg.ObserverLoopbackOnly, err = envBool("SWARM_OBSERVER_LOOPBACK_ONLY", false); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("config: SWARM_ADDR is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: SWARM_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.IndexQueue <= 0 {
		return fmt.Errorf("config: SWARM_INDEX_QUEUE must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: SWARM_LOG_LEVEL: %w", err)
	}
	return nil
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

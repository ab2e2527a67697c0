package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"swarmsim.ai/internal/config"
	"swarmsim.ai/internal/persistence/indexdb"
	persistlog "swarmsim.ai/internal/persistence/log"
	"swarmsim.ai/internal/persistence/snapshot"
	"swarmsim.ai/internal/sim/imaging"
	"swarmsim.ai/internal/sim/model"
	"swarmsim.ai/internal/sim/scenario"
	"swarmsim.ai/internal/sim/tuning"
	"swarmsim.ai/internal/sim/world"
	"swarmsim.ai/internal/telemetry"
	"swarmsim.ai/internal/transport/observer"
	"swarmsim.ai/internal/transport/ws"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	flag.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml")
	flag.StringVar(&cfg.ScenarioDir, "scenarios", cfg.ScenarioDir, "scenario directory")
	flag.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "scenario file to load and start (relative to -scenarios)")
	flag.BoolVar(&cfg.Sandbox, "sandbox", cfg.Sandbox, "start an empty sandbox when no scenario is given")
	flag.BoolVar(&cfg.DisableDB, "disable_db", cfg.DisableDB, "disable the sqlite run index")
	flag.BoolVar(&cfg.DisableEventLog, "disable_event_log", cfg.DisableEventLog, "disable jsonl event and capture logs")
	flag.BoolVar(&cfg.DisableSnapshots, "disable_snapshots", cfg.DisableSnapshots, "disable end-of-scenario snapshot archives")
	flag.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "debug|info|warn|error")
	flag.Parse()

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log level: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("swarmsim starting", "version", version, "addr", cfg.Addr)

	tune, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Warn("tuning not found; using defaults", "path", cfg.TuningPath)
		tune = tuning.Defaults()
	}

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	meter := telemetry.Meter()
	metrics, err := telemetry.NewSimMetrics(meter)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	sim := world.New(tune.WorldConfig(), logger, world.WithMetrics(metrics))
	hub := ws.NewHub(sim, tune.PushInterval(), logger)
	library := scenario.NewLibrary(cfg.ScenarioDir, logger)
	sim.SetPassthroughLoader(library.Header)

	// Read-model index; the simulator never reads it back.
	var idx *indexdb.SQLiteIndex
	if !cfg.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "swarmsim.sqlite"), cfg.IndexQueue)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
	}

	images := imaging.NewScheduler(sim.State(), tune.Images.ShallowDelay, tune.Images.DeepDelay, logger)
	sim.SetImageCheck(images.Check)

	sinks := world.EventLoggers{hub, images}
	var captureLog *persistlog.CaptureLogger
	if !cfg.DisableEventLog {
		eventLog := persistlog.NewEventLogger(cfg.DataDir)
		defer eventLog.Close()
		captureLog = persistlog.NewCaptureLogger(cfg.DataDir)
		defer captureLog.Close()
		sinks = append(sinks, eventLog)
	}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	sim.SetEventLogger(sinks)

	sim.SetCaptureHandler(func(req model.CaptureRequest) {
		logger.Info("image capture requested", "task_id", req.TaskID, "deep", req.Deep, "sim_time", req.Time)
		images.Capture(req)
		if captureLog != nil {
			if err := captureLog.WriteCapture(req); err != nil {
				logger.Warn("capture log write failed", "task_id", req.TaskID, "err", err)
			}
		}
		idx.RecordCapture(sim.RunID(), req)
	})

	var archiver *snapshot.Archiver
	if !cfg.DisableSnapshots {
		archiver = snapshot.NewArchiver(filepath.Join(cfg.DataDir, "snapshots"))
		sim.SetScenarioEndSink(func(snap world.Snapshot) {
			archiveSnapshot(logger, archiver, idx, "end", sim.RunID(), snap)
		})
	}

	for _, g := range []struct {
		name, desc string
		fn         func() int64
	}{
		{"swarm.ws.sessions", "Connected push sessions", func() int64 { return int64(hub.Sessions()) }},
		{"swarm.ws.dropped", "Pushes dropped for slow sessions", func() int64 { return int64(hub.Dropped()) }},
		{"swarm.images.pending", "Captures waiting for their image", func() int64 { return int64(images.Pending()) }},
		{"swarm.index.queue_depth", "Pending run index writes", func() int64 { return int64(idx.Stats().QueueDepth) }},
	} {
		if err := telemetry.Gauge(meter, g.name, g.desc, g.fn); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	switch {
	case cfg.Scenario != "":
		sc, err := library.Load(cfg.Scenario)
		if err != nil {
			return fmt.Errorf("load scenario %s: %w", cfg.Scenario, err)
		}
		if err := sim.LoadScenario(sc); err != nil {
			return fmt.Errorf("load scenario %s: %w", cfg.Scenario, err)
		}
		sim.StartSimulation()
	case cfg.Sandbox:
		sim.StartSandbox()
	default:
		logger.Info("waiting for a scenario", "scenario_dir", library.Dir())
	}

	admin := &adminAPI{sim: sim, library: library, archiver: archiver, idx: idx, log: logger}
	obs := observer.NewServer(sim, hub, logger)
	obs.LoopbackOnly = cfg.ObserverLoopbackOnly

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/state", obs.StateHandler())
	mux.HandleFunc("/v1/ws", ws.NewServer(sim, hub, logger).Handler())
	mux.HandleFunc("/v1/observe", obs.WSHandler())
	admin.register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sim.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	err = g.Wait()
	logger.Info("swarmsim stopped", "index_stats", idx.Stats())
	return err
}

func archiveSnapshot(logger *slog.Logger, archiver *snapshot.Archiver, idx *indexdb.SQLiteIndex, reason, runID string, snap world.Snapshot) (string, error) {
	path, err := archiver.Save(reason, runID, snap)
	if err != nil {
		logger.Warn("snapshot archive failed", "reason", reason, "game_id", snap.GameID, "err", err)
		return "", err
	}
	logger.Info("snapshot archived", "reason", reason, "path", path, "sim_time", snap.Time)
	idx.RecordSnapshot(path, snapshot.Archive{
		Header: snapshot.Header{Version: snapshot.Version, RunID: runID, GameID: snap.GameID, SimTime: snap.Time, Reason: reason},
		State:  snap,
	})
	return path, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

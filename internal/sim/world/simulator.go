package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
)

// PassthroughFunc reads the header of the scenario that follows the current one.
type PassthroughFunc func(file string) (gameID, description string, err error)

// Simulator drives State on a fixed cadence. Command handlers call its methods
// from any goroutine; the tick goroutine shares the same state lock.
type Simulator struct {
	cfg   Config
	log   *slog.Logger
	state *State
	alloc *Allocator
	rng   *rand.Rand
	now   func() time.Time

	metrics     Metrics
	events      EventLogger
	capture     func(model.CaptureRequest)
	checkImages func(simTime float64)
	onEnd       func(Snapshot)
	passthrough PassthroughFunc

	runID atomic.Value // string

	running atomic.Bool
	wake    chan struct{}
	loopMu  sync.Mutex
	done    chan struct{}
}

type Option func(*Simulator)

// WithClock replaces the wall clock used for heartbeats, wind and time limits.
func WithClock(now func() time.Time) Option { return func(s *Simulator) { s.now = now } }

func WithMetrics(m Metrics) Option { return func(s *Simulator) { s.metrics = m } }

func New(cfg Config, log *slog.Logger, opts ...Option) *Simulator {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	s := &Simulator{
		cfg:     cfg,
		log:     log.With("component", "simulator"),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		now:     time.Now,
		metrics: noopMetrics{},
		wake:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	s.state = NewState(cfg.DecayRates, s.now)
	s.alloc = NewAllocator(s.state, s.rng, cfg.ApproachRadius, s.metrics)
	s.runID.Store("")
	return s
}

func (s *Simulator) SetEventLogger(l EventLogger)                 { s.events = l }
func (s *Simulator) SetCaptureHandler(f func(model.CaptureRequest)) { s.capture = f }
func (s *Simulator) SetImageCheck(f func(simTime float64))         { s.checkImages = f }
func (s *Simulator) SetScenarioEndSink(f func(Snapshot))           { s.onEnd = f }
func (s *Simulator) SetPassthroughLoader(f PassthroughFunc)        { s.passthrough = f }

func (s *Simulator) State() *State         { return s.state }
func (s *Simulator) Allocator() *Allocator { return s.alloc }
func (s *Simulator) Config() Config        { return s.cfg }
func (s *Simulator) RunID() string         { return s.runID.Load().(string) }
func (s *Simulator) Running() bool         { return s.running.Load() }

// Tick runs one full cycle: advance time, end the scenario if due, apply wind,
// step agents and tasks, then age hazard hits. The whole cycle holds the state lock.
func (s *Simulator) Tick() error {
	start := time.Now()
	var captures []model.CaptureRequest

	st := s.state
	st.mu.Lock()
	simTime, ended, err := s.tickLocked(&captures)
	var endSnap Snapshot
	if ended {
		endSnap = st.snapshotLocked()
		s.endScenarioLocked()
	}
	st.mu.Unlock()

	s.metrics.ObserveTick(time.Since(start))
	s.flush()
	if ended {
		s.running.Store(false)
		if s.onEnd != nil {
			s.onEnd(endSnap)
		}
		return err
	}
	for _, c := range captures {
		if s.capture != nil {
			s.capture(c)
		}
	}
	if err == nil && s.checkImages != nil {
		s.checkImages(simTime)
	}
	return err
}

func (s *Simulator) tickLocked(captures *[]model.CaptureRequest) (simTime float64, ended bool, err error) {
	st := s.state
	now := s.now()

	st.time += s.cfg.TickSeconds
	if !st.scenarioEnd.IsZero() && !now.Before(st.scenarioEnd) {
		return st.time, true, nil
	}

	for _, ev := range st.applyWindLocked(now) {
		st.recordLocked(EventWindChange, Event{Data: map[string]any{"speed": ev.Speed, "heading": ev.Heading}})
	}

	s.stepAgentsLocked(now)
	s.senseLocked()

	if err := s.stepTasksLocked(captures); err != nil {
		return st.time, false, err
	}

	st.hits.DecayAll()
	return st.time, false, nil
}

func (s *Simulator) stepAgentsLocked(now time.Time) {
	st := s.state
	env := model.AgentEnv{
		Now:              now,
		Dt:               s.cfg.TickSeconds,
		HeartbeatTimeout: s.cfg.HeartbeatTimeout,
		Flocking:         st.flocking,
		FlockRadius:      s.cfg.FlockRadius,
		FlockWeight:      s.cfg.FlockWeight,
		Dropout:          st.avgDropout,
		BatteryDrain:     s.cfg.BatteryDrain,
		Rand:             s.rng,
	}
	if st.flocking {
		env.Neighbours = model.Neighbours(st.agents.items)
	}
	lostHeld := false
	for _, a := range st.agents.items {
		if a.IsTimedOut() {
			continue
		}
		if !a.Step(env) {
			continue
		}
		st.recordLocked(EventLostConnection, Event{AgentID: a.ID()})
		s.metrics.AgentLost()
		if s.alloc.agentLostLocked(a.ID()) {
			lostHeld = true
		}
	}
	if lostHeld {
		s.alloc.dynamicReassignLocked()
	}
}

// stepTasksLocked collects completions first and applies them afterwards, so
// the task collection is never mutated while it is being iterated.
func (s *Simulator) stepTasksLocked(captures *[]model.CaptureRequest) error {
	st := s.state
	var lookupErr error
	env := model.TaskEnv{
		ReachRadius: s.cfg.ReachRadius,
		Time:        st.time,
		Agent: func(id string) *model.Agent {
			a, ok, err := st.agents.get(id)
			if err != nil && lookupErr == nil {
				lookupErr = err
			}
			if !ok {
				return nil
			}
			return a
		},
		Capture: func(r model.CaptureRequest) { *captures = append(*captures, r) },
	}

	var done []*model.Task
	for _, t := range st.tasks.items {
		if t.Step(env) {
			done = append(done, t)
		}
	}
	if lookupErr != nil {
		return fmt.Errorf("step tasks: %w", lookupErr)
	}

	for _, t := range done {
		released, err := t.Complete(st.time)
		if err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		s.alloc.taskCompletedLocked(t, released)
		st.tasks.remove(t.ID())
		st.completed = append(st.completed, t)
		st.recordLocked(EventTaskComplete, Event{TaskID: t.ID(), Data: map[string]any{"type": t.Type.String(), "agents": released}})
		s.metrics.TaskCompleted(t.Type.String())
		s.alloc.dynamicReassignLocked()
	}
	return nil
}

// senseLocked leaves an exploration trail behind every active agent, records
// hazard hits inside hazard radii and reveals nearby targets.
func (s *Simulator) senseLocked() {
	st := s.state
	for _, a := range st.agents.items {
		if a.Hub || a.TimedOut {
			continue
		}
		if err := st.hits.Add(model.HazardNone, a.Coordinate); err != nil {
			s.log.Warn("hazard hit rejected", "sim_time", st.time, "agent_id", a.ID(), "err", err)
		}
		for _, h := range st.hazards.items {
			if !h.Contains(a.Coordinate) {
				continue
			}
			if err := st.hits.Add(h.Type, a.Coordinate); err != nil {
				s.log.Warn("hazard hit rejected", "sim_time", st.time, "hazard_id", h.ID(), "err", err)
			}
		}
		for _, t := range st.targets.items {
			if t.Visible || a.Coordinate.Distance(t.Coordinate) > s.cfg.SensorRadius {
				continue
			}
			if t.Reveal() {
				st.recordLocked(EventTargetFound, Event{AgentID: a.ID(), Data: map[string]any{"target_id": t.ID()}})
			}
		}
	}
}

// endScenarioLocked pre-loads the next scenario header when configured and resets.
func (s *Simulator) endScenarioLocked() {
	st := s.state
	if st.passthrough && s.passthrough != nil {
		id, desc, err := s.passthrough(st.nextFile)
		if err != nil {
			s.log.Warn("passthrough failed", "sim_time", st.time, "file", st.nextFile, "err", err)
		} else {
			st.gameID, st.gameDescription = id, desc
			st.recordLocked(EventPassthrough, Event{Data: map[string]any{"file": st.nextFile}})
		}
	}
	s.resetLocked()
}

func (s *Simulator) resetLocked() {
	st := s.state
	st.resetLocked()
	st.resetNextLocked()
	st.recordLocked(EventReset, Event{})
}

// flush publishes events queued under the lock.
func (s *Simulator) flush() {
	runID := s.RunID()
	for _, ev := range s.state.drainEvents() {
		ev.RunID = runID
		s.log.Info("sim event", "code", ev.Code, "sim_time", ev.SimTime, "agent_id", ev.AgentID, "task_id", ev.TaskID, "data", ev.Data)
		if s.events == nil {
			continue
		}
		if err := s.events.WriteEvent(ev); err != nil {
			s.log.Warn("event log write failed", "code", ev.Code, "err", err)
		}
	}
}

// StartSimulation starts a fresh loop goroutine. Any previous loop is stopped first.
func (s *Simulator) StartSimulation() {
	s.stopLoop()

	st := s.state
	st.mu.Lock()
	now := s.now()
	st.scenarioStart = now
	st.updateScenarioEndLocked()
	for _, a := range st.agents.items {
		if a.Simulated {
			a.Heartbeat(now)
		}
	}
	st.inProgress = true
	st.mu.Unlock()

	s.loopMu.Lock()
	done := make(chan struct{})
	s.done = done
	s.running.Store(true)
	s.loopMu.Unlock()
	go s.loop(done)
}

func (s *Simulator) loop(done chan struct{}) {
	defer close(done)
	period := s.cfg.Period()
	timer := time.NewTimer(period)
	defer timer.Stop()
	for s.running.Load() {
		start := time.Now()
		if err := s.Tick(); err != nil {
			s.log.Error("tick aborted", "err", err, "corrupt", errors.Is(err, model.ErrCorruptState))
		}
		wait := nextWait(period, time.Since(start))
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// stopLoop clears the running flag, interrupts the sleep and waits for the
// in-flight tick to finish.
// nextWait is what remains of the tick period after a tick took elapsed. An
// overrunning tick is followed immediately by the next one.
func nextWait(period, elapsed time.Duration) time.Duration {
	if elapsed >= period {
		return 0
	}
	return period - elapsed
}

func (s *Simulator) stopLoop() {
	s.running.Store(false)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.loopMu.Lock()
	done := s.done
	s.done = nil
	s.loopMu.Unlock()
	if done != nil {
		<-done
	}
	select {
	case <-s.wake:
	default:
	}
}

// Reset stops the loop and restores default state. It is safe to call at any
// time and any number of times.
func (s *Simulator) Reset() {
	s.stopLoop()
	s.state.mu.Lock()
	s.resetLocked()
	s.state.mu.Unlock()
	s.runID.Store("")
	s.flush()
}

// Run blocks until ctx is done and then stops the loop.
func (s *Simulator) Run(ctx context.Context) error {
	<-ctx.Done()
	s.stopLoop()
	return nil
}

// Heartbeat records a heartbeat from a real agent.
func (s *Simulator) Heartbeat(agentID string) error {
	st := s.state
	st.mu.Lock()
	a, err := st.agentLocked(agentID)
	if err == nil {
		was := a.IsTimedOut()
		a.Heartbeat(s.now())
		if was {
			st.recordLocked(EventReconnected, Event{AgentID: agentID})
			s.alloc.dynamicReassignLocked()
		}
	}
	st.mu.Unlock()
	s.flush()
	return err
}

// AddAgent creates an agent. An empty id draws the next UAV-n id.
func (s *Simulator) AddAgent(id string, at geo.Coordinate, simulated bool) (*model.Agent, error) {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if id == "" {
		id = st.nextIDLocked(model.KindAgent)
	}
	a := model.NewAgent(id, at)
	a.Simulated = simulated
	a.Speed = s.cfg.AgentSpeed
	a.Heartbeat(s.now())
	if err := st.addLocked(a); err != nil {
		return nil, err
	}
	return a, nil
}

// AddTask creates a pending task and offers it to idle agents.
func (s *Simulator) AddTask(id string, typ model.TaskType, at geo.Coordinate, capacity int) (*model.Task, error) {
	st := s.state
	st.mu.Lock()
	if id == "" {
		id = st.nextIDLocked(model.KindTask)
	}
	t := model.NewTask(id, typ, at)
	if capacity > 0 {
		t.Capacity = capacity
	}
	t.CreatedAt = st.time
	err := st.addLocked(t)
	if err == nil && st.inProgress {
		s.alloc.dynamicReassignLocked()
	}
	st.mu.Unlock()
	s.flush()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Simulator) AddHazard(id string, typ model.HazardType, at geo.Coordinate, size float64) (*model.Hazard, error) {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if id == "" {
		id = st.nextIDLocked(model.KindHazard)
	}
	h := model.NewHazard(id, typ, at, size)
	if err := st.addLocked(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Simulator) AddTarget(id string, typ model.TargetType, at geo.Coordinate, visible bool) (*model.Target, error) {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if id == "" {
		id = st.nextIDLocked(model.KindTarget)
	}
	t := model.NewTarget(id, typ, at)
	t.Visible = visible
	if err := st.addLocked(t); err != nil {
		return nil, err
	}
	return t, nil
}

// The methods below wrap Allocator commands so their events reach the log.

func (s *Simulator) ChangeView(mode EditMode) error {
	defer s.flush()
	return s.alloc.ChangeView(mode)
}

func (s *Simulator) ConfirmAllocation() error {
	defer s.flush()
	return s.alloc.ConfirmAllocation()
}

func (s *Simulator) RemoveAgent(id string) (bool, error) {
	defer s.flush()
	return s.alloc.RemoveAgent(id)
}

func (s *Simulator) RemoveTask(id string) (bool, error) {
	defer s.flush()
	return s.alloc.RemoveTask(id)
}

func (s *Simulator) newRunID() string {
	id := uuid.NewString()
	s.runID.Store(id)
	return id
}

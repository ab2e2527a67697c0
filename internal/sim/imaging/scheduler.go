// Package imaging turns capture requests into stored images after a simulated
// capture latency measured in virtual time.
package imaging

import (
	"fmt"
	"log/slog"
	"sync"

	"swarmsim.ai/internal/sim/model"
	"swarmsim.ai/internal/sim/world"
)

// Recorder stores a finished image; *world.State satisfies it.
type Recorder interface {
	RecordImage(id, filename string, deep bool)
}

type pending struct {
	req     model.CaptureRequest
	readyAt float64
}

type Scheduler struct {
	rec     Recorder
	log     *slog.Logger
	shallow float64
	deep    float64

	mu      sync.Mutex
	pending []pending
}

func NewScheduler(rec Recorder, shallowDelay, deepDelay float64, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		rec:     rec,
		log:     log.With("component", "imaging"),
		shallow: max(shallowDelay, 0),
		deep:    max(deepDelay, 0),
	}
}

// Capture queues req; it is ready once simulated time passes req.Time plus the delay.
func (s *Scheduler) Capture(req model.CaptureRequest) {
	delay := s.shallow
	if req.Deep {
		delay = s.deep
	}
	s.mu.Lock()
	s.pending = append(s.pending, pending{req: req, readyAt: req.Time + delay})
	s.mu.Unlock()
}

// Check records every image that is ready at simTime, in request order.
func (s *Scheduler) Check(simTime float64) {
	s.mu.Lock()
	var ready []model.CaptureRequest
	keep := s.pending[:0]
	for _, p := range s.pending {
		if simTime >= p.readyAt {
			ready = append(ready, p.req)
		} else {
			keep = append(keep, p)
		}
	}
	s.pending = keep
	s.mu.Unlock()

	for _, req := range ready {
		name := Filename(req)
		s.rec.RecordImage(req.TaskID, name, req.Deep)
		s.log.Info("image stored", "task_id", req.TaskID, "file", name, "deep", req.Deep, "sim_time", simTime)
	}
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// WriteEvent drops queued captures whenever the session changes.
func (s *Scheduler) WriteEvent(ev world.Event) error {
	switch ev.Code {
	case world.EventReset, world.EventScenarioInit, world.EventSandboxLoaded:
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
	}
	return nil
}

func Filename(req model.CaptureRequest) string {
	res := "low"
	if req.Deep {
		res = "high"
	}
	return fmt.Sprintf("%s-%s.png", req.TaskID, res)
}

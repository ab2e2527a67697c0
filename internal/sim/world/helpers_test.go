package world

import (
	"sync"
	"time"

	"swarmsim.ai/internal/sim/geo"
)

var origin = geo.New(50.9379, -1.3972)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingMetrics struct {
	mu        sync.Mutex
	ticks     int
	completed int
	reassigns int
	lost      int
}

func (m *countingMetrics) ObserveTick(time.Duration) { m.mu.Lock(); m.ticks++; m.mu.Unlock() }
func (m *countingMetrics) TaskCompleted(string)      { m.mu.Lock(); m.completed++; m.mu.Unlock() }
func (m *countingMetrics) Reassigned(int)            { m.mu.Lock(); m.reassigns++; m.mu.Unlock() }
func (m *countingMetrics) AgentLost()                { m.mu.Lock(); m.lost++; m.mu.Unlock() }

func (m *countingMetrics) Reassigns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reassigns
}

func (m *countingMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks, m.completed, m.reassigns, m.lost = 0, 0, 0, 0
}

type recordingEvents struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEvents) WriteEvent(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Code)
	}
	return out
}

func (r *recordingEvents) Count(code string) int {
	n := 0
	for _, c := range r.Codes() {
		if c == code {
			n++
		}
	}
	return n
}

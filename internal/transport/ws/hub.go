package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"swarmsim.ai/internal/protocol"
	"swarmsim.ai/internal/sim/world"
)

// Hub fans state snapshots and simulation events out to connected sessions.
// Slow sessions lose pushes rather than stall the hub.
type Hub struct {
	sim  *world.Simulator
	log  *slog.Logger
	push time.Duration

	mu       sync.Mutex
	sessions map[string]chan []byte

	seq     atomic.Uint64
	dropped atomic.Uint64
}

func NewHub(sim *world.Simulator, push time.Duration, log *slog.Logger) *Hub {
	if push <= 0 {
		push = 200 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{sim: sim, log: log.With("component", "ws_hub"), push: push, sessions: map[string]chan []byte{}}
}

func (h *Hub) PushInterval() time.Duration { return h.push }

func (h *Hub) register(id string, out chan []byte) {
	h.mu.Lock()
	h.sessions[id] = out
	h.mu.Unlock()
}

// Subscribe registers a push-only listener. Call cancel to detach it.
func (h *Hub) Subscribe(queue int) (id string, out <-chan []byte, cancel func()) {
	if queue <= 0 {
		queue = sessionQueue
	}
	ch := make(chan []byte, queue)
	id = uuid.NewString()
	h.register(id, ch)
	return id, ch, func() { h.unregister(id) }
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Dropped counts pushes discarded because a session's queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.sessions {
		select {
		case out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// StateMessage encodes the current snapshot as a STATE message.
func (h *Hub) StateMessage() ([]byte, error) {
	return json.Marshal(protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Seq:             h.seq.Add(1),
		State:           h.sim.State().Snapshot(),
	})
}

// PushState broadcasts one snapshot. It is a no-op with no sessions.
func (h *Hub) PushState() {
	if h.Sessions() == 0 {
		return
	}
	b, err := h.StateMessage()
	if err != nil {
		h.log.Error("encode state", "err", err)
		return
	}
	h.broadcast(b)
}

// WriteEvent forwards a simulation event to every session.
func (h *Hub) WriteEvent(ev world.Event) error {
	if h.Sessions() == 0 {
		return nil
	}
	b, err := json.Marshal(protocol.EventMsg{Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Event: ev})
	if err != nil {
		return err
	}
	h.broadcast(b)
	return nil
}

// Run pushes state at the configured interval until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	t := time.NewTicker(h.push)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			h.PushState()
		}
	}
}

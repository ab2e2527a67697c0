package observer

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmsim.ai/internal/protocol"
	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/world"
	"swarmsim.ai/internal/transport/ws"
)

func newServer(t *testing.T) (*Server, *world.Simulator, *ws.Hub) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := world.New(world.Config{}, log)
	t.Cleanup(sim.Reset)
	hub := ws.NewHub(sim, time.Hour, log)
	return NewServer(sim, hub, log), sim, hub
}

func TestStateHandler(t *testing.T) {
	srv, sim, _ := newServer(t)
	_, err := sim.AddAgent("", geo.New(50.9, -1.4), true)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.StateHandler()(rec, httptest.NewRequest(http.MethodGet, "/v1/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap world.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, "UAV-1", snap.Agents[0].ID)

	rec = httptest.NewRecorder()
	srv.StateHandler()(rec, httptest.NewRequest(http.MethodPost, "/v1/state", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWSHandler_StreamsStateAndEvents(t *testing.T) {
	srv, _, hub := newServer(t)
	ts := httptest.NewServer(srv.WSHandler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	base, err := protocol.DecodeBase(msg)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeState, base.Type)

	require.Eventually(t, func() bool { return hub.Sessions() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.WriteEvent(world.Event{Code: world.EventWindChange}))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	var ev struct {
		Type  string      `json:"type"`
		Event world.Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, protocol.TypeEvent, ev.Type)
	assert.Equal(t, world.EventWindChange, ev.Event.Code)
}

func TestIsLoopbackRemote(t *testing.T) {
	assert.True(t, IsLoopbackRemote("127.0.0.1:5000"))
	assert.True(t, IsLoopbackRemote("[::1]:5000"))
	assert.False(t, IsLoopbackRemote("10.0.0.2:5000"))
	assert.False(t, IsLoopbackRemote("garbage"))
}

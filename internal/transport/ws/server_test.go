package ws

import (
	"encoding/json"
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
)

func origin() geo.Coordinate { return geo.New(50.9379, -1.3972) }

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readType reads until a message of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string, v any) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		base, err := protocol.DecodeBase(msg)
		require.NoError(t, err)
		if base.Type == typ {
			require.NoError(t, json.Unmarshal(msg, v))
			return
		}
	}
}

func TestServer_HandshakeCommandAck(t *testing.T) {
	sim := newSim(t)
	hub := NewHub(sim, time.Hour, nil)
	conn := dial(t, NewServer(sim, hub, nil))

	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "console"}))

	var welcome protocol.WelcomeMsg
	readType(t, conn, protocol.TypeWelcome, &welcome)
	assert.NotEmpty(t, welcome.SessionID)
	assert.InDelta(t, 0.2, welcome.Params.TickSeconds, 1e-9)

	var state struct {
		Seq   uint64         `json:"seq"`
		State world.Snapshot `json:"state"`
	}
	readType(t, conn, protocol.TypeState, &state)
	assert.Equal(t, uint64(1), state.Seq)

	args, _ := json.Marshal(protocol.AddAgentArgs{LatLng: protocol.LatLng{Lat: 50.9, Lng: -1.4}, Simulated: true})
	require.NoError(t, conn.WriteJSON(protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ReqID: "r1", Cmd: protocol.CmdAddAgent, Args: args}))
	var ack protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &ack)
	assert.Equal(t, "r1", ack.AckFor)
	assert.True(t, ack.Accepted)

	require.NoError(t, conn.WriteJSON(protocol.CmdMsg{Type: protocol.TypeCmd, ReqID: "r2", Cmd: protocol.CmdRemoveTask, Args: json.RawMessage(`{"task_id":"TASK-9"}`)}))
	readType(t, conn, protocol.TypeAck, &ack)
	assert.Equal(t, "r2", ack.AckFor)
	assert.False(t, ack.Accepted)
	assert.Equal(t, protocol.ErrNotFound, ack.Code)

	require.NoError(t, conn.WriteJSON(protocol.CmdMsg{Type: protocol.TypeCmd, ReqID: "r3", Cmd: "launch"}))
	readType(t, conn, protocol.TypeAck, &ack)
	assert.Equal(t, protocol.ErrUnknownCommand, ack.Code)

	require.Eventually(t, func() bool { return hub.Sessions() == 1 }, time.Second, 10*time.Millisecond)
	hub.PushState()
	readType(t, conn, protocol.TypeState, &state)
	assert.Equal(t, uint64(2), state.Seq)
	require.Len(t, state.State.Agents, 1)
	assert.Equal(t, "UAV-1", state.State.Agents[0].ID)
}

func TestServer_RejectsMissingHello(t *testing.T) {
	sim := newSim(t)
	conn := dial(t, NewServer(sim, NewHub(sim, time.Hour, nil), nil))

	require.NoError(t, conn.WriteJSON(protocol.CmdMsg{Type: protocol.TypeCmd, ReqID: "r1", Cmd: protocol.CmdUndo}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestHub_EventsReachSessions(t *testing.T) {
	sim := newSim(t)
	hub := NewHub(sim, time.Hour, nil)
	out := make(chan []byte, 1)
	hub.register("s1", out)

	require.NoError(t, hub.WriteEvent(world.Event{Code: world.EventReset}))
	var msg protocol.EventMsg
	require.NoError(t, json.Unmarshal(<-out, &msg))
	assert.Equal(t, protocol.TypeEvent, msg.Type)

	// A full queue drops rather than blocks.
	out <- []byte("x")
	require.NoError(t, hub.WriteEvent(world.Event{Code: world.EventReset}))
	assert.Equal(t, uint64(1), hub.Dropped())
	hub.unregister("s1")
	assert.Zero(t, hub.Sessions())
}

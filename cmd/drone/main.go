// Command drone is a minimal real-agent client: it registers one drone,
// keeps its heartbeat alive and logs allocation changes pushed by the server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"swarmsim.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		id    = flag.String("id", "DRONE-1", "agent id")
		lat   = flag.Float64("lat", 50.9376, "start latitude")
		lng   = flag.Float64("lng", -1.3967, "start longitude")
		every = flag.Duration("heartbeat", 5*time.Second, "heartbeat interval")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("agent_id", *id)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Error("dial", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "drone",
		AgentID:         *id,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Error("send HELLO", "err", err)
		os.Exit(1)
	}
	if err := conn.WriteJSON(command(1, protocol.CmdAddAgent, protocol.AddAgentArgs{
		ID:     *id,
		LatLng: protocol.LatLng{Lat: *lat, Lng: *lng},
	})); err != nil {
		logger.Error("send addAgent", "err", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var seq uint64 = 1
		t := time.NewTicker(*every)
		defer t.Stop()
		for {
			select {
			case <-stop:
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
				return
			case <-t.C:
				seq++
				if err := conn.WriteJSON(command(seq, protocol.CmdHeartbeat, nil)); err != nil {
					logger.Warn("heartbeat", "err", err)
					return
				}
			}
		}
	}()

	var task string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err == nil {
				logger.Info("welcome", "session", w.SessionID, "game_id", w.GameID, "tick_seconds", w.Params.TickSeconds)
			}
		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err == nil && !a.Accepted && a.Code != protocol.ErrDuplicateID {
				logger.Warn("command rejected", "req_id", a.AckFor, "code", a.Code, "message", a.Message)
			}
		case protocol.TypeState:
			var s struct {
				State struct {
					Time       float64           `json:"time"`
					Allocation map[string]string `json:"allocation"`
				} `json:"state"`
			}
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			if next := s.State.Allocation[*id]; next != task {
				logger.Info("allocation changed", "sim_time", s.State.Time, "from", task, "to", next)
				task = next
			}
		}
	}
	<-done
}

func command(seq uint64, cmd string, args any) protocol.CmdMsg {
	m := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("drone-%d", seq),
		Cmd:             cmd,
	}
	if args != nil {
		m.Args, _ = json.Marshal(args)
	}
	return m
}

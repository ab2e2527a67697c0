package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"swarmsim.ai/internal/protocol"
	"swarmsim.ai/internal/sim/world"
)

const sessionQueue = 32

type Server struct {
	sim *world.Simulator
	hub *Hub
	log *slog.Logger

	upgrader websocket.Upgrader
}

func NewServer(sim *world.Simulator, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sim: sim,
		hub: hub,
		log: logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type session struct {
	id      string
	agentID string
	out     chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		log := s.log.With("session", sess.id, "agent_id", sess.agentID)
		log.Info("session open", "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s.hub.register(sess.id, sess.out)
		defer s.hub.unregister(sess.id)

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			ack := s.handleMessage(sess, msg)
			if ack == nil {
				continue
			}
			b, err := json.Marshal(ack)
			if err != nil {
				log.Error("encode ack", "err", err)
				continue
			}
			select {
			case sess.out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		<-writerDone
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		log.Info("session closed")
	}
}

// handleMessage returns the ack for a command, or nil for messages that get none.
func (s *Server) handleMessage(sess *session, msg []byte) *protocol.AckMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeCmd {
		return nil
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return nil
	}
	ack := protocol.NewAck(cmd.ReqID, s.sim.State().Time())
	if cmd.ProtocolVersion != "" && cmd.ProtocolVersion != protocol.Version {
		ack = ack.Reject(protocol.ErrProtoBadRequest, "bad protocol_version")
		return &ack
	}
	if err := protocol.Validate(protocol.TypeCmd, msg); err != nil {
		code := protocol.ErrProtoBadRequest
		if !knownCommand(cmd.Cmd) {
			code = protocol.ErrUnknownCommand
		}
		ack = ack.Reject(code, err.Error())
		return &ack
	}
	res, err := dispatch(s.sim, sess, cmd)
	if err != nil {
		s.log.Debug("command rejected", "session", sess.id, "cmd", cmd.Cmd, "err", err)
		ack = ack.Reject(protocol.CodeFor(err), err.Error())
		return &ack
	}
	ack.Result = res
	ack.SimTime = s.sim.State().Time()
	return &ack
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HELLO"), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	sess := &session{
		id:      uuid.NewString(),
		agentID: strings.TrimSpace(hello.AgentID),
		out:     make(chan []byte, sessionQueue),
	}
	cfg := s.sim.Config()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		RunID:           s.sim.RunID(),
		GameID:          s.sim.State().GameID(),
		Params: protocol.WorldParams{
			TickSeconds:    cfg.TickSeconds,
			TicksPerSecond: cfg.TicksPerSecond,
			GameSpeed:      cfg.GameSpeed,
			PushIntervalMs: s.hub.PushInterval().Milliseconds(),
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	// First snapshot goes out before any periodic push.
	if b, err := s.hub.StateMessage(); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return nil
		}
	}
	return sess
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

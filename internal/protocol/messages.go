package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// AgentID binds the session to a real drone; heartbeats may then omit it.
	AgentID string `json:"agent_id,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	RunID           string      `json:"run_id,omitempty"`
	GameID          string      `json:"game_id,omitempty"`
	Params          WorldParams `json:"params"`
}

type WorldParams struct {
	TickSeconds    float64 `json:"tick_seconds"`
	TicksPerSecond int     `json:"ticks_per_second"`
	GameSpeed      float64 `json:"game_speed"`
	PushIntervalMs int64   `json:"push_interval_ms"`
}

// STATE (server -> client): a full snapshot of the simulation.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	State           any    `json:"state"`
}

// EVENT (server -> client): a simulation event, pushed as it is flushed.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Event           any    `json:"event"`
}

// CMD (client -> server)
type CmdMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Cmd             string          `json:"cmd"`
	Args            json.RawMessage `json:"args,omitempty"`
}

type AckMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	AckFor          string  `json:"ack_for"`
	Accepted        bool    `json:"accepted"`
	Code            string  `json:"code,omitempty"`
	Message         string  `json:"message,omitempty"`
	SimTime         float64 `json:"sim_time"`
	Result          any     `json:"result,omitempty"`
}

func NewAck(reqID string, simTime float64) AckMsg {
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: reqID, Accepted: true, SimTime: simTime}
}

// Reject returns a copy of the ack marked as refused with the given code.
func (a AckMsg) Reject(code, msg string) AckMsg {
	a.Accepted = false
	a.Code = code
	a.Message = msg
	a.Result = nil
	return a
}

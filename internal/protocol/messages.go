package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ControllerName  string            `json:"controller_name"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	FieldID         string      `json:"field_id"`
	FieldParams     FieldParams `json:"field_params"`
}

type FieldParams struct {
	TickRateHz      int      `json:"tick_rate_hz"`
	StateEveryTicks int      `json:"state_every_ticks"`
	MaxAgents       int      `json:"max_agents"`
	MaxAgentRadius  float64  `json:"max_agent_radius"`
	FieldBoundaryR  float64  `json:"field_boundary_r"`
	Topologies      []string `json:"topologies"`
}

// ACK (server -> client): transport-level accept/reject outside the
// per-command RESULT events carried in STATE frames.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

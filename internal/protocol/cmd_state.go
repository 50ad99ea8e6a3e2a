package protocol

// Command ops.
const (
	OpSpawnAgent     = "SPAWN_AGENT"
	OpRemoveAgent    = "REMOVE_AGENT"
	OpMoveAgent      = "MOVE_AGENT"
	OpStopAgent      = "STOP_AGENT"
	OpSetAgentParams = "SET_AGENT_PARAMS"

	OpCreateFormation = "CREATE_FORMATION"
	OpDeleteFormation = "DELETE_FORMATION"
	OpAddMember       = "ADD_MEMBER"
	OpRemoveMember    = "REMOVE_MEMBER"
	OpSetLeader       = "SET_LEADER"
	OpSetTarget       = "SET_TARGET"
)

// CMD (client -> server): a batch of command requests applied in order
// at the next tick boundary. Each request is answered by a RESULT event
// in a later STATE frame, matched by id.
type CmdMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Commands        []CommandReq `json:"commands"`
}

// CommandReq is one op with its optional arguments. Agent and Formation
// are pointers so handle 0 survives the wire.
type CommandReq struct {
	ID string `json:"id"`
	Op string `json:"op"`

	Agent     *int         `json:"agent,omitempty"`
	Formation *int         `json:"formation,omitempty"`
	Pos       *[3]float64  `json:"pos,omitempty"`
	Heading   *[3]float64  `json:"heading,omitempty"`
	Topology  string       `json:"topology,omitempty"`
	Spacing   float64      `json:"spacing,omitempty"`
	Params    *AgentParams `json:"params,omitempty"`
}

type AgentParams struct {
	Radius   float64 `json:"radius,omitempty"`
	Height   float64 `json:"height,omitempty"`
	MaxSpeed float64 `json:"max_speed,omitempty"`
	MaxAccel float64 `json:"max_accel,omitempty"`
}

// STATE (server -> client)
type StateMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	FieldID         string         `json:"field_id,omitempty"`
	Agents          []AgentObs     `json:"agents"`
	Formations      []FormationObs `json:"formations"`
	Events          []Event        `json:"events,omitempty"`
}

type AgentObs struct {
	ID     int         `json:"id"`
	Pos    [3]float64  `json:"pos"`
	Vel    [3]float64  `json:"vel"`
	State  string      `json:"state"`
	Target *[3]float64 `json:"target,omitempty"`
}

type FormationObs struct {
	ID       int      `json:"id"`
	Topology string   `json:"topology"`
	Spacing  float64  `json:"spacing"`
	Leader   int      `json:"leader"` // -1 = none
	Members  []int    `json:"members"`
	Target   *PoseObs `json:"target,omitempty"`
	Cohesion float64  `json:"cohesion"`
}

type PoseObs struct {
	Pos     [3]float64 `json:"pos"`
	Heading [3]float64 `json:"heading"`
}

type Event map[string]interface{}

// Package field runs the authoritative simulation loop: it owns the
// formation coordinator and the crowd, applies controller commands at
// tick boundaries, and publishes state frames. Everything the sim owns
// is touched only from the loop goroutine.
package field

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"phalanx.gg/internal/protocol"
	"phalanx.gg/internal/sim/crowd"
	"phalanx.gg/internal/sim/formation"
	"phalanx.gg/internal/sim/layout"
)

type Config struct {
	ID              string
	TickRateHz      int
	StateEveryTicks int
	MaxAgents       int
	MaxAgentRadius  float64
	BoundaryR       float64
	CmdWindowTicks  int
	CmdMax          int
	OutQueueFrames  int
}

type JoinRequest struct {
	ControllerName string
	// SessionID pins the id instead of minting one; replay uses this to
	// reproduce recorded sessions.
	SessionID string
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

type CmdEnvelope struct {
	SessionID string
	Cmd       protocol.CmdMsg
}

type RecordedJoin struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

type RecordedCmd struct {
	SessionID string          `json:"session_id"`
	Cmd       protocol.CmdMsg `json:"cmd"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry is the replayable record of one tick: everything applied
// at the boundary plus the post-step digest.
type TickLogEntry struct {
	Tick     uint64         `json:"tick"`
	Joins    []RecordedJoin `json:"joins,omitempty"`
	Leaves   []string       `json:"leaves,omitempty"`
	Commands []RecordedCmd  `json:"commands,omitempty"`
	Digest   string         `json:"digest"`
}

// AuditEntry records one accepted structural mutation.
type AuditEntry struct {
	Tick      uint64 `json:"tick"`
	Session   string `json:"session"`
	Action    string `json:"action"` // command op, e.g. "CREATE_FORMATION"
	Formation int    `json:"formation"`
	Agent     int    `json:"agent"`
	Detail    string `json:"detail,omitempty"`
}

type sessionState struct {
	Out    chan []byte
	Name   string
	events []protocol.Event

	// Command timestamps inside the rate-limit window.
	cmdTicks []uint64
}

// Field is a single-threaded authoritative simulation. All state must be
// accessed only from the field loop goroutine.
type Field struct {
	cfg Config

	tick atomic.Uint64

	coord *formation.Coordinator
	herd  *crowd.Crowd

	sessions map[string]*sessionState

	inbox chan CmdEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	metrics atomic.Value // Metrics

	newSessionID func() string
}

func New(cfg Config) *Field {
	if cfg.TickRateHz < 1 {
		cfg.TickRateHz = 30
	}
	if cfg.StateEveryTicks < 1 {
		cfg.StateEveryTicks = 1
	}
	if cfg.MaxAgents < 1 {
		cfg.MaxAgents = 1
	}
	if !(cfg.MaxAgentRadius > 0) {
		cfg.MaxAgentRadius = crowd.DefaultParams().Radius
	}
	if cfg.OutQueueFrames < 1 {
		cfg.OutQueueFrames = 64
	}
	herd := crowd.New(cfg.MaxAgents, cfg.MaxAgentRadius)
	f := &Field{
		cfg:          cfg,
		herd:         herd,
		coord:        formation.New(herd),
		sessions:     map[string]*sessionState{},
		inbox:        make(chan CmdEnvelope, 1024),
		join:         make(chan JoinRequest, 64),
		leave:        make(chan string, 64),
		stop:         make(chan struct{}),
		newSessionID: uuid.NewString,
	}
	return f
}

func (f *Field) SetTickLogger(l TickLogger)   { f.tickLogger = l }
func (f *Field) SetAuditLogger(l AuditLogger) { f.auditLogger = l }

func (f *Field) Inbox() chan<- CmdEnvelope { return f.inbox }
func (f *Field) Join() chan<- JoinRequest  { return f.join }
func (f *Field) Leave() chan<- string      { return f.leave }

func (f *Field) CurrentTick() uint64 { return f.tick.Load() }

// OutQueueFrames caps the per-session out queue a controller may request.
func (f *Field) OutQueueFrames() int { return f.cfg.OutQueueFrames }

func (f *Field) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(f.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingCmds []CmdEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stop:
			return nil
		case req := <-f.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-f.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-f.inbox:
			pendingCmds = append(pendingCmds, env)
		case <-ticker.C:
			f.step(pendingJoins, pendingLeaves, pendingCmds)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingCmds = pendingCmds[:0]
		}
	}
}

func (f *Field) Stop() { close(f.stop) }

// FieldParams is the WELCOME payload advertised to every controller.
func (f *Field) FieldParams() protocol.FieldParams {
	return protocol.FieldParams{
		TickRateHz:      f.cfg.TickRateHz,
		StateEveryTicks: f.cfg.StateEveryTicks,
		MaxAgents:       f.cfg.MaxAgents,
		MaxAgentRadius:  f.cfg.MaxAgentRadius,
		FieldBoundaryR:  f.cfg.BoundaryR,
		Topologies: []string{
			layout.Line.String(),
			layout.Column.String(),
			layout.Wedge.String(),
			layout.Box.String(),
			layout.Circle.String(),
		},
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

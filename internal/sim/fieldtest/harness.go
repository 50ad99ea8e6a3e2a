// Package fieldtest drives a field through its exported surface only:
// joins go through StepOnce, commands arrive as CMD envelopes and state
// comes back over each session's Out channel. Tests here never touch
// field internals.
package fieldtest

import (
	"encoding/json"
	"testing"

	"phalanx.gg/internal/protocol"
	"phalanx.gg/internal/sim/field"
)

type Harness struct {
	T *testing.T
	F *field.Field

	DefaultSession string

	sessions map[string]*session
}

type session struct {
	ID        string
	Out       chan []byte
	lastState protocol.StateMsg
}

func DefaultConfig() field.Config {
	return field.Config{
		ID:              "test",
		TickRateHz:      5,
		StateEveryTicks: 1,
		MaxAgents:       32,
		MaxAgentRadius:  2.0,
		CmdWindowTicks:  30,
		CmdMax:          120,
	}
}

func NewHarness(t *testing.T, cfg field.Config) *Harness {
	t.Helper()
	h := &Harness{
		T:        t,
		F:        field.New(cfg),
		sessions: map[string]*session{},
	}
	h.DefaultSession = h.Join("controller")
	return h
}

func (h *Harness) Join(name string) string {
	h.T.Helper()
	out := make(chan []byte, 16)
	resp := make(chan field.JoinResponse, 1)
	_, _ = h.F.StepOnce([]field.JoinRequest{{
		ControllerName: name,
		Out:            out,
		Resp:           resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.SessionID == "" {
		h.T.Fatalf("join returned empty session id")
	}
	s := &session{ID: jr.Welcome.SessionID, Out: out}
	h.sessions[s.ID] = s
	h.drainAll()
	return s.ID
}

func (h *Harness) Leave(sessionID string) {
	h.T.Helper()
	_, _ = h.F.StepOnce(nil, []string{sessionID}, nil)
	delete(h.sessions, sessionID)
	h.drainAll()
}

func (h *Harness) Cmd(cmds ...protocol.CommandReq) protocol.StateMsg {
	return h.CmdFor(h.DefaultSession, cmds...)
}

func (h *Harness) CmdFor(sessionID string, cmds ...protocol.CommandReq) protocol.StateMsg {
	h.T.Helper()
	msg := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Commands:        cmds,
	}
	_, _ = h.F.StepOnce(nil, nil, []field.CmdEnvelope{{SessionID: sessionID, Cmd: msg}})
	h.drainAll()
	return h.LastStateFor(sessionID)
}

func (h *Harness) StepNoop() protocol.StateMsg {
	h.T.Helper()
	_, _ = h.F.StepOnce(nil, nil, nil)
	h.drainAll()
	return h.LastState()
}

func (h *Harness) StepN(n int) protocol.StateMsg {
	h.T.Helper()
	for i := 0; i < n; i++ {
		_, _ = h.F.StepOnce(nil, nil, nil)
	}
	h.drainAll()
	return h.LastState()
}

func (h *Harness) LastState() protocol.StateMsg {
	return h.LastStateFor(h.DefaultSession)
}

func (h *Harness) LastStateFor(sessionID string) protocol.StateMsg {
	h.T.Helper()
	s := h.sessions[sessionID]
	if s == nil {
		h.T.Fatalf("unknown session id: %q", sessionID)
	}
	return s.lastState
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-s.Out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var st protocol.StateMsg
	if err := json.Unmarshal(last, &st); err != nil {
		h.T.Fatalf("unmarshal STATE: %v", err)
	}
	s.lastState = st
}

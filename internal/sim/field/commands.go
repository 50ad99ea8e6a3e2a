package field

import (
	"errors"
	"fmt"
	"math"

	"phalanx.gg/internal/protocol"
	"phalanx.gg/internal/sim/crowd"
	"phalanx.gg/internal/sim/formation"
	"phalanx.gg/internal/sim/geom"
	"phalanx.gg/internal/sim/layout"
)

// applyCmd applies one controller batch. Commands from sessions that
// already left are dropped; a leave queued in the same boundary wins.
func (f *Field) applyCmd(nowTick uint64, sid string, msg protocol.CmdMsg) {
	sess, ok := f.sessions[sid]
	if !ok {
		return
	}
	for _, c := range msg.Commands {
		if !sess.allowCmd(nowTick, f.cfg.CmdWindowTicks, f.cfg.CmdMax) {
			sess.addEvent(cmdResult(nowTick, c.ID, false, protocol.ErrRateLimit, "command budget exhausted"))
			continue
		}
		f.applyCommand(nowTick, sid, sess, c)
	}
}

func (f *Field) applyCommand(nowTick uint64, sid string, sess *sessionState, c protocol.CommandReq) {
	reject := func(code, message string) {
		sess.addEvent(cmdResult(nowTick, c.ID, false, code, message))
	}
	accept := func(extra map[string]interface{}) {
		ev := cmdResult(nowTick, c.ID, true, "", "")
		for k, v := range extra {
			ev[k] = v
		}
		sess.addEvent(ev)
	}

	switch c.Op {
	case protocol.OpSpawnAgent:
		pos, code, msg := f.checkPos(c.Pos)
		if code != "" {
			reject(code, msg)
			return
		}
		params := mergeParams(crowd.DefaultParams(), c.Params)
		idx, err := f.herd.AddAgent(pos, params)
		if err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		accept(map[string]interface{}{"agent": idx})
		f.audit(nowTick, sid, c.Op, -1, idx, "")

	case protocol.OpRemoveAgent:
		if c.Agent == nil {
			reject(protocol.ErrBadRequest, "agent required")
			return
		}
		if err := f.herd.RemoveAgent(*c.Agent); err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		// Enrollment is left alone: the coordinator tolerates handles
		// the crowd no longer knows and skips them on update.
		accept(nil)
		f.audit(nowTick, sid, c.Op, -1, *c.Agent, "")

	case protocol.OpMoveAgent:
		if c.Agent == nil {
			reject(protocol.ErrBadRequest, "agent required")
			return
		}
		pos, code, msg := f.checkPos(c.Pos)
		if code != "" {
			reject(code, msg)
			return
		}
		if !f.herd.RequestMoveTarget(*c.Agent, pos) {
			reject(protocol.ErrAgentNotFound, fmt.Sprintf("agent %d not in crowd", *c.Agent))
			return
		}
		accept(nil)

	case protocol.OpStopAgent:
		if c.Agent == nil {
			reject(protocol.ErrBadRequest, "agent required")
			return
		}
		if !f.herd.ResetMoveTarget(*c.Agent) {
			reject(protocol.ErrAgentNotFound, fmt.Sprintf("agent %d not in crowd", *c.Agent))
			return
		}
		accept(nil)

	case protocol.OpSetAgentParams:
		if c.Agent == nil || c.Params == nil {
			reject(protocol.ErrBadRequest, "agent and params required")
			return
		}
		snap, ok := f.herd.AgentSnapshot(*c.Agent)
		if !ok {
			reject(protocol.ErrAgentNotFound, fmt.Sprintf("agent %d not in crowd", *c.Agent))
			return
		}
		if err := f.herd.UpdateAgentParams(*c.Agent, mergeParams(snap.Params, c.Params)); err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		accept(nil)

	case protocol.OpCreateFormation:
		topo, ok := layout.Parse(c.Topology)
		if !ok {
			reject(protocol.ErrInvalidArgument, fmt.Sprintf("unknown topology %q", c.Topology))
			return
		}
		id, err := f.coord.Create(topo, c.Spacing)
		if err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		accept(map[string]interface{}{"formation": id})
		f.audit(nowTick, sid, c.Op, id, -1, fmt.Sprintf("%s spacing=%g", topo, c.Spacing))

	case protocol.OpDeleteFormation:
		if c.Formation == nil {
			reject(protocol.ErrBadRequest, "formation required")
			return
		}
		if err := f.coord.Delete(*c.Formation); err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		accept(nil)
		f.audit(nowTick, sid, c.Op, *c.Formation, -1, "")

	case protocol.OpAddMember:
		if c.Formation == nil || c.Agent == nil {
			reject(protocol.ErrBadRequest, "formation and agent required")
			return
		}
		if err := f.coord.AddMember(*c.Formation, *c.Agent); err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		accept(nil)
		f.audit(nowTick, sid, c.Op, *c.Formation, *c.Agent, "")

	case protocol.OpRemoveMember:
		if c.Agent == nil {
			reject(protocol.ErrBadRequest, "agent required")
			return
		}
		if err := f.coord.RemoveMember(*c.Agent); err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		accept(nil)
		f.audit(nowTick, sid, c.Op, -1, *c.Agent, "")

	case protocol.OpSetLeader:
		if c.Formation == nil || c.Agent == nil {
			reject(protocol.ErrBadRequest, "formation and agent required")
			return
		}
		if err := f.coord.SetLeader(*c.Formation, *c.Agent); err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		accept(nil)
		f.audit(nowTick, sid, c.Op, *c.Formation, *c.Agent, "")

	case protocol.OpSetTarget:
		if c.Formation == nil {
			reject(protocol.ErrBadRequest, "formation required")
			return
		}
		pos, code, msg := f.checkPos(c.Pos)
		if code != "" {
			reject(code, msg)
			return
		}
		heading := geom.Vec3{}
		if c.Heading != nil {
			heading = geom.FromArray(*c.Heading)
		}
		if err := f.coord.SetTarget(*c.Formation, pos, heading); err != nil {
			reject(codeForError(err), err.Error())
			return
		}
		accept(nil)
		f.audit(nowTick, sid, c.Op, *c.Formation, -1,
			fmt.Sprintf("pos=(%g,%g,%g)", pos.X, pos.Y, pos.Z))

	default:
		reject(protocol.ErrBadRequest, fmt.Sprintf("unknown op %q", c.Op))
	}
}

// checkPos validates a wire position: present, finite, inside the field
// boundary when one is configured. Returns a non-empty code on failure.
func (f *Field) checkPos(arr *[3]float64) (geom.Vec3, string, string) {
	if arr == nil {
		return geom.Vec3{}, protocol.ErrBadRequest, "pos required"
	}
	pos := geom.FromArray(*arr)
	if !pos.IsFinite() {
		return geom.Vec3{}, protocol.ErrInvalidArgument, "pos must be finite"
	}
	if f.cfg.BoundaryR > 0 && math.Sqrt(pos.X*pos.X+pos.Z*pos.Z) > f.cfg.BoundaryR {
		return geom.Vec3{}, protocol.ErrInvalidArgument, "pos outside field boundary"
	}
	return pos, "", ""
}

// mergeParams overlays non-zero wire params on a base set.
func mergeParams(base crowd.Params, p *protocol.AgentParams) crowd.Params {
	if p == nil {
		return base
	}
	if p.Radius != 0 {
		base.Radius = p.Radius
	}
	if p.Height != 0 {
		base.Height = p.Height
	}
	if p.MaxSpeed != 0 {
		base.MaxSpeed = p.MaxSpeed
	}
	if p.MaxAccel != 0 {
		base.MaxAccel = p.MaxAccel
	}
	return base
}

func codeForError(err error) string {
	switch {
	case errors.Is(err, formation.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, formation.ErrAgentNotFound):
		return protocol.ErrAgentNotFound
	case errors.Is(err, formation.ErrAgentNotInFormation):
		return protocol.ErrAgentNotInFormation
	case errors.Is(err, formation.ErrConflict):
		return protocol.ErrConflict
	case errors.Is(err, formation.ErrInvalidArgument):
		return protocol.ErrInvalidArgument
	case errors.Is(err, crowd.ErrCapacity):
		return protocol.ErrCapacity
	case errors.Is(err, crowd.ErrNoAgent):
		return protocol.ErrAgentNotFound
	case errors.Is(err, crowd.ErrBadParams):
		return protocol.ErrInvalidArgument
	default:
		return protocol.ErrInternal
	}
}

func cmdResult(tick uint64, ref string, ok bool, code, message string) protocol.Event {
	ev := protocol.Event{"t": tick, "type": "RESULT", "ref": ref, "ok": ok}
	if code != "" {
		ev["code"] = code
	}
	if message != "" {
		ev["message"] = message
	}
	return ev
}

func (s *sessionState) addEvent(ev protocol.Event) {
	s.events = append(s.events, ev)
}

// allowCmd enforces the per-session sliding-window command budget.
func (s *sessionState) allowCmd(nowTick uint64, windowTicks, max int) bool {
	if windowTicks <= 0 || max <= 0 {
		return true
	}
	var cutoff uint64
	if w := uint64(windowTicks); nowTick >= w {
		cutoff = nowTick - w + 1
	}
	keep := s.cmdTicks[:0]
	for _, t := range s.cmdTicks {
		if t >= cutoff {
			keep = append(keep, t)
		}
	}
	s.cmdTicks = keep
	if len(s.cmdTicks) >= max {
		return false
	}
	s.cmdTicks = append(s.cmdTicks, nowTick)
	return true
}

func (f *Field) audit(nowTick uint64, sid, action string, formationID, agent int, detail string) {
	if f.auditLogger == nil {
		return
	}
	_ = f.auditLogger.WriteAudit(AuditEntry{
		Tick:      nowTick,
		Session:   sid,
		Action:    action,
		Formation: formationID,
		Agent:     agent,
		Detail:    detail,
	})
}

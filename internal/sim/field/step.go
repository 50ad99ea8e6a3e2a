package field

import (
	"encoding/json"
	"sort"
	"time"

	"phalanx.gg/internal/protocol"
)

// step applies one tick boundary: leaves, joins, queued commands in
// arrival order, then the sim update, state frames, digest and logs.
func (f *Field) step(joins []JoinRequest, leaves []string, cmds []CmdEnvelope) {
	start := time.Now()
	nowTick := f.tick.Load()

	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := f.sessions[id]; !ok {
			continue
		}
		delete(f.sessions, id)
		recordedLeaves = append(recordedLeaves, id)
	}

	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		recordedJoins = append(recordedJoins, f.joinSession(req))
	}

	recordedCmds := make([]RecordedCmd, 0, len(cmds))
	for _, env := range cmds {
		recordedCmds = append(recordedCmds, RecordedCmd{SessionID: env.SessionID, Cmd: env.Cmd})
		f.applyCmd(nowTick, env.SessionID, env.Cmd)
	}

	dt := 1.0 / float64(f.cfg.TickRateHz)
	dispatched := f.coord.Update(dt)
	f.herd.Update(dt)

	if nowTick%uint64(f.cfg.StateEveryTicks) == 0 {
		f.publishState(nowTick)
	}

	digest := f.stateDigest(nowTick)

	if f.tickLogger != nil {
		_ = f.tickLogger.WriteTick(TickLogEntry{
			Tick:     nowTick,
			Joins:    recordedJoins,
			Leaves:   recordedLeaves,
			Commands: recordedCmds,
			Digest:   digest,
		})
	}

	f.storeMetrics(nowTick, dispatched, time.Since(start))
	f.tick.Add(1)
}

// StepOnce advances exactly one tick with the given boundary inputs and
// returns the tick that was stepped plus its digest. Replay and tests
// drive the field with this instead of Run.
func (f *Field) StepOnce(joins []JoinRequest, leaves []string, cmds []CmdEnvelope) (uint64, string) {
	nowTick := f.tick.Load()
	f.step(joins, leaves, cmds)
	return nowTick, f.stateDigest(nowTick)
}

func (f *Field) joinSession(req JoinRequest) RecordedJoin {
	id := req.SessionID
	if id == "" {
		id = f.newSessionID()
	}
	f.sessions[id] = &sessionState{Out: req.Out, Name: req.ControllerName}
	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       id,
			FieldID:         f.cfg.ID,
			FieldParams:     f.FieldParams(),
		}}
	}
	return RecordedJoin{SessionID: id, Name: req.ControllerName}
}

// publishState builds one STATE frame per connected session. Agents and
// formations are shared across sessions; the event list is per session
// and is drained here.
func (f *Field) publishState(nowTick uint64) {
	agents := f.buildAgentObs()
	formations := f.buildFormationObs()

	ids := make([]string, 0, len(f.sessions))
	for id := range f.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sess := f.sessions[id]
		events := sess.events
		sess.events = nil
		if sess.Out == nil {
			continue
		}
		frame := protocol.StateMsg{
			Type:            protocol.TypeState,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			FieldID:         f.cfg.ID,
			Agents:          agents,
			Formations:      formations,
			Events:          events,
		}
		b, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		sendLatest(sess.Out, b)
	}
}

func (f *Field) buildAgentObs() []protocol.AgentObs {
	idxs := f.herd.ActiveAgents()
	out := make([]protocol.AgentObs, 0, len(idxs))
	for _, idx := range idxs {
		snap, ok := f.herd.AgentSnapshot(idx)
		if !ok {
			continue
		}
		obs := protocol.AgentObs{
			ID:    snap.Index,
			Pos:   snap.Pos.ToArray(),
			Vel:   snap.Vel.ToArray(),
			State: snap.State.String(),
		}
		if snap.HasTarget {
			arr := snap.Target.ToArray()
			obs.Target = &arr
		}
		out = append(out, obs)
	}
	return out
}

func (f *Field) buildFormationObs() []protocol.FormationObs {
	ids := f.coord.IDs()
	out := make([]protocol.FormationObs, 0, len(ids))
	for _, id := range ids {
		info, err := f.coord.Info(id)
		if err != nil {
			continue
		}
		members, _ := f.coord.Members(id)
		obs := protocol.FormationObs{
			ID:       info.ID,
			Topology: info.Topology.String(),
			Spacing:  info.Spacing,
			Leader:   info.Leader,
			Members:  members,
		}
		if info.HasTarget {
			obs.Target = &protocol.PoseObs{
				Pos:     info.TargetPos.ToArray(),
				Heading: info.TargetDir.ToArray(),
			}
		}
		if c, err := f.coord.Cohesion(id); err == nil {
			obs.Cohesion = c
		}
		out = append(out, obs)
	}
	return out
}

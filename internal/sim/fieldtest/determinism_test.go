package fieldtest

import (
	"testing"

	"phalanx.gg/internal/protocol"
	"phalanx.gg/internal/sim/field"
)

func TestDeterminism_FixedCommandsSameDigest(t *testing.T) {
	cfg := DefaultConfig()
	f1 := field.New(cfg)
	f2 := field.New(cfg)

	join := func(f *field.Field) {
		resp := make(chan field.JoinResponse, 1)
		_, _ = f.StepOnce([]field.JoinRequest{{
			ControllerName: "bot",
			SessionID:      "ctrl-1",
			Resp:           resp,
		}}, nil, nil)
		<-resp
	}
	join(f1)
	join(f2)

	startTick := f1.CurrentTick()
	if got := f2.CurrentTick(); got != startTick {
		t.Fatalf("tick mismatch after join: f1=%d f2=%d", startTick, got)
	}

	batch := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Commands: []protocol.CommandReq{
			{ID: "s0", Op: protocol.OpSpawnAgent, Pos: posp(0, 0, 0)},
			{ID: "s1", Op: protocol.OpSpawnAgent, Pos: posp(3, 0, 1)},
			{ID: "s2", Op: protocol.OpSpawnAgent, Pos: posp(-2, 0, 4)},
			{ID: "cf", Op: protocol.OpCreateFormation, Topology: "WEDGE", Spacing: 1.5},
			{ID: "m0", Op: protocol.OpAddMember, Formation: ip(0), Agent: ip(0)},
			{ID: "m1", Op: protocol.OpAddMember, Formation: ip(0), Agent: ip(1)},
			{ID: "m2", Op: protocol.OpAddMember, Formation: ip(0), Agent: ip(2)},
			{ID: "tg", Op: protocol.OpSetTarget, Formation: ip(0), Pos: posp(12, 0, -8), Heading: posp(1, 0, 1)},
		},
	}

	// Simulate 50 ticks with the same command stream.
	for i := uint64(0); i < 50; i++ {
		wantTick := startTick + i
		var cmds1, cmds2 []field.CmdEnvelope
		if i == 0 {
			cmds1 = append(cmds1, field.CmdEnvelope{SessionID: "ctrl-1", Cmd: batch})
			cmds2 = append(cmds2, field.CmdEnvelope{SessionID: "ctrl-1", Cmd: batch})
		}
		t1, d1 := f1.StepOnce(nil, nil, cmds1)
		t2, d2 := f2.StepOnce(nil, nil, cmds2)
		if t1 != wantTick || t2 != wantTick {
			t.Fatalf("tick mismatch: got f1=%d f2=%d want %d", t1, t2, wantTick)
		}
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", wantTick, d1, d2)
		}
	}
}

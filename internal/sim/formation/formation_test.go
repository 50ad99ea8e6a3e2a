package formation

import (
	"errors"
	"math"
	"testing"

	"phalanx.gg/internal/sim/geom"
	"phalanx.gg/internal/sim/layout"
)

type dispatch struct {
	agent int
	pos   geom.Vec3
}

// fakeEngine is an in-memory MoveEngine recording every dispatch.
type fakeEngine struct {
	agents     map[int]geom.Vec3
	rejected   map[int]bool
	dispatches []dispatch
}

func newFakeEngine(agents ...int) *fakeEngine {
	e := &fakeEngine{agents: map[int]geom.Vec3{}, rejected: map[int]bool{}}
	for _, a := range agents {
		e.agents[a] = geom.Vec3{}
	}
	return e
}

func (e *fakeEngine) AgentExists(a int) bool {
	_, ok := e.agents[a]
	return ok
}

func (e *fakeEngine) RequestMoveTarget(a int, p geom.Vec3) bool {
	if e.rejected[a] {
		return false
	}
	e.dispatches = append(e.dispatches, dispatch{agent: a, pos: p})
	return true
}

func (e *fakeEngine) AgentPosition(a int) (geom.Vec3, bool) {
	p, ok := e.agents[a]
	return p, ok
}

func mustCreate(t *testing.T, c *Coordinator, tp layout.Topology, spacing float64) int {
	t.Helper()
	id, err := c.Create(tp, spacing)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func mustAdd(t *testing.T, c *Coordinator, id int, agents ...int) {
	t.Helper()
	for _, a := range agents {
		if err := c.AddMember(id, a); err != nil {
			t.Fatalf("add %d to %d: %v", a, id, err)
		}
	}
}

func TestCreateAllocatesMonotonicIDs(t *testing.T) {
	c := New(newFakeEngine())
	a := mustCreate(t, c, layout.Line, 1)
	b := mustCreate(t, c, layout.Box, 2)
	if a != 0 || b != 1 {
		t.Fatalf("ids: got %d,%d want 0,1", a, b)
	}
	if err := c.Delete(a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if next := mustCreate(t, c, layout.Circle, 3); next != 2 {
		t.Fatalf("id after delete: got %d want 2 (never reused)", next)
	}
	if got := c.Count(); got != 2 {
		t.Fatalf("count: got %d want 2", got)
	}
}

func TestCreateRejectsBadArguments(t *testing.T) {
	c := New(newFakeEngine())
	for _, spacing := range []float64{0, -1.5, math.NaN(), math.Inf(1)} {
		if _, err := c.Create(layout.Line, spacing); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("spacing %v: got %v want ErrInvalidArgument", spacing, err)
		}
	}
	if _, err := c.Create(layout.Topology(99), 1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad topology: got %v", err)
	}
	if c.Count() != 0 {
		t.Fatalf("failed creates leaked formations: %d", c.Count())
	}
}

func TestDeleteSecondCallFails(t *testing.T) {
	c := New(newFakeEngine())
	id := mustCreate(t, c, layout.Line, 1)
	if err := c.Delete(id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := c.Delete(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: got %v want ErrNotFound", err)
	}
}

func TestDeleteNeverTouchesEngine(t *testing.T) {
	eng := newFakeEngine(7, 8)
	c := New(eng)
	id := mustCreate(t, c, layout.Line, 2)
	mustAdd(t, c, id, 7, 8)
	if err := c.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(eng.dispatches) != 0 {
		t.Fatalf("delete dispatched %d targets", len(eng.dispatches))
	}
	if c.Exists(id) || c.Count() != 0 {
		t.Fatalf("formation survived delete")
	}
	if _, err := c.Members(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("members after delete: got %v", err)
	}
	// Reverse mapping is gone: the agents are free to enroll elsewhere.
	id2 := mustCreate(t, c, layout.Column, 1)
	mustAdd(t, c, id2, 7, 8)
}

func TestAddMemberOrderAndErrors(t *testing.T) {
	eng := newFakeEngine(1, 2, 3)
	c := New(eng)
	id := mustCreate(t, c, layout.Wedge, 1.5)

	if err := c.AddMember(id+100, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown formation: got %v", err)
	}
	if err := c.AddMember(id, 42); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("unknown agent: got %v", err)
	}

	mustAdd(t, c, id, 3, 1, 2)
	got, err := c.Members(id)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	want := []int{3, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot order: got %v want %v", got, want)
		}
	}
}

func TestAddMemberIdempotentWithinFormation(t *testing.T) {
	c := New(newFakeEngine(5))
	id := mustCreate(t, c, layout.Line, 1)
	mustAdd(t, c, id, 5)
	if err := c.AddMember(id, 5); err != nil {
		t.Fatalf("re-add same formation: %v", err)
	}
	got, _ := c.Members(id)
	if len(got) != 1 {
		t.Fatalf("duplicate slot created: %v", got)
	}
}

func TestAddMemberExclusiveAcrossFormations(t *testing.T) {
	c := New(newFakeEngine(5))
	a := mustCreate(t, c, layout.Line, 1)
	b := mustCreate(t, c, layout.Circle, 1)
	mustAdd(t, c, a, 5)
	if err := c.AddMember(b, 5); !errors.Is(err, ErrConflict) {
		t.Fatalf("cross-formation add: got %v want ErrConflict", err)
	}
	// Transfer works through an explicit remove.
	if err := c.RemoveMember(5); err != nil {
		t.Fatalf("remove: %v", err)
	}
	mustAdd(t, c, b, 5)
}

func TestRemoveMemberCompactsOrder(t *testing.T) {
	c := New(newFakeEngine(1, 2, 3))
	id := mustCreate(t, c, layout.Line, 1)
	mustAdd(t, c, id, 1, 2, 3)
	if err := c.RemoveMember(2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ := c.Members(id)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("order after remove: got %v want [1 3]", got)
	}
}

func TestRemoveMemberClearsLeader(t *testing.T) {
	c := New(newFakeEngine(1, 2))
	id := mustCreate(t, c, layout.Column, 1)
	mustAdd(t, c, id, 1, 2)
	if err := c.SetLeader(id, 2); err != nil {
		t.Fatalf("set leader: %v", err)
	}
	if err := c.RemoveMember(2); err != nil {
		t.Fatalf("remove leader: %v", err)
	}
	info, _ := c.Info(id)
	if info.Leader != NoLeader {
		t.Fatalf("leader after removal: got %d want %d", info.Leader, NoLeader)
	}

	// Removing a non-leader leaves leadership alone.
	mustAdd(t, c, id, 2)
	if err := c.SetLeader(id, 1); err != nil {
		t.Fatalf("set leader: %v", err)
	}
	if err := c.RemoveMember(2); err != nil {
		t.Fatalf("remove follower: %v", err)
	}
	info, _ = c.Info(id)
	if info.Leader != 1 {
		t.Fatalf("leader after follower removal: got %d want 1", info.Leader)
	}
}

func TestRemoveNonMemberMutatesNothing(t *testing.T) {
	c := New(newFakeEngine(1, 2))
	a := mustCreate(t, c, layout.Line, 1)
	b := mustCreate(t, c, layout.Box, 1)
	mustAdd(t, c, a, 1)
	mustAdd(t, c, b, 2)

	if err := c.RemoveMember(99); !errors.Is(err, ErrAgentNotInFormation) {
		t.Fatalf("remove non-member: got %v", err)
	}
	for _, id := range []int{a, b} {
		got, _ := c.Members(id)
		if len(got) != 1 {
			t.Fatalf("formation %d mutated: %v", id, got)
		}
	}
}

func TestSetLeaderRequiresMembership(t *testing.T) {
	c := New(newFakeEngine(1, 2))
	id := mustCreate(t, c, layout.Wedge, 1)
	mustAdd(t, c, id, 1)

	if err := c.SetLeader(id+1, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown formation: got %v", err)
	}
	if err := c.SetLeader(id, 2); !errors.Is(err, ErrAgentNotInFormation) {
		t.Fatalf("non-member leader: got %v", err)
	}
	if err := c.SetLeader(id, 1); err != nil {
		t.Fatalf("set leader: %v", err)
	}
	info, _ := c.Info(id)
	if info.Leader != 1 {
		t.Fatalf("leader: got %d want 1", info.Leader)
	}
}

func TestSetTargetValidation(t *testing.T) {
	c := New(newFakeEngine())
	id := mustCreate(t, c, layout.Line, 1)

	if err := c.SetTarget(id+1, geom.Vec3{}, geom.DefaultHeading()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown formation: got %v", err)
	}
	bad := geom.Vec3{X: math.NaN()}
	if err := c.SetTarget(id, bad, geom.DefaultHeading()); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("NaN position: got %v", err)
	}
	if err := c.SetTarget(id, geom.Vec3{}, geom.Vec3{Z: math.Inf(1)}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Inf heading: got %v", err)
	}
	info, _ := c.Info(id)
	if info.HasTarget {
		t.Fatalf("rejected set_target still targeted the formation")
	}
}

func TestSetTargetNormalizesHeading(t *testing.T) {
	c := New(newFakeEngine())
	id := mustCreate(t, c, layout.Line, 1)
	if err := c.SetTarget(id, geom.Vec3{X: 1, Y: 2, Z: 3}, geom.Vec3{X: 0, Y: 0, Z: 10}); err != nil {
		t.Fatalf("set target: %v", err)
	}
	info, _ := c.Info(id)
	if !info.HasTarget {
		t.Fatalf("has_target not set")
	}
	if math.Abs(info.TargetDir.Length()-1) > 1e-9 || info.TargetDir.Z != 1 {
		t.Fatalf("heading not normalized: %+v", info.TargetDir)
	}
}

func TestSetTargetZeroHeadingUsesDefault(t *testing.T) {
	c := New(newFakeEngine())
	id := mustCreate(t, c, layout.Line, 1)
	if err := c.SetTarget(id, geom.Vec3{X: 5}, geom.Vec3{}); err != nil {
		t.Fatalf("zero heading must not error: %v", err)
	}
	info, _ := c.Info(id)
	if info.TargetDir != geom.DefaultHeading() {
		t.Fatalf("heading: got %+v want default", info.TargetDir)
	}
}

func TestInfoSnapshot(t *testing.T) {
	c := New(newFakeEngine(4))
	id := mustCreate(t, c, layout.Circle, 2.5)
	mustAdd(t, c, id, 4)
	if err := c.SetLeader(id, 4); err != nil {
		t.Fatalf("set leader: %v", err)
	}
	info, err := c.Info(id)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.ID != id || info.Topology != layout.Circle || info.Spacing != 2.5 ||
		info.Leader != 4 || info.MemberCount != 1 || info.HasTarget {
		t.Fatalf("info: %+v", info)
	}
	if _, err := c.Info(id + 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown info: got %v", err)
	}
}

func TestIDsSorted(t *testing.T) {
	c := New(newFakeEngine())
	for i := 0; i < 5; i++ {
		mustCreate(t, c, layout.Line, 1)
	}
	if err := c.Delete(2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ids := c.IDs()
	want := []int{0, 1, 3, 4}
	if len(ids) != len(want) {
		t.Fatalf("ids: got %v want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids: got %v want %v", ids, want)
		}
	}
}

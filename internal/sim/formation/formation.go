// Package formation coordinates groups of crowd agents into geometric
// shapes (line, column, wedge, box, circle) and keeps every member's
// movement target synchronized to the group pose each tick. It owns
// membership and leadership; it never owns agent lifetime or motion.
package formation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"phalanx.gg/internal/sim/geom"
	"phalanx.gg/internal/sim/layout"
)

// Operation errors. All are synchronous, returned to the immediate
// caller, and never fatal to the owning loop.
var (
	ErrNotFound            = errors.New("formation not found")
	ErrAgentNotFound       = errors.New("agent not known to movement engine")
	ErrAgentNotInFormation = errors.New("agent not in formation")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConflict            = errors.New("agent already in another formation")
)

// MoveEngine is the movement surface the coordinator drives. Agent
// handles are weak references: the engine owns agent lifetime and may
// drop an agent between ticks, so existence is checked at point of use.
type MoveEngine interface {
	AgentExists(agent int) bool
	// RequestMoveTarget is best effort; a false return is reportable,
	// not an error.
	RequestMoveTarget(agent int, pos geom.Vec3) bool
	// AgentPosition serves diagnostics only; layout never reads it.
	AgentPosition(agent int) (geom.Vec3, bool)
}

// NoLeader marks a formation without a designated leader.
const NoLeader = -1

type formation struct {
	id        int
	topology  layout.Topology
	spacing   float64
	members   []int // slot order = insertion order
	leader    int
	targetPos geom.Vec3
	targetDir geom.Vec3 // unit length once set
	hasTarget bool
}

// Info is a point-in-time snapshot of one formation.
type Info struct {
	ID          int
	Topology    layout.Topology
	Spacing     float64
	Leader      int
	MemberCount int
	HasTarget   bool
	TargetPos   geom.Vec3
	TargetDir   geom.Vec3
}

// Coordinator owns the formation table: lifecycle, membership, leadership
// and the per-tick target sweep. It has no internal locking; the owner
// calls every method from a single goroutine and performs structural
// mutation between ticks, never during Update.
type Coordinator struct {
	engine MoveEngine

	formations map[int]*formation
	memberOf   map[int]int // agent handle -> formation id
	nextID     int
}

func New(engine MoveEngine) *Coordinator {
	return &Coordinator{
		engine:     engine,
		formations: make(map[int]*formation),
		memberOf:   make(map[int]int),
	}
}

// Create allocates a formation and returns its id. Ids are monotonic and
// never reused for the lifetime of the coordinator.
func (c *Coordinator) Create(t layout.Topology, spacing float64) (int, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: unknown topology %d", ErrInvalidArgument, int(t))
	}
	if !(spacing > 0) || math.IsInf(spacing, 0) {
		return 0, fmt.Errorf("%w: spacing must be positive, got %v", ErrInvalidArgument, spacing)
	}
	f := &formation{
		id:        c.nextID,
		topology:  t,
		spacing:   spacing,
		leader:    NoLeader,
		targetDir: geom.DefaultHeading(),
	}
	c.nextID++
	c.formations[f.id] = f
	return f.id, nil
}

// Delete removes the formation and its membership records. Agents
// themselves are untouched: no movement engine call is made.
func (c *Coordinator) Delete(id int) error {
	f, ok := c.formations[id]
	if !ok {
		return fmt.Errorf("%w: formation %d", ErrNotFound, id)
	}
	for _, agent := range f.members {
		delete(c.memberOf, agent)
	}
	delete(c.formations, id)
	return nil
}

func (c *Coordinator) Exists(id int) bool {
	_, ok := c.formations[id]
	return ok
}

// Count reports the number of live formations.
func (c *Coordinator) Count() int { return len(c.formations) }

// IDs reports live formation ids in ascending order.
func (c *Coordinator) IDs() []int {
	ids := make([]int, 0, len(c.formations))
	for id := range c.formations {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// AddMember appends the agent to the formation's slot order. Adding an
// existing member of the same formation is an idempotent success; an
// agent enrolled in a different formation is rejected with ErrConflict
// (membership is exclusive; remove first to transfer).
func (c *Coordinator) AddMember(id, agent int) error {
	f, ok := c.formations[id]
	if !ok {
		return fmt.Errorf("%w: formation %d", ErrNotFound, id)
	}
	if !c.engine.AgentExists(agent) {
		return fmt.Errorf("%w: agent %d", ErrAgentNotFound, agent)
	}
	if owner, enrolled := c.memberOf[agent]; enrolled {
		if owner == id {
			return nil
		}
		return fmt.Errorf("%w: agent %d is in formation %d", ErrConflict, agent, owner)
	}
	f.members = append(f.members, agent)
	c.memberOf[agent] = id
	return nil
}

// RemoveMember drops the agent from whichever formation holds it,
// compacting slot order and clearing leadership if the agent led.
func (c *Coordinator) RemoveMember(agent int) error {
	id, ok := c.memberOf[agent]
	if !ok {
		return fmt.Errorf("%w: agent %d", ErrAgentNotInFormation, agent)
	}
	f := c.formations[id]
	for i, m := range f.members {
		if m == agent {
			f.members = append(f.members[:i], f.members[i+1:]...)
			break
		}
	}
	if f.leader == agent {
		f.leader = NoLeader
	}
	delete(c.memberOf, agent)
	return nil
}

// SetLeader designates an existing member as leader.
func (c *Coordinator) SetLeader(id, agent int) error {
	f, ok := c.formations[id]
	if !ok {
		return fmt.Errorf("%w: formation %d", ErrNotFound, id)
	}
	if owner, enrolled := c.memberOf[agent]; !enrolled || owner != id {
		return fmt.Errorf("%w: agent %d not in formation %d", ErrAgentNotInFormation, agent, id)
	}
	f.leader = agent
	return nil
}

// SetTarget sets the formation pose. The heading is normalized on the
// way in; a near-zero heading is replaced with the canonical default
// rather than rejected. Non-finite components are rejected.
func (c *Coordinator) SetTarget(id int, pos, heading geom.Vec3) error {
	f, ok := c.formations[id]
	if !ok {
		return fmt.Errorf("%w: formation %d", ErrNotFound, id)
	}
	if !pos.IsFinite() || !heading.IsFinite() {
		return fmt.Errorf("%w: pose components must be finite", ErrInvalidArgument)
	}
	dir, ok := heading.Normalized()
	if !ok {
		dir = geom.DefaultHeading()
	}
	f.targetPos = pos
	f.targetDir = dir
	f.hasTarget = true
	return nil
}

// Members reports the formation's agents in slot order. The returned
// slice is a copy.
func (c *Coordinator) Members(id int) ([]int, error) {
	f, ok := c.formations[id]
	if !ok {
		return nil, fmt.Errorf("%w: formation %d", ErrNotFound, id)
	}
	out := make([]int, len(f.members))
	copy(out, f.members)
	return out, nil
}

func (c *Coordinator) Info(id int) (Info, error) {
	f, ok := c.formations[id]
	if !ok {
		return Info{}, fmt.Errorf("%w: formation %d", ErrNotFound, id)
	}
	return Info{
		ID:          f.id,
		Topology:    f.topology,
		Spacing:     f.spacing,
		Leader:      f.leader,
		MemberCount: len(f.members),
		HasTarget:   f.hasTarget,
		TargetPos:   f.targetPos,
		TargetDir:   f.targetDir,
	}, nil
}

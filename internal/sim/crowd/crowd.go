// Package crowd is the movement engine: a fixed-capacity agent pool with
// slot-index handles and straight-line, acceleration-limited kinematics.
// No pathfinding or avoidance happens here; targets are approached
// directly and the caller decides where targets come from.
package crowd

import (
	"errors"
	"fmt"

	"phalanx.gg/internal/sim/geom"
)

var (
	ErrCapacity  = errors.New("crowd is full")
	ErrNoAgent   = errors.New("no active agent at index")
	ErrBadParams = errors.New("invalid agent params")
)

// Params mirror the crowd-agent knobs exposed to controllers.
type Params struct {
	Radius   float64
	Height   float64
	MaxSpeed float64
	MaxAccel float64
}

func DefaultParams() Params {
	return Params{Radius: 0.6, Height: 2.0, MaxSpeed: 3.5, MaxAccel: 8.0}
}

func (p Params) validate(maxRadius float64) error {
	if !(p.Radius > 0) || p.Radius > maxRadius {
		return fmt.Errorf("%w: radius %v (max %v)", ErrBadParams, p.Radius, maxRadius)
	}
	if !(p.Height > 0) || !(p.MaxSpeed > 0) || !(p.MaxAccel > 0) {
		return fmt.Errorf("%w: height/speed/accel must be positive", ErrBadParams)
	}
	return nil
}

// State is an agent's coarse movement phase.
type State int

const (
	StateIdle State = iota
	StateMoving
	StateArrived
)

var stateNames = map[State]string{
	StateIdle:    "IDLE",
	StateMoving:  "MOVING",
	StateArrived: "ARRIVED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

type agent struct {
	active    bool
	pos       geom.Vec3
	vel       geom.Vec3
	target    geom.Vec3
	hasTarget bool
	state     State
	params    Params
}

// Snapshot is a read-only copy of one agent's state.
type Snapshot struct {
	Index     int
	Pos       geom.Vec3
	Vel       geom.Vec3
	Target    geom.Vec3
	HasTarget bool
	State     State
	Params    Params
}

// Crowd owns the agent pool. Like the coordinator it is single-writer:
// the owning loop is the only goroutine that calls into it.
type Crowd struct {
	agents    []agent
	maxRadius float64
	active    int
}

func New(maxAgents int, maxAgentRadius float64) *Crowd {
	if maxAgents < 1 {
		maxAgents = 1
	}
	if !(maxAgentRadius > 0) {
		maxAgentRadius = DefaultParams().Radius
	}
	return &Crowd{agents: make([]agent, maxAgents), maxRadius: maxAgentRadius}
}

// AddAgent places an agent at pos and returns its handle: the lowest free
// slot index. Handles are reused after removal, so holders must treat
// them as weak references.
func (c *Crowd) AddAgent(pos geom.Vec3, p Params) (int, error) {
	if err := p.validate(c.maxRadius); err != nil {
		return -1, err
	}
	if !pos.IsFinite() {
		return -1, fmt.Errorf("%w: non-finite position", ErrBadParams)
	}
	for i := range c.agents {
		if c.agents[i].active {
			continue
		}
		c.agents[i] = agent{active: true, pos: pos, state: StateIdle, params: p}
		c.active++
		return i, nil
	}
	return -1, fmt.Errorf("%w: %d agents", ErrCapacity, len(c.agents))
}

func (c *Crowd) RemoveAgent(idx int) error {
	if !c.AgentExists(idx) {
		return fmt.Errorf("%w: %d", ErrNoAgent, idx)
	}
	c.agents[idx] = agent{}
	c.active--
	return nil
}

// AgentExists reports whether idx names a live agent.
func (c *Crowd) AgentExists(idx int) bool {
	return idx >= 0 && idx < len(c.agents) && c.agents[idx].active
}

// RequestMoveTarget points the agent at pos. Best effort: false for dead
// handles or non-finite targets, never an error.
func (c *Crowd) RequestMoveTarget(idx int, pos geom.Vec3) bool {
	if !c.AgentExists(idx) || !pos.IsFinite() {
		return false
	}
	a := &c.agents[idx]
	a.target = pos
	a.hasTarget = true
	if a.state != StateMoving && !c.arrived(a) {
		a.state = StateMoving
	}
	return true
}

// ResetMoveTarget clears the agent's target; it coasts to a stop.
func (c *Crowd) ResetMoveTarget(idx int) bool {
	if !c.AgentExists(idx) {
		return false
	}
	a := &c.agents[idx]
	a.target = geom.Vec3{}
	a.hasTarget = false
	a.state = StateIdle
	return true
}

func (c *Crowd) AgentPosition(idx int) (geom.Vec3, bool) {
	if !c.AgentExists(idx) {
		return geom.Vec3{}, false
	}
	return c.agents[idx].pos, true
}

func (c *Crowd) AgentVelocity(idx int) (geom.Vec3, bool) {
	if !c.AgentExists(idx) {
		return geom.Vec3{}, false
	}
	return c.agents[idx].vel, true
}

func (c *Crowd) AgentSnapshot(idx int) (Snapshot, bool) {
	if !c.AgentExists(idx) {
		return Snapshot{}, false
	}
	a := &c.agents[idx]
	return Snapshot{
		Index:     idx,
		Pos:       a.pos,
		Vel:       a.vel,
		Target:    a.target,
		HasTarget: a.hasTarget,
		State:     a.state,
		Params:    a.params,
	}, true
}

func (c *Crowd) UpdateAgentParams(idx int, p Params) error {
	if !c.AgentExists(idx) {
		return fmt.Errorf("%w: %d", ErrNoAgent, idx)
	}
	if err := p.validate(c.maxRadius); err != nil {
		return err
	}
	c.agents[idx].params = p
	return nil
}

// ActiveAgents reports live handles in ascending order.
func (c *Crowd) ActiveAgents() []int {
	out := make([]int, 0, c.active)
	for i := range c.agents {
		if c.agents[i].active {
			out = append(out, i)
		}
	}
	return out
}

// Count reports the number of live agents.
func (c *Crowd) Count() int { return c.active }

func (c *Crowd) MaxAgentCount() int { return len(c.agents) }

// arrival tolerance scales with body size so big agents do not orbit.
func (c *Crowd) arrived(a *agent) bool {
	eps := 0.25 * a.params.Radius
	if eps < 0.01 {
		eps = 0.01
	}
	return a.hasTarget && a.target.Sub(a.pos).Length() <= eps
}

// Update advances every live agent one step: steer velocity toward the
// target at most MaxAccel*dt, cap at MaxSpeed, integrate, snap on
// arrival. Slots are visited in ascending order so runs are repeatable.
func (c *Crowd) Update(dt float64) {
	if dt <= 0 {
		return
	}
	for i := range c.agents {
		a := &c.agents[i]
		if !a.active {
			continue
		}

		var desired geom.Vec3
		if a.hasTarget {
			to := a.target.Sub(a.pos)
			dist := to.Length()
			if dist <= a.params.MaxSpeed*dt || c.arrived(a) {
				// Close enough to land this tick.
				a.pos = a.target
				a.vel = geom.Vec3{}
				a.state = StateArrived
				continue
			}
			desired = to.Scale(a.params.MaxSpeed / dist)
			a.state = StateMoving
		}

		dv := desired.Sub(a.vel)
		if maxDV := a.params.MaxAccel * dt; dv.Length() > maxDV {
			dv = dv.Scale(maxDV / dv.Length())
		}
		a.vel = a.vel.Add(dv)
		if sp := a.vel.Length(); sp > a.params.MaxSpeed {
			a.vel = a.vel.Scale(a.params.MaxSpeed / sp)
		}
		a.pos = a.pos.Add(a.vel.Scale(dt))

		if !a.hasTarget && a.vel.Length() < 1e-6 {
			a.vel = geom.Vec3{}
			a.state = StateIdle
		}
	}
}

package formation

import (
	"fmt"

	"phalanx.gg/internal/sim/geom"
	"phalanx.gg/internal/sim/layout"
)

// Update recomputes and dispatches every member's slot target, for each
// formation that has a target and at least one member. The sweep is
// memoryless: unchanged pose and membership produce identical targets on
// every call, and formations are visited in ascending id order. Members
// the engine no longer knows are skipped; one stale handle never blocks
// the rest of the group, and one formation never blocks the next.
//
// dt is accepted for symmetry with the other per-tick systems; slot math
// does not depend on it. The return value is the number of accepted
// dispatches.
func (c *Coordinator) Update(dt float64) int {
	dispatched := 0
	for _, id := range c.IDs() {
		f := c.formations[id]
		if !f.hasTarget || len(f.members) == 0 {
			continue
		}
		right := geom.RightOf(f.targetDir)
		n := len(f.members)
		for i, agent := range f.members {
			if !c.engine.AgentExists(agent) {
				continue
			}
			if c.engine.RequestMoveTarget(agent, slotTarget(f, right, i, n)) {
				dispatched++
			}
		}
	}
	return dispatched
}

// slotTarget is the absolute target of slot i: pose position plus the
// layout offset along the pose's right and heading axes. Height always
// comes from the pose; formations operate in the ground plane.
func slotTarget(f *formation, right geom.Vec3, i, n int) geom.Vec3 {
	lat, depth := layout.Offset(f.topology, i, n, f.spacing)
	t := f.targetPos.Add(right.Scale(lat)).Add(f.targetDir.Scale(depth))
	t.Y = f.targetPos.Y
	return t
}

// Cohesion reports the mean distance between members' current positions
// and their assigned slots. Untargeted or empty formations read zero.
// Diagnostic only: nothing is dispatched.
func (c *Coordinator) Cohesion(id int) (float64, error) {
	f, ok := c.formations[id]
	if !ok {
		return 0, fmt.Errorf("%w: formation %d", ErrNotFound, id)
	}
	if !f.hasTarget || len(f.members) == 0 {
		return 0, nil
	}
	right := geom.RightOf(f.targetDir)
	n := len(f.members)
	sum, counted := 0.0, 0
	for i, agent := range f.members {
		pos, ok := c.engine.AgentPosition(agent)
		if !ok {
			continue
		}
		sum += pos.Sub(slotTarget(f, right, i, n)).Length()
		counted++
	}
	if counted == 0 {
		return 0, nil
	}
	return sum / float64(counted), nil
}

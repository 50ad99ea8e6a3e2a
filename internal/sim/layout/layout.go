// Package layout computes per-slot formation offsets. It is pure math:
// no state, no randomness, no engine calls.
package layout

import "math"

// Topology is the closed set of formation shapes. Adding a shape means
// adding a constant and a case in Offset, nothing else.
type Topology int

const (
	Line Topology = iota
	Column
	Wedge
	Box
	Circle
)

var topologyNames = map[Topology]string{
	Line:   "LINE",
	Column: "COLUMN",
	Wedge:  "WEDGE",
	Box:    "BOX",
	Circle: "CIRCLE",
}

func (t Topology) String() string {
	if s, ok := topologyNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Valid reports whether t is one of the defined shapes.
func (t Topology) Valid() bool {
	_, ok := topologyNames[t]
	return ok
}

// Parse maps a wire name ("LINE", "WEDGE", ...) to its Topology.
func Parse(name string) (Topology, bool) {
	for t, s := range topologyNames {
		if s == name {
			return t, true
		}
	}
	return 0, false
}

// Offset reports the local-plane offset of slot i in a group of n agents:
// lateral along the formation's right vector, depth along its heading
// (negative depth is behind the pose). Slots are insertion-order indices,
// 0-based. Callers guarantee 0 <= i < n and spacing > 0.
func Offset(t Topology, i, n int, spacing float64) (lateral, depth float64) {
	switch t {
	case Line:
		// Row centered on the real midpoint, so offsets sum to zero.
		return (float64(i) - float64(n-1)/2) * spacing, 0

	case Column:
		return 0, -float64(i) * spacing

	case Wedge:
		// Row r holds slots r*r .. r*r+2r. Trailing rows may be
		// lopsided for some n; accepted behavior.
		row := int(math.Sqrt(float64(i)))
		col := i - row*row
		return (float64(col) - float64(row)/2) * spacing, -float64(row) * spacing

	case Box:
		side := int(math.Ceil(math.Sqrt(float64(n))))
		row := i / side
		col := i % side
		return (float64(col) - float64(side)/2) * spacing, -float64(row) * spacing

	case Circle:
		// Ring sized so adjacent slots sit ~spacing apart along the arc.
		radius := spacing * float64(n) / (2 * math.Pi)
		angle := float64(i) / float64(n) * 2 * math.Pi
		return radius * math.Cos(angle), radius * math.Sin(angle)

	default:
		return 0, 0
	}
}

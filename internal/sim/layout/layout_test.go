package layout

import (
	"math"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	for _, tp := range []Topology{Line, Column, Wedge, Box, Circle} {
		got, ok := Parse(tp.String())
		if !ok || got != tp {
			t.Fatalf("Parse(%q): got %v ok=%v", tp.String(), got, ok)
		}
		if !tp.Valid() {
			t.Fatalf("%v not valid", tp)
		}
	}
	if _, ok := Parse("TRIANGLE"); ok {
		t.Fatalf("unknown name parsed")
	}
	if Topology(99).Valid() {
		t.Fatalf("out-of-range topology valid")
	}
}

func TestLineOffsetsSumToZero(t *testing.T) {
	for n := 1; n <= 40; n++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			lat, depth := Offset(Line, i, n, 1.7)
			if depth != 0 {
				t.Fatalf("line depth: n=%d i=%d got %v", n, i, depth)
			}
			sum += lat
		}
		if math.Abs(sum) > 1e-9 {
			t.Fatalf("line laterals n=%d sum to %v", n, sum)
		}
	}
}

func TestLineScenarioFiveAgents(t *testing.T) {
	want := []float64{-4, -2, 0, 2, 4}
	for i, w := range want {
		lat, depth := Offset(Line, i, 5, 2.0)
		if lat != w || depth != 0 {
			t.Fatalf("slot %d: got (%v,%v) want (%v,0)", i, lat, depth, w)
		}
	}
}

func TestColumnSingleFile(t *testing.T) {
	prev := math.Inf(1)
	for i := 0; i < 10; i++ {
		lat, depth := Offset(Column, i, 10, 1.5)
		if lat != 0 {
			t.Fatalf("column lateral: slot %d got %v", i, lat)
		}
		if depth != -float64(i)*1.5 {
			t.Fatalf("column depth: slot %d got %v", i, depth)
		}
		if depth >= prev && i > 0 {
			t.Fatalf("column depth not strictly decreasing at slot %d", i)
		}
		prev = depth
	}
}

func TestWedgeRows(t *testing.T) {
	// Slot 0 is the point; row r starts at slot r*r and sits r*spacing back.
	_, d0 := Offset(Wedge, 0, 9, 2)
	if d0 != 0 {
		t.Fatalf("wedge point depth: got %v", d0)
	}
	for _, c := range []struct {
		slot, row int
	}{{1, 1}, {3, 1}, {4, 2}, {8, 2}} {
		_, depth := Offset(Wedge, c.slot, 9, 2)
		if depth != -float64(c.row)*2 {
			t.Fatalf("wedge slot %d: depth %v want %v", c.slot, depth, -float64(c.row)*2)
		}
	}
}

func TestBoxColumnCount(t *testing.T) {
	for _, n := range []int{1, 2, 4, 5, 9, 10, 16, 17, 30} {
		side := int(math.Ceil(math.Sqrt(float64(n))))
		cols := map[float64]bool{}
		for i := 0; i < side; i++ { // first row spans every column
			lat, depth := Offset(Box, i, n, 2)
			if depth != 0 {
				t.Fatalf("box first row depth: n=%d i=%d got %v", n, i, depth)
			}
			cols[lat] = true
		}
		if len(cols) != side {
			t.Fatalf("box n=%d: %d columns want %d", n, len(cols), side)
		}
	}
}

func TestBoxRowAdvance(t *testing.T) {
	// n=5 -> side=3: slot 3 wraps to row 1 under slot 0's column.
	lat0, _ := Offset(Box, 0, 5, 2)
	lat3, depth3 := Offset(Box, 3, 5, 2)
	if lat3 != lat0 || depth3 != -2 {
		t.Fatalf("box wrap: got (%v,%v) want (%v,-2)", lat3, depth3, lat0)
	}
}

func TestCircleEquidistantSlots(t *testing.T) {
	const n, spacing = 6, 2.0
	wantR := spacing * n / (2 * math.Pi) // ~1.91
	if math.Abs(wantR-1.9098593171) > 1e-6 {
		t.Fatalf("radius formula drifted: %v", wantR)
	}
	for i := 0; i < n; i++ {
		lat, depth := Offset(Circle, i, n, spacing)
		r := math.Hypot(lat, depth)
		if math.Abs(r-wantR) > 1e-9 {
			t.Fatalf("slot %d radius: got %v want %v", i, r, wantR)
		}
		angle := math.Atan2(depth, lat)
		wantA := float64(i) / n * 2 * math.Pi
		if wantA > math.Pi {
			wantA -= 2 * math.Pi
		}
		if math.Abs(angle-wantA) > 1e-9 {
			t.Fatalf("slot %d angle: got %v want %v", i, angle, wantA)
		}
	}
}

func TestCircleChordApproachesSpacing(t *testing.T) {
	const n, spacing = 100, 2.0
	lat0, dep0 := Offset(Circle, 0, n, spacing)
	lat1, dep1 := Offset(Circle, 1, n, spacing)
	chord := math.Hypot(lat1-lat0, dep1-dep0)
	if math.Abs(chord-spacing)/spacing > 0.01 {
		t.Fatalf("chord: got %v want ~%v", chord, spacing)
	}
}

func TestOffsetPure(t *testing.T) {
	for _, tp := range []Topology{Line, Column, Wedge, Box, Circle} {
		a1, d1 := Offset(tp, 3, 7, 1.25)
		a2, d2 := Offset(tp, 3, 7, 1.25)
		if a1 != a2 || d1 != d2 {
			t.Fatalf("%v not deterministic", tp)
		}
	}
}

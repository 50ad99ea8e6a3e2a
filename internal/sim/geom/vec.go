package geom

import "math"

// NormalizeEps is the length floor below which a vector is treated as
// degenerate by Normalized.
const NormalizeEps = 1e-3

// DefaultHeading is the canonical facing used when a caller supplies a
// degenerate heading.
func DefaultHeading() Vec3 { return Vec3{X: 0, Y: 0, Z: 1} }

type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) ToArray() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func FromArray(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Normalized reports the unit vector along v. ok is false when v is shorter
// than NormalizeEps; the zero vector is returned in that case.
func (v Vec3) Normalized() (Vec3, bool) {
	l := v.Length()
	if l <= NormalizeEps {
		return Vec3{}, false
	}
	return v.Scale(1 / l), true
}

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// RightOf reports the ground-plane right vector of a forward heading
// (clockwise quarter turn around +Y). Degenerate headings fall back to +X.
func RightOf(heading Vec3) Vec3 {
	r, ok := Vec3{X: heading.Z, Y: 0, Z: -heading.X}.Normalized()
	if !ok {
		return Vec3{X: 1, Y: 0, Z: 0}
	}
	return r
}

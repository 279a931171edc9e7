package d3

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// ms3 vector routines missing from ms3 or needed in
// function form by the kernel packages.

func Elem(side float32) ms3.Vec {
	return ms3.Vec{X: side, Y: side, Z: side}
}

func Dot(a, b ms3.Vec) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func Norm2(a ms3.Vec) float32 {
	return a.X*a.X + a.Y*a.Y + a.Z*a.Z
}

// Dist returns the euclidean distance between a and b.
func Dist(a, b ms3.Vec) float32 {
	return math32.Sqrt(Norm2(ms3.Sub(a, b)))
}

// Dist2 returns the squared euclidean distance between a and b.
func Dist2(a, b ms3.Vec) float32 {
	return Norm2(ms3.Sub(a, b))
}

// UnitOr returns the unit vector of a, or fallback if a has zero or
// non-finite length.
func UnitOr(a, fallback ms3.Vec) ms3.Vec {
	n := math32.Sqrt(Norm2(a))
	if n == 0 || math32.IsNaN(n) || math32.IsInf(n, 0) {
		return fallback
	}
	return ms3.Scale(1/n, a)
}

func EqualWithin(a, b ms3.Vec, tol float32) bool {
	return math32.Abs(a.X-b.X) <= tol &&
		math32.Abs(a.Y-b.Y) <= tol &&
		math32.Abs(a.Z-b.Z) <= tol
}

// MinElem return a vector with the minimum components of two vectors.
func MinElem(a, b ms3.Vec) ms3.Vec {
	return ms3.Vec{X: math32.Min(a.X, b.X), Y: math32.Min(a.Y, b.Y), Z: math32.Min(a.Z, b.Z)}
}

// Lerp linearly interpolates from a to b, t=0 returns a.
func Lerp(a, b ms3.Vec, t float32) ms3.Vec {
	return ms3.Add(a, ms3.Scale(t, ms3.Sub(b, a)))
}

// Comp returns the axis'th component of v. Axis is 0, 1 or 2.
func Comp(v ms3.Vec, axis int) float32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

// LongestAxis returns the index of the largest component of v.
func LongestAxis(v ms3.Vec) int {
	if v.X >= v.Y && v.X >= v.Z {
		return 0
	} else if v.Y >= v.Z {
		return 1
	}
	return 2
}

// IsFinite returns false if any component is NaN or infinite.
func IsFinite(v ms3.Vec) bool {
	return !(math32.IsNaN(v.X) || math32.IsInf(v.X, 0) ||
		math32.IsNaN(v.Y) || math32.IsInf(v.Y, 0) ||
		math32.IsNaN(v.Z) || math32.IsInf(v.Z, 0))
}

// Clamp x between a and b, assume a <= b
func Clamp(x, a, b float32) float32 {
	return math32.Min(b, math32.Max(x, a))
}

// TriNormal returns the non-normalized normal of the CCW triangle (a,b,c).
// Its length is twice the triangle's area.
func TriNormal(a, b, c ms3.Vec) ms3.Vec {
	return ms3.Cross(ms3.Sub(b, a), ms3.Sub(c, a))
}

// TriArea returns the area of triangle (a,b,c).
func TriArea(a, b, c ms3.Vec) float32 {
	return 0.5 * math32.Sqrt(Norm2(TriNormal(a, b, c)))
}

// Centroid returns the mean of the triangle's vertices.
func Centroid(a, b, c ms3.Vec) ms3.Vec {
	return ms3.Scale(1./3, ms3.Add(ms3.Add(a, b), c))
}

// Angle returns the angle between vectors a and b in radians. Inputs
// need not be normalized; the cosine is clamped before acos.
func Angle(a, b ms3.Vec) float32 {
	la := Norm2(a)
	lb := Norm2(b)
	if la == 0 || lb == 0 {
		return 0
	}
	c := Dot(a, b) / math32.Sqrt(la*lb)
	return math32.Acos(Clamp(c, -1, 1))
}

package geom

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// Plane is the set of points p with dot(N,p) + D = 0. N has unit length.
type Plane struct {
	N ms3.Vec
	D float32
}

// PlaneFromPoints returns the plane through the CCW triangle (a,b,c).
// ok is false for degenerate triangles.
func PlaneFromPoints(a, b, c ms3.Vec) (p Plane, ok bool) {
	n := ms3.Cross(ms3.Sub(b, a), ms3.Sub(c, a))
	l := math32.Sqrt(dot(n, n))
	if l == 0 || math32.IsNaN(l) || math32.IsInf(l, 0) {
		return Plane{}, false
	}
	n = ms3.Scale(1/l, n)
	return Plane{N: n, D: -dot(n, a)}, true
}

// PlaneFromNormal returns the plane with unit normal n passing through point.
func PlaneFromNormal(n, point ms3.Vec) Plane {
	return Plane{N: n, D: -dot(n, point)}
}

// Distance returns the signed distance from p to the plane.
func (pl Plane) Distance(p ms3.Vec) float32 {
	return dot(pl.N, p) + pl.D
}

// Flip returns the plane with reversed orientation.
func (pl Plane) Flip() Plane {
	return Plane{N: ms3.Scale(-1, pl.N), D: -pl.D}
}

// IsFinite reports whether the plane has no NaN or infinite coefficients.
func (pl Plane) IsFinite() bool {
	for _, f := range [4]float32{pl.N.X, pl.N.Y, pl.N.Z, pl.D} {
		if math32.IsNaN(f) || math32.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Side classifies a point or polygon with respect to a plane.
type Side uint8

const (
	Coplanar Side = 0
	Front    Side = 1
	Back     Side = 2
	Spanning Side = Front | Back
)

func (s Side) String() string {
	switch s {
	case Coplanar:
		return "coplanar"
	case Front:
		return "front"
	case Back:
		return "back"
	case Spanning:
		return "spanning"
	}
	return "invalid side"
}

// Classify returns the side of point p with tolerance eps.
func (pl Plane) Classify(p ms3.Vec, eps float32) Side {
	d := pl.Distance(p)
	if d > eps {
		return Front
	} else if d < -eps {
		return Back
	}
	return Coplanar
}

package geom

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// Ray is a half line Origin + t*Dir for t in [TMin, TMax].
type Ray struct {
	Origin ms3.Vec
	Dir    ms3.Vec
	TMin   float32
	TMax   float32
}

// NewRay returns a ray with TMin 0 and an unbounded TMax.
func NewRay(origin, dir ms3.Vec) Ray {
	return Ray{Origin: origin, Dir: dir, TMin: 0, TMax: math32.MaxFloat32}
}

// At returns the point at parameter t.
func (r Ray) At(t float32) ms3.Vec {
	return ms3.Add(r.Origin, ms3.Scale(t, r.Dir))
}

// InvDir returns the componentwise reciprocal of the direction. Zero
// components map to signed infinities so slab tests stay correct.
func (r Ray) InvDir() ms3.Vec {
	return ms3.Vec{X: inv(r.Dir.X), Y: inv(r.Dir.Y), Z: inv(r.Dir.Z)}
}

func inv(f float32) float32 {
	if f == 0 {
		if math32.Signbit(f) {
			return math32.Inf(-1)
		}
		return math32.Inf(1)
	}
	return 1 / f
}

// IntersectBox tests the ray against an AABB using the slab method and
// returns the entry and exit parameters. invDir must be r.InvDir().
func (r Ray) IntersectBox(bb ms3.Box, invDir ms3.Vec) (tEnter, tExit float32, hit bool) {
	t1 := (bb.Min.X - r.Origin.X) * invDir.X
	t2 := (bb.Max.X - r.Origin.X) * invDir.X
	tEnter, tExit = math32.Min(t1, t2), math32.Max(t1, t2)

	t1 = (bb.Min.Y - r.Origin.Y) * invDir.Y
	t2 = (bb.Max.Y - r.Origin.Y) * invDir.Y
	tEnter = math32.Max(tEnter, math32.Min(t1, t2))
	tExit = math32.Min(tExit, math32.Max(t1, t2))

	t1 = (bb.Min.Z - r.Origin.Z) * invDir.Z
	t2 = (bb.Max.Z - r.Origin.Z) * invDir.Z
	tEnter = math32.Max(tEnter, math32.Min(t1, t2))
	tExit = math32.Min(tExit, math32.Max(t1, t2))

	hit = tEnter <= tExit && tExit > r.TMin && tEnter < r.TMax
	return tEnter, tExit, hit
}

// TriangleEpsilon is the determinant threshold, relative to the product of
// the ray direction and triangle edge lengths, below which a ray is
// considered parallel to a triangle. The relative form keeps the test
// independent of model scale.
const TriangleEpsilon = 1e-7

// IntersectTriangle is the Moller-Trumbore ray/triangle test. On hit it
// returns the ray parameter and barycentric coordinates u, v of the hit
// point with respect to vertices b and c.
func (r Ray) IntersectTriangle(a, b, c ms3.Vec) (t, u, v float32, hit bool) {
	e1 := ms3.Sub(b, a)
	e2 := ms3.Sub(c, a)
	p := ms3.Cross(r.Dir, e2)
	det := dot(e1, p)
	if math32.Abs(det) < TriangleEpsilon*ms3.Norm(r.Dir)*ms3.Norm(e1)*ms3.Norm(e2) {
		return 0, 0, 0, false
	}
	invDet := 1 / det
	s := ms3.Sub(r.Origin, a)
	u = dot(s, p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := ms3.Cross(s, e1)
	v = dot(r.Dir, q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = dot(e2, q) * invDet
	if t < r.TMin || t > r.TMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

func dot(a, b ms3.Vec) float32 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

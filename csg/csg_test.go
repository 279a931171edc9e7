package csg

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/solid"
	"github.com/soypat/glgl/math/ms3"
)

func cubeAt(t *testing.T, side float32, center ms3.Vec) *solid.Solid {
	t.Helper()
	s, err := solid.Cube(side)
	if err != nil {
		t.Fatal(err)
	}
	s.Transform(geom.Translation(center))
	return s
}

func near(a, b, tol float32) bool { return math32.Abs(a-b) <= tol }

func TestSubtractCorner(t *testing.T) {
	a := cubeAt(t, 2, ms3.Vec{})
	b := cubeAt(t, 1, ms3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	res, err := Subtract(a, b, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s := res.Solid
	if got := s.Volume(); !near(got, 7, 1e-3) {
		t.Errorf("volume got %v. want 7", got)
	}
	if got := len(s.Shells()); got != 1 {
		t.Errorf("shells got %d. want 1", got)
	}
	if !s.IsWatertight() || !s.IsManifold() {
		t.Errorf("watertight=%v manifold=%v", s.IsWatertight(), s.IsManifold())
	}
	if got := s.SurfaceArea(); !near(got, 24, 1e-3) {
		t.Errorf("surface area got %v. want 24", got)
	}
	if got := len(s.FindConcaveEdges()); got != 3 {
		t.Errorf("concave edges got %d. want 3", got)
	}
	if res.Stats.SplitCount == 0 || res.Stats.IntersectionCount == 0 || res.Stats.NewVertexCount == 0 {
		t.Errorf("stats got %+v", res.Stats)
	}
	for _, f := range s.Faces() {
		if len(f.Vertices) != 3 {
			t.Fatalf("face with %d vertices in triangulated result", len(f.Vertices))
		}
	}
	if s.ContainsPoint(ms3.Vec{X: 0.5, Y: 0.5, Z: 0.5}) || !s.ContainsPoint(ms3.Vec{X: -0.5, Y: 0.5, Z: 0.5}) {
		t.Error("containment does not match the notch")
	}
	if !near(a.Volume(), 8, 1e-5) || !near(b.Volume(), 1, 1e-5) {
		t.Error("operands modified")
	}
}

func TestUnionCommutes(t *testing.T) {
	a := cubeAt(t, 2, ms3.Vec{})
	c := cubeAt(t, 2, ms3.Vec{X: 1, Y: 1, Z: 1})
	ab, err := Union(a, c, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := Union(c, a, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []BooleanResult{ab, ba} {
		if got := r.Solid.Volume(); !near(got, 15, 1e-3) {
			t.Errorf("volume got %v. want 15", got)
		}
		if !r.Solid.IsWatertight() || len(r.Solid.Shells()) != 1 {
			t.Errorf("watertight=%v shells=%d", r.Solid.IsWatertight(), len(r.Solid.Shells()))
		}
	}
	if !near(ab.Solid.SurfaceArea(), ba.Solid.SurfaceArea(), 1e-3) {
		t.Errorf("areas differ: %v and %v", ab.Solid.SurfaceArea(), ba.Solid.SurfaceArea())
	}
	if ab.Solid.BoundingBox() != ba.Solid.BoundingBox() {
		t.Errorf("bounds differ: %v and %v", ab.Solid.BoundingBox(), ba.Solid.BoundingBox())
	}
	for _, p := range []ms3.Vec{{X: -0.5, Y: -0.5, Z: -0.5}, {X: 1.5, Y: 1.5, Z: 1.5}, {X: 1.5, Y: -0.5, Z: 0}, {X: 0.5, Y: 0.5, Z: 0.5}} {
		if ab.Solid.ContainsPoint(p) != ba.Solid.ContainsPoint(p) {
			t.Errorf("containment of %v differs", p)
		}
	}
}

func TestIntersect(t *testing.T) {
	a := cubeAt(t, 2, ms3.Vec{})
	c := cubeAt(t, 2, ms3.Vec{X: 1, Y: 1, Z: 1})
	res, err := Intersect(a, c, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Solid.Volume(); !near(got, 1, 1e-4) {
		t.Errorf("volume got %v. want 1", got)
	}
	bb := res.Solid.BoundingBox()
	if !near(bb.Min.X, 0, 1e-5) || !near(bb.Max.Z, 1, 1e-5) {
		t.Errorf("bounds got %v. want [0,1]³", bb)
	}
	com := res.Solid.CenterOfMass()
	if !near(com.X, 0.5, 1e-4) || !near(com.Y, 0.5, 1e-4) || !near(com.Z, 0.5, 1e-4) {
		t.Errorf("center of mass got %v", com)
	}
}

func TestIdentityLaws(t *testing.T) {
	a := cubeAt(t, 2, ms3.Vec{})
	empty := solid.New()
	for _, test := range []struct {
		name   string
		op     Op
		a, b   *solid.Solid
		volume float32
	}{
		{name: "A∪∅", op: Union, a: a, b: empty, volume: 8},
		{name: "∅∪A", op: Union, a: empty, b: a, volume: 8},
		{name: "A-∅", op: Subtract, a: a, b: empty, volume: 8},
		{name: "∅-A", op: Subtract, a: empty, b: a, volume: 0},
		{name: "A∩∅", op: Intersect, a: a, b: empty, volume: 0},
		{name: "A∩A", op: Intersect, a: a, b: a, volume: 8},
		{name: "A∪A", op: Union, a: a, b: a, volume: 8},
		{name: "A-A", op: Subtract, a: a, b: a, volume: 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			res, err := Apply(test.op, test.a, test.b, DefaultOptions(), nil)
			if err != nil {
				t.Fatal(err)
			}
			s := res.Solid
			if got := s.Volume(); !near(got, test.volume, 1e-4) {
				t.Errorf("volume got %v. want %v", got, test.volume)
			}
			if test.volume == 0 && !s.IsEmpty() {
				t.Errorf("expected empty solid, got %d faces", s.FaceCount())
			}
			if test.volume != 0 {
				if !s.IsWatertight() || !near(s.SurfaceArea(), 24, 1e-4) {
					t.Errorf("watertight=%v area=%v", s.IsWatertight(), s.SurfaceArea())
				}
				if s == a || s.ID() == a.ID() {
					t.Error("result aliases the operand")
				}
			}
		})
	}
}

func TestDisjoint(t *testing.T) {
	a := cubeAt(t, 2, ms3.Vec{})
	far := cubeAt(t, 2, ms3.Vec{X: 10})
	u, err := Union(a, far, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Solid.Volume(); !near(got, 16, 1e-4) || len(u.Solid.Shells()) != 2 {
		t.Errorf("disjoint union got volume %v with %d shells", got, len(u.Solid.Shells()))
	}
	if u.Solid.IsValid() {
		t.Error("two separate shells reported as one valid solid")
	}
	s, err := Subtract(a, far, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Solid.Volume(); !near(got, 8, 1e-5) {
		t.Errorf("disjoint subtract volume got %v. want 8", got)
	}
	i, err := Intersect(a, far, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !i.Solid.IsEmpty() {
		t.Error("disjoint intersection is not empty")
	}
}

func TestMergeCoplanar(t *testing.T) {
	a := cubeAt(t, 2, ms3.Vec{})
	b := cubeAt(t, 1, ms3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	opts := DefaultOptions()
	opts.Triangulate = false
	plain, err := Subtract(a, b, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	opts.MergeCoplanar = true
	merged, err := Subtract(a, b, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Solid.FaceCount() >= plain.Solid.FaceCount() {
		t.Errorf("merge kept %d faces of %d", merged.Solid.FaceCount(), plain.Solid.FaceCount())
	}
	for _, r := range []BooleanResult{plain, merged} {
		if got := r.Solid.Volume(); !near(got, 7, 1e-3) || !r.Solid.IsWatertight() {
			t.Errorf("volume got %v watertight=%v", got, r.Solid.IsWatertight())
		}
	}
	for _, f := range merged.Solid.Faces() {
		if f.Surface != solid.SurfacePlanar {
			t.Errorf("face surface got %v", f.Surface)
		}
	}
}

func TestOptionsAndCancel(t *testing.T) {
	a := cubeAt(t, 2, ms3.Vec{})
	b := cubeAt(t, 1, ms3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	_, err := Subtract(a, b, Options{MergeEpsilon: -1}, nil)
	if brep.KindOf(err) != brep.KindValidation {
		t.Errorf("negative epsilon got %v", err)
	}
	if _, err := Union(nil, b, DefaultOptions(), nil); err == nil {
		t.Error("nil operand accepted")
	}
	if _, err := Apply(Op(9), a, b, DefaultOptions(), nil); err == nil {
		t.Error("unknown op accepted")
	}
	calls := 0
	_, err = Subtract(a, b, DefaultOptions(), func(f float32) bool {
		calls++
		return f < 0.5
	})
	if !errors.Is(err, brep.ErrCancelled) {
		t.Errorf("cancelled op got %v", err)
	}
	if calls == 0 {
		t.Error("progress never called")
	}
	_, err = Subtract(a, b, Options{MaxDepth: 2}, nil)
	if brep.KindOf(err) != brep.KindCapacity {
		t.Errorf("shallow trees got %v. want capacity error", err)
	}
	var last float32
	_, err = Intersect(a, b, DefaultOptions(), func(f float32) bool {
		if f < last {
			t.Errorf("progress went back from %v to %v", last, f)
		}
		last = f
		return true
	})
	if err != nil || last != 1 {
		t.Errorf("got err %v, last progress %v", err, last)
	}
}

func closedManifold(t *testing.T, name string, s *solid.Solid) {
	t.Helper()
	if s.IsEmpty() {
		t.Errorf("%s: empty result", name)
		return
	}
	if !s.IsWatertight() || !s.IsManifold() {
		t.Errorf("%s: watertight=%v manifold=%v", name, s.IsWatertight(), s.IsManifold())
	}
}

// checkInclusionExclusion runs all three operations on a and b and checks
// that vol(a∪b) + vol(a∩b) = vol(a) + vol(b) and vol(a-b) = vol(a) - vol(a∩b).
func checkInclusionExclusion(t *testing.T, a, b *solid.Solid) (union, inter, diff *solid.Solid) {
	t.Helper()
	run := func(op Op) *solid.Solid {
		res, err := Apply(op, a, b, DefaultOptions(), nil)
		if err != nil {
			t.Fatalf("%v: %v", op, err)
		}
		closedManifold(t, op.String(), res.Solid)
		return res.Solid
	}
	union, inter, diff = run(Union), run(Intersect), run(Subtract)
	va, vb := a.Volume(), b.Volume()
	vu, vi, vd := union.Volume(), inter.Volume(), diff.Volume()
	tol := 2e-3 * (va + vb)
	if !near(vu+vi, va+vb, tol) {
		t.Errorf("union %v + intersection %v got %v. want %v", vu, vi, vu+vi, va+vb)
	}
	if !near(vd, va-vi, tol) {
		t.Errorf("difference got %v. want %v", vd, va-vi)
	}
	if vi <= 0 || vu < max(va, vb)-tol || vu > va+vb {
		t.Errorf("volumes out of range: union %v intersection %v", vu, vi)
	}
	return union, inter, diff
}

func TestSphereBooleans(t *testing.T) {
	// 320 triangles on more face planes than bsp.DefaultMaxDepth.
	a, err := solid.UVSphere(1, 12, 16)
	if err != nil {
		t.Fatal(err)
	}
	b, err := solid.UVSphere(1, 12, 16)
	if err != nil {
		t.Fatal(err)
	}
	b.Transform(geom.Translation(ms3.Vec{X: 0.71, Y: 0.13, Z: 0.07}))
	union, inter, _ := checkInclusionExclusion(t, a, b)
	if got := len(union.Shells()); got != 1 {
		t.Errorf("union shells got %d. want 1", got)
	}
	mid := ms3.Vec{X: 0.35, Y: 0.06, Z: 0.03}
	if !union.ContainsPoint(mid) || !inter.ContainsPoint(mid) {
		t.Error("overlap midpoint not inside union and intersection")
	}
	if inter.ContainsPoint(ms3.Vec{X: -0.8}) || !union.ContainsPoint(ms3.Vec{X: -0.8}) {
		t.Error("point only in a misclassified")
	}
}

func TestSphereMinusCube(t *testing.T) {
	sphere, err := solid.UVSphere(1, 12, 16)
	if err != nil {
		t.Fatal(err)
	}
	cube := cubeAt(t, 1, ms3.Vec{X: 0.45, Y: 0.37, Z: 0.29})
	_, _, diff := checkInclusionExclusion(t, sphere, cube)
	if diff.ContainsPoint(ms3.Vec{X: 0.45, Y: 0.37, Z: 0.29}) {
		t.Error("cube centre left inside the difference")
	}
	if !diff.ContainsPoint(ms3.Vec{X: -0.5, Y: -0.3}) {
		t.Error("sphere point outside the cube removed")
	}
}

func TestCylinderBooleans(t *testing.T) {
	// 72 side segments give more than 64 face planes.
	cyl, err := solid.Cylinder(0.6, 2, 72)
	if err != nil {
		t.Fatal(err)
	}
	box := cubeAt(t, 1, ms3.Vec{X: 0.31, Y: -0.23, Z: 0.17})
	checkInclusionExclusion(t, cyl, box)
}

func TestCancelLargeBoolean(t *testing.T) {
	a, err := solid.UVSphere(1, 26, 24)
	if err != nil {
		t.Fatal(err)
	}
	b := a.Clone()
	b.Transform(geom.Translation(ms3.Vec{X: 0.5, Y: 0.1}))
	var calls []float32
	_, err = Union(a, b, DefaultOptions(), func(f float32) bool {
		calls = append(calls, f)
		return len(calls) < 2
	})
	if !errors.Is(err, brep.ErrCancelled) {
		t.Fatalf("got %v. want cancellation", err)
	}
	// The second report comes from within the first tree build.
	if len(calls) != 2 || calls[0] != 0 || !(calls[1] > 0 && calls[1] < 0.15) {
		t.Errorf("reports got %v", calls)
	}
}

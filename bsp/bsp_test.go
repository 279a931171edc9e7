package bsp

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

func cubePolygons(t *testing.T, pool *Pool, side float32) []Polygon {
	t.Helper()
	m := mesh.Box(ms3.Vec{X: side, Y: side, Z: side})
	first := pool.AddPositions(m.Positions)
	var polys []Polygon
	for i := 0; i < m.FaceCount(); i++ {
		a, b, c := m.Face(i)
		p, err := pool.Polygon([]uint32{first + a, first + b, first + c}, int32(i))
		if err != nil {
			t.Fatal(err)
		}
		polys = append(polys, p)
	}
	return polys
}

func cubeTree(t *testing.T, pool *Pool, side float32) *Tree {
	t.Helper()
	tree, err := New(pool, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Build(cubePolygons(t, pool, side), nil); err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestPolygonPlane(t *testing.T) {
	var pool Pool
	first := pool.AddPositions([]ms3.Vec{{}, {X: 1}, {Y: 1}, {X: 2}})
	p, err := pool.Polygon([]uint32{first, first + 1, first + 2}, 7)
	if err != nil {
		t.Fatal(err)
	}
	if p.Plane.N != (ms3.Vec{Z: 1}) || p.Plane.D != 0 || p.Tag != 7 {
		t.Errorf("polygon got plane %v tag %d", p.Plane, p.Tag)
	}
	f := p.Flip()
	if f.Plane.N != (ms3.Vec{Z: -1}) || f.Verts[0] != first+2 || p.Verts[0] != first {
		t.Errorf("flip got %v, original %v", f, p)
	}
	_, err = pool.Polygon([]uint32{first, first + 1, first + 3}, 0)
	if brep.KindOf(err) != brep.KindDegenerate {
		t.Errorf("collinear polygon got %v. want degenerate error", err)
	}
	_, err = pool.Polygon([]uint32{first, first + 1, 99}, 0)
	if brep.KindOf(err) != brep.KindValidation {
		t.Errorf("out of pool polygon got %v. want validation error", err)
	}
}

func TestSplitSharesCrossings(t *testing.T) {
	var pool Pool
	pool.AddPositions([]ms3.Vec{
		{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1},
		{X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1},
	})
	sq, err := pool.Polygon([]uint32{0, 1, 2, 3}, 0)
	if err != nil {
		t.Fatal(err)
	}
	wall, err := pool.Polygon([]uint32{3, 2, 4, 5}, 1)
	if err != nil {
		t.Fatal(err)
	}
	pl := geom.Plane{N: ms3.Vec{X: 1}}
	var cf, cb, front, back []Polygon
	if err := pool.split(pl, sq, DefaultEpsilon, &cf, &cb, &front, &back); err != nil {
		t.Fatal(err)
	}
	if len(front) != 1 || len(back) != 1 || len(cf)+len(cb) != 0 {
		t.Fatalf("split got front %d back %d", len(front), len(back))
	}
	if got := pool.Area(front[0].Verts) + pool.Area(back[0].Verts); math32.Abs(got-4) > 1e-6 {
		t.Errorf("fragment area got %v. want 4", got)
	}
	if front[0].Plane != sq.Plane || back[0].Tag != 0 {
		t.Error("fragments lost their parent plane or tag")
	}
	if err := pool.split(pl, wall, DefaultEpsilon, &cf, &cb, &front, &back); err != nil {
		t.Fatal(err)
	}
	st := pool.Stats()
	if st.Splits != 2 || st.Intersections != 4 || st.NewVertices != 3 {
		t.Errorf("stats got %+v. want 2 splits 4 intersections 3 new vertices", st)
	}
	if len(pool.Vertices) != 9 {
		t.Errorf("pool got %d vertices. want 9", len(pool.Vertices))
	}
}

func TestTreeContains(t *testing.T) {
	tree := cubeTree(t, &Pool{}, 2)
	if got := tree.PolygonCount(); got != 12 {
		t.Errorf("polygon count got %d. want 12", got)
	}
	if d := tree.Depth(); d < 2 || d > 7 {
		t.Errorf("depth got %d", d)
	}
	inside := []ms3.Vec{{}, {X: 0.9, Y: -0.9, Z: 0.5}}
	outside := []ms3.Vec{{X: 2}, {X: 0.5, Y: 0.5, Z: -1.5}}
	for _, p := range inside {
		if !tree.Contains(p) {
			t.Errorf("%v reported outside", p)
		}
	}
	for _, p := range outside {
		if tree.Contains(p) {
			t.Errorf("%v reported inside", p)
		}
	}
	tree.Invert()
	if tree.Contains(ms3.Vec{}) || !tree.Contains(ms3.Vec{X: 2}) {
		t.Error("inverted tree did not swap inside and outside")
	}
	for _, p := range tree.AllPolygons() {
		if p.Plane.Distance(ms3.Vec{}) <= 0 {
			t.Errorf("inverted polygon %v does not face inwards", p.Verts)
		}
	}
}

func TestClipPolygons(t *testing.T) {
	pool := &Pool{}
	tree := cubeTree(t, pool, 2)
	first := pool.AddPositions([]ms3.Vec{
		{X: -2, Y: -0.5}, {X: 2, Y: -0.5}, {X: 2, Y: 0.5}, {X: -2, Y: 0.5},
	})
	strip, err := pool.Polygon([]uint32{first, first + 1, first + 2, first + 3}, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tree.ClipPolygons([]Polygon{strip}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var area float32
	for _, p := range got {
		area += pool.Area(p.Verts)
		for _, v := range p.Verts {
			if x := pool.Pos(v).X; x > -1+1e-5 && x < 1-1e-5 {
				t.Errorf("clipped vertex %v inside the cube", pool.Pos(v))
			}
		}
	}
	if math32.Abs(area-2) > 1e-5 {
		t.Errorf("outside area got %v. want 2", area)
	}

	empty, err := New(pool, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := empty.ClipPolygons([]Polygon{strip}, nil); len(got) != 1 {
		t.Errorf("empty tree clipped to %d polygons", len(got))
	}
	if empty.Contains(ms3.Vec{}) {
		t.Error("empty tree contains origin")
	}
}

func TestClipToAndLimits(t *testing.T) {
	other := cubeTree(t, &Pool{}, 1)
	tree := cubeTree(t, &Pool{}, 2)
	if err := tree.ClipTo(other, nil); brep.KindOf(err) != brep.KindInternal {
		t.Errorf("clip across pools got %v", err)
	}

	pool := &Pool{}
	shallow, err := New(pool, Options{MaxDepth: 2})
	if err != nil {
		t.Fatal(err)
	}
	err = shallow.Build(cubePolygons(t, pool, 2), nil)
	if brep.KindOf(err) != brep.KindCapacity {
		t.Errorf("deep build got %v. want capacity error", err)
	}
	if _, err := New(pool, Options{Epsilon: -1}); err == nil {
		t.Error("negative epsilon accepted")
	}

	nan := &Pool{}
	polys := cubePolygons(t, nan, 2)
	v := nan.AddPositions([]ms3.Vec{{X: math32.NaN()}, {X: 1}, {Y: 1}})
	polys = append(polys, Polygon{Verts: []uint32{v, v + 1, v + 2}, Plane: polys[0].Plane})
	tree, err = New(nan, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Build(polys, nil); err == nil {
		t.Error("NaN vertex accepted")
	}
}

func meshPolygons(t *testing.T, pool *Pool, m *mesh.Data) []Polygon {
	t.Helper()
	first := pool.AddPositions(m.Positions)
	polys := make([]Polygon, 0, m.FaceCount())
	for i := 0; i < m.FaceCount(); i++ {
		a, b, c := m.Face(i)
		p, err := pool.Polygon([]uint32{first + a, first + b, first + c}, int32(i))
		if err != nil {
			t.Fatal(err)
		}
		polys = append(polys, p)
	}
	return polys
}

func TestConvexDepth(t *testing.T) {
	// 320 triangles on about 180 distinct planes. Every face plane of a
	// convex solid leaves all other faces behind it.
	sphere := mesh.UVSphere(1, 12, 16)
	pool := &Pool{}
	tree, err := New(pool, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Build(meshPolygons(t, pool, sphere), nil); err != nil {
		t.Fatal(err)
	}
	if d := tree.Depth(); d <= DefaultMaxDepth || d > tree.MaxDepth() {
		t.Errorf("depth got %d. want within (%d, %d]", d, DefaultMaxDepth, tree.MaxDepth())
	}
	if got := tree.PolygonCount(); got != sphere.FaceCount() {
		t.Errorf("polygon count got %d. want %d", got, sphere.FaceCount())
	}
	if !tree.Contains(ms3.Vec{X: 0.3, Y: -0.2, Z: 0.1}) || tree.Contains(ms3.Vec{X: 0.8, Y: 0.8}) {
		t.Error("sphere containment mismatch")
	}

	capped, err := New(pool, Options{MaxDepth: DefaultMaxDepth})
	if err != nil {
		t.Fatal(err)
	}
	err = capped.Build(meshPolygons(t, pool, sphere), nil)
	if brep.KindOf(err) != brep.KindCapacity {
		t.Errorf("explicit cap got %v. want capacity error", err)
	}
}

func TestBalancedPlane(t *testing.T) {
	// Four parallel slabs: a middle plane leaves two on each side.
	var polys []Polygon
	pool := &Pool{}
	for i := 0; i < 4; i++ {
		z := float32(i)
		v := pool.AddPositions([]ms3.Vec{{Z: z}, {X: 1, Z: z}, {Y: 1, Z: z}})
		p, err := pool.Polygon([]uint32{v, v + 1, v + 2}, int32(i))
		if err != nil {
			t.Fatal(err)
		}
		polys = append(polys, p)
	}
	tree, err := New(pool, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got := tree.choosePlane(polys)
	if got != polys[1].Plane && got != polys[2].Plane {
		t.Errorf("chose plane %v. want one of the middle slabs", got)
	}
}

func TestBuildAndClipTick(t *testing.T) {
	sphere := mesh.UVSphere(1, 26, 24)
	pool := &Pool{}
	polys := meshPolygons(t, pool, sphere)
	calls := 0
	cancel := func(float32) bool {
		calls++
		return false
	}
	tree, err := New(pool, Options{})
	if err != nil {
		t.Fatal(err)
	}
	err = tree.Build(polys, brep.NewTicker("build", cancel, len(polys)))
	if !errors.Is(err, brep.ErrCancelled) || calls != 1 {
		t.Errorf("cancelled build got %v after %d reports", err, calls)
	}

	tree, err = New(pool, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Build(polys, nil); err != nil {
		t.Fatal(err)
	}
	calls = 0
	_, err = tree.ClipPolygons(polys, brep.NewTicker("clip", cancel, len(polys)))
	if !errors.Is(err, brep.ErrCancelled) || calls != 1 {
		t.Errorf("cancelled clip got %v after %d reports", err, calls)
	}
}

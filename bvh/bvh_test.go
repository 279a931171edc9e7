package bvh

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

func sphere(r float32, rings, segs int) ([]ms3.Vec, []uint32) {
	m := mesh.UVSphere(r, rings, segs)
	return m.Positions, m.Indices
}

func mustNew(t *testing.T, pos []ms3.Vec, idx []uint32) *BVH {
	t.Helper()
	b, err := New(pos, idx, nil)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func bruteIntersect(pos []ms3.Vec, idx []uint32, r geom.Ray) (best Hit, ok bool) {
	for i := 0; i < len(idx)/3; i++ {
		t, u, v, hit := r.IntersectTriangle(pos[idx[3*i]], pos[idx[3*i+1]], pos[idx[3*i+2]])
		if hit && (!ok || t < best.T) {
			best, ok = Hit{T: t, U: u, V: v, Prim: uint32(i)}, true
		}
	}
	return best, ok
}

func randVec(rng *rand.Rand, scale float32) ms3.Vec {
	return ms3.Vec{
		X: scale * (2*rng.Float32() - 1),
		Y: scale * (2*rng.Float32() - 1),
		Z: scale * (2*rng.Float32() - 1),
	}
}

func TestIntersectMatchesBruteForce(t *testing.T) {
	pos, idx := sphere(1, 16, 24)
	b := mustNew(t, pos, idx)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		origin := randVec(rng, 3)
		target := randVec(rng, 1.2)
		r := geom.NewRay(origin, ms3.Sub(target, origin))
		want, wantOK := bruteIntersect(pos, idx, r)
		got, gotOK := b.Intersect(r)
		if gotOK != wantOK {
			t.Fatalf("ray %d: hit got %v. want %v", i, gotOK, wantOK)
		}
		if gotOK && math32.Abs(got.T-want.T) > 1e-5 {
			t.Fatalf("ray %d: t got %v. want %v", i, got.T, want.T)
		}
	}
}

func TestIntersectAnyAll(t *testing.T) {
	pos, idx := sphere(1, 12, 16)
	b := mustNew(t, pos, idx)
	r := geom.NewRay(ms3.Vec{X: -5, Y: 0.01, Z: 0.02}, ms3.Vec{X: 1})
	hits := b.IntersectAll(r)
	if len(hits) != 2 {
		t.Fatalf("got %d hits. want 2", len(hits))
	}
	if hits[0].T > hits[1].T {
		t.Error("hits not sorted")
	}
	if !b.IntersectAny(r) {
		t.Error("IntersectAny missed")
	}
	miss := geom.NewRay(ms3.Vec{X: -5, Y: 3}, ms3.Vec{X: 1})
	if b.IntersectAny(miss) || len(b.IntersectAll(miss)) != 0 {
		t.Error("ray above sphere reported hit")
	}
	if _, ok := b.Intersect(miss); ok {
		t.Error("Intersect reported hit for missing ray")
	}
}

func TestQueryBox(t *testing.T) {
	pos, idx := sphere(1, 12, 16)
	b := mustNew(t, pos, idx)
	query := ms3.Box{Min: ms3.Vec{X: 0.5, Y: -1, Z: -1}, Max: ms3.Vec{X: 2, Y: 1, Z: 1}}
	got := b.QueryBox(query)
	want := 0
	for i := 0; i < len(idx)/3; i++ {
		if d3.Overlaps(d3.TriangleBox(pos[idx[3*i]], pos[idx[3*i+1]], pos[idx[3*i+2]]), query) {
			want++
		}
	}
	if len(got) != want || want == 0 {
		t.Errorf("box query got %d triangles. want %d", len(got), want)
	}
}

func TestQueryFrustum(t *testing.T) {
	pos, idx := sphere(1, 12, 16)
	b := mustNew(t, pos, idx)
	// Half space x >= 0.5.
	planes := []geom.Plane{geom.PlaneFromNormal(ms3.Vec{X: 1}, ms3.Vec{X: 0.5})}
	got := b.QueryFrustum(planes)
	want := 0
	for i := 0; i < len(idx)/3; i++ {
		if d3.TriangleBox(pos[idx[3*i]], pos[idx[3*i+1]], pos[idx[3*i+2]]).Max.X >= 0.5 {
			want++
		}
	}
	if len(got) != want || want == 0 {
		t.Errorf("frustum query got %d triangles. want %d", len(got), want)
	}
	if all := b.QueryFrustum(nil); len(all) != len(idx)/3 {
		t.Errorf("unbounded frustum got %d. want all %d", len(all), len(idx)/3)
	}
}

func TestClosestPoint(t *testing.T) {
	pos, idx := sphere(1, 16, 24)
	b := mustNew(t, pos, idx)
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		p := randVec(rng, 3)
		_, _, got, ok := b.ClosestPoint(p)
		if !ok {
			t.Fatal("empty result")
		}
		want := math32.Inf(1)
		for f := 0; f < len(idx)/3; f++ {
			q := closestOnTriangle(p, pos[idx[3*f]], pos[idx[3*f+1]], pos[idx[3*f+2]])
			want = math32.Min(want, d3.Dist(p, q))
		}
		if math32.Abs(got-want) > 1e-5 {
			t.Fatalf("point %v: distance got %v. want %v", p, got, want)
		}
	}
}

func TestClosestOnTriangle(t *testing.T) {
	a, bb, c := ms3.Vec{}, ms3.Vec{X: 1}, ms3.Vec{Y: 1}
	for _, test := range []struct {
		p, want ms3.Vec
	}{
		{p: ms3.Vec{X: -1, Y: -1}, want: a},
		{p: ms3.Vec{X: 2, Y: -0.5}, want: bb},
		{p: ms3.Vec{X: 0.25, Y: 0.25, Z: 3}, want: ms3.Vec{X: 0.25, Y: 0.25}},
		{p: ms3.Vec{X: 0.5, Y: -2}, want: ms3.Vec{X: 0.5}},
		{p: ms3.Vec{X: 1, Y: 1}, want: ms3.Vec{X: 0.5, Y: 0.5}},
	} {
		got := closestOnTriangle(test.p, a, bb, c)
		if !d3.EqualWithin(got, test.want, 1e-6) {
			t.Errorf("closest to %v got %v. want %v", test.p, got, test.want)
		}
	}
}

func TestStructure(t *testing.T) {
	pos, idx := sphere(1, 24, 32)
	b := mustNew(t, pos, idx)
	seen := make([]int, len(idx)/3)
	for i := range b.nodes {
		n := &b.nodes[i]
		if n.IsLeaf() {
			if n.Count > MaxLeafSize {
				t.Errorf("leaf %d holds %d triangles", i, n.Count)
			}
			for _, p := range b.prims[n.First : n.First+n.Count] {
				seen[p]++
				if tri := b.Triangle(p); !d3.ContainsBox(n.Bounds, d3.TriangleBox(tri[0], tri[1], tri[2]), 0) {
					t.Errorf("triangle %d escapes leaf %d", p, i)
				}
			}
			continue
		}
		for _, c := range []uint32{n.Left, n.Right} {
			if !d3.ContainsBox(n.Bounds, b.nodes[c].Bounds, 0) {
				t.Errorf("child %d escapes node %d", c, i)
			}
		}
	}
	for p, n := range seen {
		if n != 1 {
			t.Fatalf("triangle %d referenced %d times", p, n)
		}
	}
	if b.Depth() > MaxDepth || b.NodeCount() == 0 {
		t.Errorf("depth %d nodes %d", b.Depth(), b.NodeCount())
	}
}

func TestOwnsCopy(t *testing.T) {
	pos, idx := sphere(1, 8, 8)
	b := mustNew(t, pos, idx)
	r := geom.NewRay(ms3.Vec{X: -5, Y: 0.01, Z: 0.02}, ms3.Vec{X: 1})
	before, _ := b.Intersect(r)
	for i := range pos {
		pos[i] = ms3.Scale(10, pos[i])
	}
	idx[0] = 1
	after, _ := b.Intersect(r)
	if before != after {
		t.Errorf("source mutation changed result: %v -> %v", before, after)
	}
}

func TestNewErrors(t *testing.T) {
	b, err := New(nil, nil, nil)
	if err != nil || b.NodeCount() != 0 {
		t.Fatalf("empty build: %v %d", err, b.NodeCount())
	}
	if _, ok := b.Intersect(geom.NewRay(ms3.Vec{}, ms3.Vec{X: 1})); ok {
		t.Error("empty BVH hit")
	}
	if _, err := New([]ms3.Vec{{}}, []uint32{0, 0, 1}, nil); brep.KindOf(err) != brep.KindValidation {
		t.Errorf("got %v. want validation error", err)
	}
}

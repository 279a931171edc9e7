package decimate

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/halfedge"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

func TestQuadric(t *testing.T) {
	// Planes x=1, y=2, z=3.
	var q Quadric
	for _, pl := range []struct {
		n ms3.Vec
		d float32
	}{
		{n: ms3.Vec{X: 1}, d: -1},
		{n: ms3.Vec{Y: 1}, d: -2},
		{n: ms3.Vec{Z: 1}, d: -3},
	} {
		q = q.Add(PlaneQuadric(pl.n, pl.d))
	}
	p, ok := q.Optimal()
	if !ok || !d3.EqualWithin(p, ms3.Vec{X: 1, Y: 2, Z: 3}, 1e-5) {
		t.Fatalf("optimal got %v ok=%v", p, ok)
	}
	if got := q.Eval(p); got > 1e-6 {
		t.Errorf("error at optimum got %v", got)
	}
	if got := q.Eval(ms3.Vec{X: 2, Y: 2, Z: 3}); math32.Abs(got-1) > 1e-6 {
		t.Errorf("error one unit off got %v. want 1", got)
	}
	if got := q.Scale(2).Eval(ms3.Vec{}); math32.Abs(got-2*14) > 1e-4 {
		t.Errorf("scaled error got %v. want 28", got)
	}
	single := PlaneQuadric(ms3.Vec{Z: 1}, 0)
	if _, ok := single.Optimal(); ok {
		t.Error("rank one quadric solved")
	}
}

func TestTargetFaces(t *testing.T) {
	for _, test := range []struct {
		opts Options
		want int
	}{
		{opts: Options{Mode: TargetRatio, Ratio: 0.25}, want: 352},
		{opts: Options{Mode: TargetRatio, Ratio: 0}, want: 0},
		{opts: Options{Mode: TargetVertexCount, VertexCount: 100}, want: 196},
		{opts: Options{Mode: TargetVertexCount, VertexCount: 1}, want: 0},
		{opts: Options{Mode: TargetFaceCount, FaceCount: 500}, want: 500},
	} {
		if got := TargetFaces(test.opts, 1408); got != test.want {
			t.Errorf("%v: got %d. want %d", test.opts.Mode, got, test.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	for _, opts := range []Options{
		{Ratio: 1.5},
		{Ratio: -0.1},
		{Ratio: math32.NaN()},
		{Mode: TargetFaceCount, FaceCount: -1},
		{Ratio: 0.5, MaxError: -1},
		{Mode: 7},
	} {
		if err := opts.Validate(); brep.KindOf(err) != brep.KindValidation {
			t.Errorf("%+v: got %v. want validation error", opts, err)
		}
	}
	if err := DefaultOptions().Validate(); err != nil {
		t.Error(err)
	}
	_, err := Simplify(mesh.Box(ms3.Vec{X: 1, Y: 1, Z: 1}), Options{Ratio: 2}, nil)
	if brep.KindOf(err) != brep.KindValidation {
		t.Errorf("Simplify accepted ratio 2: %v", err)
	}
}

func TestDecimateSphere(t *testing.T) {
	src := mesh.UVSphere(1, 24, 32)
	if src.FaceCount() != 1408 {
		t.Fatalf("sphere has %d faces", src.FaceCount())
	}
	opts := DefaultOptions()
	opts.Ratio = 0.25
	opts.PreserveBoundary = true
	res, err := Simplify(src, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := res.Mesh
	if out.FaceCount() > 352 {
		t.Errorf("face count got %d. want <= 352", out.FaceCount())
	}
	ideal := 4 * math32.Pi / 3
	if v := out.Volume(); v < 0.8*ideal || v > 1.05*ideal {
		t.Errorf("volume got %v. want within [%v, %v]", v, 0.8*ideal, 1.05*ideal)
	}
	hm, err := halfedge.FromMesh(out)
	if err != nil {
		t.Fatal(err)
	}
	if nm := hm.FindNonManifoldEdges(); len(nm) != 0 {
		t.Errorf("non-manifold edges %v", nm)
	}
	if !hm.IsClosed() {
		t.Error("decimated sphere is open")
	}
	if out.SignedVolume() <= 0 {
		t.Error("decimated sphere is inside out")
	}
	st := res.Stats
	if st.InitialFaces != 1408 || st.FinalFaces != out.FaceCount() || st.Collapses == 0 {
		t.Errorf("stats %+v", st)
	}
	if st.FinalVertices != out.VertexCount() {
		t.Errorf("final vertices %d != %d", st.FinalVertices, out.VertexCount())
	}
}

func TestDecimateMonotonic(t *testing.T) {
	src := mesh.UVSphere(1, 16, 24)
	for _, ratio := range []float32{1, 0.75, 0.5, 0.3} {
		opts := DefaultOptions()
		opts.Ratio = ratio
		res, err := Simplify(src, opts, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got, limit := res.Mesh.FaceCount(), ratio*float32(src.FaceCount()); float32(got) > limit {
			t.Errorf("ratio %v: %d faces exceeds %v", ratio, got, limit)
		}
	}
}

func TestPreserveBoundary(t *testing.T) {
	const n = 8
	src := mesh.Grid(n)
	opts := DefaultOptions()
	opts.Ratio = 0.3
	res, err := Simplify(src, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := res.Mesh
	if out.FaceCount() >= src.FaceCount() {
		t.Fatalf("no faces removed: %d", out.FaceCount())
	}
	if got := out.SurfaceArea(); math32.Abs(got-n*n) > 1e-3 {
		t.Errorf("area got %v. want %v", got, n*n)
	}
	hm, err := halfedge.FromMesh(out)
	if err != nil {
		t.Fatal(err)
	}
	onSquare := func(p ms3.Vec) bool {
		const eps = 1e-4
		return math32.Abs(p.X) < eps || math32.Abs(p.X-n) < eps || math32.Abs(p.Y) < eps || math32.Abs(p.Y-n) < eps
	}
	for v := range hm.Vertices {
		if hm.IsBoundaryVertex(uint32(v)) && !onSquare(hm.Vertices[v].Pos) {
			t.Errorf("boundary vertex %d moved off the boundary to %v", v, hm.Vertices[v].Pos)
		}
	}
	for _, corner := range []ms3.Vec{{}, {X: n}, {Y: n}, {X: n, Y: n}} {
		if _, dist := out.NearestVertex(corner); dist > 1e-5 {
			t.Errorf("corner %v lost, nearest vertex %v away", corner, dist)
		}
	}
}

func TestLockedVertices(t *testing.T) {
	src := mesh.UVSphere(1, 12, 16)
	opts := DefaultOptions()
	opts.Ratio = 0.2
	opts.LockedVertices = []uint32{0, 40}
	res, err := Simplify(src, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range opts.LockedVertices {
		if _, dist := res.Mesh.NearestVertex(src.Positions[v]); dist != 0 {
			t.Errorf("locked vertex %d moved by %v", v, dist)
		}
	}
}

func TestMaxErrorStopsEarly(t *testing.T) {
	opts := DefaultOptions()
	opts.Ratio = 0.25
	opts.MaxError = 1e-12
	res, err := Simplify(mesh.UVSphere(1, 24, 32), opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mesh.FaceCount() <= res.Stats.TargetFaces {
		t.Errorf("reached target %d despite max error bound", res.Stats.TargetFaces)
	}
	if res.Stats.MaxError > opts.MaxError {
		t.Errorf("performed collapse with error %v", res.Stats.MaxError)
	}
}

func TestDecimateCancelled(t *testing.T) {
	_, err := Simplify(mesh.UVSphere(1, 12, 16), DefaultOptions(), func(float32) bool { return false })
	if !errors.Is(err, brep.ErrCancelled) {
		t.Errorf("got %v. want cancellation", err)
	}
}

func TestDecimateDegenerate(t *testing.T) {
	md := mesh.New(3, 1)
	md.AddVertex(ms3.Vec{})
	md.AddVertex(ms3.Vec{X: 1})
	md.AddVertex(ms3.Vec{Y: 1})
	md.AddFace(0, 0, 1)
	_, err := Simplify(md, DefaultOptions(), nil)
	if brep.KindOf(err) != brep.KindDegenerate {
		t.Errorf("got %v. want degenerate error", err)
	}
}

func TestTetrahedronNotCollapsed(t *testing.T) {
	md := mesh.New(4, 4)
	md.AddVertex(ms3.Vec{})
	md.AddVertex(ms3.Vec{X: 1})
	md.AddVertex(ms3.Vec{Y: 1})
	md.AddVertex(ms3.Vec{Z: 1})
	md.AddFace(0, 2, 1)
	md.AddFace(0, 1, 3)
	md.AddFace(0, 3, 2)
	md.AddFace(1, 2, 3)
	opts := Options{Mode: TargetFaceCount, FaceCount: 0}
	res, err := Simplify(md, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mesh.FaceCount() != 4 {
		t.Errorf("tetrahedron collapsed to %d faces", res.Mesh.FaceCount())
	}
}

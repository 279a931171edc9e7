package mesh

import (
	"errors"
	"slices"
	"sort"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
)

const tol = 1e-5

func cube(side float32) *Data { return Box(ms3.Vec{X: side, Y: side, Z: side}) }

func near(a, b float32) bool { return math32.Abs(a-b) <= tol }

func TestCubeMeasure(t *testing.T) {
	m := cube(2)
	if !m.IsValid() {
		t.Fatal(m.Validate())
	}
	if got := m.SurfaceArea(); !near(got, 24) {
		t.Errorf("surface area got %v. want 24", got)
	}
	if got := m.Volume(); !near(got, 8) {
		t.Errorf("volume got %v. want 8", got)
	}
	if got := m.SignedVolume(); !near(got, 8) {
		t.Errorf("signed volume got %v. want 8", got)
	}
	if got := m.Centroid(); !near(got.X, 0) || !near(got.Y, 0) || !near(got.Z, 0) {
		t.Errorf("centroid got %v. want origin", got)
	}
	bb := m.Bounds()
	if bb.Min != (ms3.Vec{X: -1, Y: -1, Z: -1}) || bb.Max != (ms3.Vec{X: 1, Y: 1, Z: 1}) {
		t.Errorf("bounds got %v", bb)
	}
}

func TestFlipNormals(t *testing.T) {
	m := cube(2)
	m.ComputeNormals()
	n0 := m.Normals[7]
	m.FlipNormals()
	if got := m.SignedVolume(); !near(got, -8) {
		t.Errorf("signed volume after flip got %v. want -8", got)
	}
	if got := m.Volume(); !near(got, 8) {
		t.Errorf("volume after flip got %v. want 8", got)
	}
	if m.Normals[7] != ms3.Scale(-1, n0) {
		t.Errorf("normal not negated: %v", m.Normals[7])
	}
}

func TestComputeNormals(t *testing.T) {
	m := cube(2)
	m.AddVertex(ms3.Vec{X: 5}) // isolated vertex gets the fallback normal.
	for _, weighted := range []bool{false, true} {
		if weighted {
			m.ComputeNormalsWeighted()
		} else {
			m.ComputeNormals()
		}
		inv := 1 / math32.Sqrt(3)
		n := m.Normals[7] // (+,+,+) corner
		if !near(n.X, inv) || !near(n.Y, inv) || !near(n.Z, inv) {
			t.Errorf("weighted=%v corner normal got %v", weighted, n)
		}
		if m.Normals[8] != (ms3.Vec{Z: 1}) {
			t.Errorf("weighted=%v isolated normal got %v. want (0,0,1)", weighted, m.Normals[8])
		}
	}
}

func TestAddVertexNormalGap(t *testing.T) {
	var m Data
	m.AddVertex(ms3.Vec{})
	m.AddVertex(ms3.Vec{X: 1})
	idx := m.AddVertexNormal(ms3.Vec{Y: 1}, ms3.Vec{Z: 1})
	if idx != 2 {
		t.Fatalf("index got %d. want 2", idx)
	}
	if len(m.Normals) != 3 || m.Normals[0] != (ms3.Vec{}) || m.Normals[2] != (ms3.Vec{Z: 1}) {
		t.Errorf("normals got %v", m.Normals)
	}
	m.AddFace(0, 1, 2)
	if !m.IsValid() {
		t.Error(m.Validate())
	}
}

func TestFaceOutOfRange(t *testing.T) {
	m := cube(1)
	if got := m.FaceArea(100); got != 0 {
		t.Errorf("area of missing face got %v", got)
	}
	if got := m.FaceNormal(-1); got != (ms3.Vec{}) {
		t.Errorf("normal of missing face got %v", got)
	}
	v0, _, _ := m.Face(12)
	if !brep.IsAbsent(v0) {
		t.Errorf("missing face index got %d", v0)
	}
}

func TestValidate(t *testing.T) {
	m := cube(1)
	m.Indices = append(m.Indices, 0)
	err := m.Validate()
	if brep.KindOf(err) != brep.KindValidation {
		t.Errorf("got %v. want validation error", err)
	}
	m = cube(1)
	m.AddFace(0, 1, 99)
	if m.IsValid() {
		t.Error("out of range index accepted")
	}
	m = cube(1)
	m.Normals = make([]ms3.Vec, 3)
	if m.IsValid() {
		t.Error("normal count mismatch accepted")
	}
}

func TestDegenerateFaces(t *testing.T) {
	m := cube(2)
	m.AddFace(0, 0, 1)
	m.AddVertex(ms3.Vec{X: 10})
	m.AddVertex(ms3.Vec{X: 11})
	m.AddVertex(ms3.Vec{X: 12}) // collinear.
	m.AddFace(8, 9, 10)
	if got := m.CountDegenerateFaces(1e-6); got != 2 {
		t.Fatalf("degenerate count got %d. want 2", got)
	}
	if got := m.RemoveDegenerateFaces(1e-6); got != 2 {
		t.Fatalf("removed got %d. want 2", got)
	}
	if m.FaceCount() != 12 {
		t.Errorf("face count got %d. want 12", m.FaceCount())
	}
	if got := m.RemoveUnusedVertices(); got != 3 {
		t.Errorf("unused vertices removed got %d. want 3", got)
	}
	if !m.IsValid() || !near(m.Volume(), 8) {
		t.Errorf("mesh corrupted after cleanup: %v volume=%v", m.Validate(), m.Volume())
	}
}

func TestMergeDuplicateVertices(t *testing.T) {
	soup := FromTriangles(cube(2).Triangles())
	if soup.VertexCount() != 36 {
		t.Fatalf("soup vertex count got %d", soup.VertexCount())
	}
	if got := soup.CountDuplicateVertices(1e-6); got != 28 {
		t.Errorf("duplicate count got %d. want 28", got)
	}
	removed, err := soup.MergeDuplicateVertices(1e-6, nil)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 28 || soup.VertexCount() != 8 {
		t.Errorf("removed %d leaving %d vertices. want 28 and 8", removed, soup.VertexCount())
	}
	if !soup.IsValid() || !near(soup.Volume(), 8) {
		t.Errorf("merged mesh invalid: %v volume=%v", soup.Validate(), soup.Volume())
	}
}

func TestMergeAcrossCellBoundary(t *testing.T) {
	// With eps=0.01 the two points straddle the cell boundary at x=0.01.
	var m Data
	m.AddVertex(ms3.Vec{X: 0.0099})
	m.AddVertex(ms3.Vec{X: 0.0101})
	m.AddVertex(ms3.Vec{X: 1})
	m.AddFace(0, 1, 2)
	removed, err := m.MergeDuplicateVertices(0.01, nil)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed got %d. want 1", removed)
	}
	if m.Indices[0] != m.Indices[1] {
		t.Errorf("indices not rewritten: %v", m.Indices)
	}
}

func TestMergeCancelled(t *testing.T) {
	var m Data
	for i := 0; i < 2*brep.ProgressStep; i++ {
		m.AddVertex(ms3.Vec{X: float32(i % 7)})
	}
	calls := 0
	_, err := m.MergeDuplicateVertices(1e-6, func(float32) bool {
		calls++
		return false
	})
	if !errors.Is(err, brep.ErrCancelled) {
		t.Fatalf("got %v. want cancellation", err)
	}
	if calls != 1 || m.VertexCount() != 2*brep.ProgressStep {
		t.Errorf("calls=%d vertices=%d, mesh should be untouched", calls, m.VertexCount())
	}
}

func TestMergePanickingProgress(t *testing.T) {
	var m Data
	for i := 0; i < brep.ProgressStep; i++ {
		m.AddVertex(ms3.Vec{Y: float32(i)})
	}
	_, err := m.MergeDuplicateVertices(1e-6, func(float32) bool { panic("boom") })
	if brep.KindOf(err) != brep.KindCancelled {
		t.Errorf("got %v. want cancellation", err)
	}
}

func TestTransform(t *testing.T) {
	m := cube(2)
	m.ComputeNormals()
	_ = m.Bounds()
	m.Translate(ms3.Vec{X: 3})
	if bb := m.Bounds(); !near(bb.Min.X, 2) || !near(bb.Max.X, 4) {
		t.Errorf("bounds not invalidated: %v", bb)
	}
	m.Scale(ms3.Vec{X: 1, Y: 1, Z: 2})
	if got := m.Volume(); !near(got, 16) {
		t.Errorf("scaled volume got %v. want 16", got)
	}
	for i, n := range m.Normals {
		if !near(ms3.Norm(n), 1) {
			t.Errorf("normal %d not unit after transform: %v", i, n)
		}
	}
	m.Rotate(geom.QuatFromAxisAngle(ms3.Vec{Z: 1}, math32.Pi/2))
	if got := m.Volume(); math32.Abs(got-16) > 1e-4 {
		t.Errorf("rotated volume got %v. want 16", got)
	}
	m.Scale(ms3.Vec{X: -1, Y: 1, Z: 1})
	if got := m.SignedVolume(); math32.Abs(got-16) > 1e-4 {
		t.Errorf("mirrored signed volume got %v. want 16", got)
	}
	bb := m.Bounds()
	center := ms3.Scale(0.5, ms3.Add(bb.Min, bb.Max))
	for i, n := range m.Normals {
		if d3.Dot(n, ms3.Sub(m.Positions[i], center)) <= 0 {
			t.Errorf("mirrored normal %d points inwards", i)
		}
	}
	if r := m.Validate(); !m.IsValid() {
		t.Errorf("mirrored mesh invalid: %v", r)
	}
}

func TestAppendAndClone(t *testing.T) {
	a := cube(2)
	b := cube(2)
	b.Translate(ms3.Vec{X: 10})
	c := a.Clone()
	c.Append(b)
	if c.FaceCount() != 24 || c.VertexCount() != 16 {
		t.Fatalf("append got %s", c)
	}
	if got := c.Volume(); !near(got, 16) {
		t.Errorf("volume got %v. want 16", got)
	}
	if a.FaceCount() != 12 {
		t.Error("clone shares storage with original")
	}
	c.ShrinkToFit()
	if cap(c.Indices) != len(c.Indices) {
		t.Error("ShrinkToFit left spare capacity")
	}
}

func TestNearestVertex(t *testing.T) {
	m := cube(2)
	idx, dist := m.NearestVertex(ms3.Vec{X: 0.9, Y: 1.2, Z: 0.8})
	if idx != 7 {
		t.Errorf("nearest got %d. want 7", idx)
	}
	if want := math32.Sqrt(0.01 + 0.04 + 0.04); !near(dist, want) {
		t.Errorf("distance got %v. want %v", dist, want)
	}
	loc := NewVertexLocator(m.Positions)
	got := loc.NearestN(ms3.Vec{X: 1, Y: 1, Z: 1.5}, 2)
	if len(got) != 2 || got[0] != 7 {
		t.Errorf("nearest 2 got %v", got)
	}
	empty := NewVertexLocator(nil)
	if idx, _ := empty.Nearest(ms3.Vec{}); !brep.IsAbsent(idx) {
		t.Errorf("empty locator got %d", idx)
	}
}

func TestPrimitives(t *testing.T) {
	for _, test := range []struct {
		name   string
		m      *Data
		faces  int
		volume float32
		vtol   float32
	}{
		{name: "box", m: Box(ms3.Vec{X: 1, Y: 2, Z: 3}), faces: 12, volume: 6, vtol: tol},
		{name: "sphere", m: UVSphere(1, 24, 32), faces: 1408, volume: 4 * math32.Pi / 3, vtol: 0.1},
		{name: "cylinder", m: Cylinder(1, 2, 64), faces: 256, volume: 2 * math32.Pi, vtol: 0.02},
	} {
		t.Run(test.name, func(t *testing.T) {
			if err := test.m.Validate(); err != nil {
				t.Fatal(err)
			}
			if got := test.m.FaceCount(); got != test.faces {
				t.Errorf("faces got %d. want %d", got, test.faces)
			}
			if got := test.m.SignedVolume(); math32.Abs(got-test.volume) > test.vtol {
				t.Errorf("signed volume got %v. want %v", got, test.volume)
			}
			if got := test.m.CountDuplicateVertices(1e-6); got != 0 {
				t.Errorf("%d duplicate vertices", got)
			}
		})
	}
	g := Grid(3)
	if g.FaceCount() != 18 || !near(g.SurfaceArea(), 9) {
		t.Errorf("grid got %s area %v", g, g.SurfaceArea())
	}
}

func TestWithinAndWeld(t *testing.T) {
	m := cube(2)
	loc := NewVertexLocator(m.Positions)
	got := loc.Within(ms3.Vec{X: 1, Y: 1}, 1.01)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Errorf("within got %v. want [3 7]", got)
	}
	if got := loc.Within(ms3.Vec{}, 0.5); len(got) != 0 {
		t.Errorf("within empty ball got %v", got)
	}
	remap, unique := Weld([]ms3.Vec{{}, {X: 1}, {X: 1e-7}, {X: 1}}, 1e-6)
	if len(unique) != 2 {
		t.Fatalf("unique got %d. want 2", len(unique))
	}
	if want := []uint32{0, 1, 0, 1}; !slices.Equal(remap, want) {
		t.Errorf("remap got %v. want %v", remap, want)
	}
	// Distance exactly eps does not merge.
	_, unique = Weld([]ms3.Vec{{}, {X: 0.5}, {X: 1}, {X: 1.25}}, 0.5)
	if len(unique) != 3 {
		t.Errorf("weld at distance eps got %d unique. want 3", len(unique))
	}
}

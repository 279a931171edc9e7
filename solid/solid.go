// Package solid implements a boundary representation of polyhedral solids.
//
// A Solid owns arrays of vertices, edges, faces and shells that refer to
// each other by index. Faces are stored as vertex loops so n-gons are
// representable; edges and shells are derived from the loops by
// rebuildTopology. Every record carries an ID that survives topology
// preserving edits such as Transform and FlipOrientation.
//
// Measurements and validation reports are cached lazily behind a
// per-instance lock. A Solid must not be copied by value; use Clone.
package solid

import (
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

// ID identifies a solid or one of its records. IDs are unique within the
// process and never reused.
type ID uint64

var lastID atomic.Uint64

// NewID returns a fresh identifier.
func NewID() ID { return ID(lastID.Add(1)) }

const (
	// WeldEpsilon is the distance under which FromMesh merges vertices.
	WeldEpsilon = 1e-6
	// DefaultSharpAngle is the dihedral angle above which edges are flagged sharp.
	DefaultSharpAngle = 30 * math32.Pi / 180
)

// SurfaceKind tags the underlying surface a face approximates.
type SurfaceKind uint8

const (
	SurfacePlanar SurfaceKind = iota
	SurfaceCylindrical
	SurfaceSpherical
	SurfaceFreeform
)

func (k SurfaceKind) String() string {
	switch k {
	case SurfacePlanar:
		return "planar"
	case SurfaceCylindrical:
		return "cylindrical"
	case SurfaceSpherical:
		return "spherical"
	case SurfaceFreeform:
		return "freeform"
	}
	return "unknown surface"
}

// LoopType distinguishes a face's outer boundary from hole loops.
type LoopType uint8

const (
	LoopOuter LoopType = iota
	LoopInner
)

// Orientation reports whether a face normal points away from the material.
type Orientation uint8

const (
	Outward Orientation = iota
	Inward
)

// Vertex is a solid vertex.
type Vertex struct {
	ID     ID
	Pos    ms3.Vec
	Normal ms3.Vec
	Edges  []uint32
	Faces  []uint32
	// Curvature is the angle deficit divided by the vertex's share of the
	// incident face area, a discrete Gaussian curvature estimate.
	Curvature float32
	Sharp     bool
	Boundary  bool
}

// Edge joins V0 < V1 and lists every face that uses it.
type Edge struct {
	ID     ID
	V0, V1 uint32
	Faces  []uint32
	Length float32
	Dir    ms3.Vec
	Mid    ms3.Vec
	// Dihedral is the signed angle between the normals of the two incident
	// faces: positive across convex edges, negative across concave ones and
	// zero for flat or non two-sided edges.
	Dihedral    float32
	Sharp       bool
	Seam        bool
	Boundary    bool
	NonManifold bool
}

// Face is a planar polygon whose Vertices loop is counter-clockwise seen
// from the side its normal points to. Edges[i] joins Vertices[i] and
// Vertices[i+1].
type Face struct {
	ID          ID
	Vertices    []uint32
	Edges       []uint32
	Normal      ms3.Vec
	Centroid    ms3.Vec
	Area        float32
	Surface     SurfaceKind
	Material    int32
	Group       int32
	Loop        LoopType
	Orientation Orientation
}

// Shell is a maximal edge-connected set of faces.
type Shell struct {
	Faces  []uint32
	Closed bool
	// Outer is set on the shell bounding the material. Other shells bound voids.
	Outer bool
	// Volume is the signed enclosed volume. Correctly oriented voids are negative.
	Volume float32
	Area   float32
	Bounds ms3.Box
}

// Polygon describes a face for FromPolygons.
type Polygon struct {
	Loop     []uint32
	Surface  SurfaceKind
	Material int32
	Group    int32
}

// Solid is a boundary representation.
type Solid struct {
	id       ID
	vertices []Vertex
	edges    []Edge
	faces    []Face
	shells   []Shell
	outer    int

	mu    sync.Mutex
	cache cache
}

type cache struct {
	volumeOK bool
	volume   float32
	report   *Report
	accel    *faceBVH
	accelErr error
	locator  *mesh.VertexLocator
}

// New returns an empty solid.
func New() *Solid {
	return &Solid{id: NewID(), outer: -1}
}

// FromMesh builds a solid from a triangle mesh. Vertices closer than
// WeldEpsilon are merged first and faces that collapse under the merge are
// dropped. Unreferenced vertices are discarded. md is not modified.
func FromMesh(md *mesh.Data) (*Solid, error) {
	const op = "solid.FromMesh"
	if err := md.Validate(); err != nil {
		return nil, brep.Wrap(err, brep.KindValidation, op)
	}
	w := md.Clone()
	if _, err := w.MergeDuplicateVertices(WeldEpsilon, nil); err != nil {
		return nil, brep.Wrap(err, brep.KindInternal, op)
	}
	polys := make([]Polygon, 0, w.FaceCount())
	for i := 0; i < w.FaceCount(); i++ {
		a, b, c := w.Face(i)
		if a == b || b == c || c == a {
			continue
		}
		polys = append(polys, Polygon{Loop: []uint32{a, b, c}})
	}
	return FromPolygons(w.Positions, polys)
}

// FromPolygons builds a solid from faces given as loops into positions.
// Loops must have at least three distinct vertices and finite positions.
// Unreferenced positions are discarded.
func FromPolygons(positions []ms3.Vec, polys []Polygon) (*Solid, error) {
	const op = "solid.FromPolygons"
	remap := make([]uint32, len(positions))
	for i := range remap {
		remap[i] = brep.Absent
	}
	s := New()
	s.faces = make([]Face, 0, len(polys))
	for fi, p := range polys {
		if len(p.Loop) < 3 {
			return nil, brep.Errorf(brep.KindValidation, op, "face %d has %d vertices, need at least 3", fi, len(p.Loop))
		}
		loop := make([]uint32, len(p.Loop))
		for i, v := range p.Loop {
			if int(v) >= len(positions) {
				return nil, brep.Errorf(brep.KindValidation, op, "face %d references vertex %d of %d", fi, v, len(positions)).
					WithHint("check the index buffer against the position count")
			}
			for _, u := range p.Loop[:i] {
				if u == v {
					return nil, brep.Errorf(brep.KindValidation, op, "face %d visits vertex %d twice", fi, v).
						WithHint("merge duplicate vertices and drop degenerate faces first")
				}
			}
			if !d3.IsFinite(positions[v]) {
				return nil, brep.Errorf(brep.KindValidation, op, "vertex %d has non-finite position %v", v, positions[v])
			}
			if remap[v] == brep.Absent {
				remap[v] = uint32(len(s.vertices))
				s.vertices = append(s.vertices, Vertex{ID: NewID(), Pos: positions[v]})
			}
			loop[i] = remap[v]
		}
		s.faces = append(s.faces, Face{
			ID:       NewID(),
			Vertices: loop,
			Surface:  p.Surface,
			Material: p.Material,
			Group:    p.Group,
			Loop:     LoopOuter,
		})
	}
	s.rebuildTopology()
	return s, nil
}

// ID returns the solid's identifier.
func (s *Solid) ID() ID { return s.id }

// Vertices returns the vertex records. The slice must not be modified.
func (s *Solid) Vertices() []Vertex { return s.vertices }

// Edges returns the edge records. The slice must not be modified.
func (s *Solid) Edges() []Edge { return s.edges }

// Faces returns the face records. The slice must not be modified.
func (s *Solid) Faces() []Face { return s.faces }

// Shells returns the shells in order of their lowest face index.
func (s *Solid) Shells() []Shell { return s.shells }

// OuterShell returns the index of the outer shell or -1 if no single shell
// contains all others.
func (s *Solid) OuterShell() int { return s.outer }

func (s *Solid) VertexCount() int { return len(s.vertices) }
func (s *Solid) EdgeCount() int   { return len(s.edges) }
func (s *Solid) FaceCount() int   { return len(s.faces) }

// IsEmpty reports whether the solid has no faces.
func (s *Solid) IsEmpty() bool { return len(s.faces) == 0 }

// FindFace returns the index of the face with the given ID.
func (s *Solid) FindFace(id ID) (uint32, bool) {
	for i := range s.faces {
		if s.faces[i].ID == id {
			return uint32(i), true
		}
	}
	return brep.Absent, false
}

// FindEdge returns the index of the edge with the given ID.
func (s *Solid) FindEdge(id ID) (uint32, bool) {
	for i := range s.edges {
		if s.edges[i].ID == id {
			return uint32(i), true
		}
	}
	return brep.Absent, false
}

// Clone returns a deep copy with a new solid ID. Record IDs are kept.
func (s *Solid) Clone() *Solid {
	c := New()
	c.outer = s.outer
	c.vertices = make([]Vertex, len(s.vertices))
	for i, v := range s.vertices {
		v.Edges = append([]uint32(nil), v.Edges...)
		v.Faces = append([]uint32(nil), v.Faces...)
		c.vertices[i] = v
	}
	c.edges = make([]Edge, len(s.edges))
	for i, e := range s.edges {
		e.Faces = append([]uint32(nil), e.Faces...)
		c.edges[i] = e
	}
	c.faces = make([]Face, len(s.faces))
	for i, f := range s.faces {
		f.Vertices = append([]uint32(nil), f.Vertices...)
		f.Edges = append([]uint32(nil), f.Edges...)
		c.faces[i] = f
	}
	c.shells = make([]Shell, len(s.shells))
	for i, sh := range s.shells {
		sh.Faces = append([]uint32(nil), sh.Faces...)
		c.shells[i] = sh
	}
	return c
}

// Transform applies T to every vertex. Transforms that mirror space also
// reverse every face loop so the solid keeps its orientation.
func (s *Solid) Transform(T geom.Mat4) {
	for i := range s.vertices {
		s.vertices[i].Pos = T.MulPosition(s.vertices[i].Pos)
	}
	if T.Mat3().Det() < 0 {
		s.reverseLoops()
	}
	s.rebuildTopology()
}

// FlipOrientation reverses every face loop, turning the solid inside out.
func (s *Solid) FlipOrientation() {
	s.reverseLoops()
	s.rebuildTopology()
}

func (s *Solid) reverseLoops() {
	for i := range s.faces {
		loop := s.faces[i].Vertices
		for a, b := 0, len(loop)-1; a < b; a, b = a+1, b-1 {
			loop[a], loop[b] = loop[b], loop[a]
		}
	}
}

// ToMesh triangulates the solid into a mesh with vertex normals.
func (s *Solid) ToMesh() *mesh.Data {
	md := mesh.New(len(s.vertices), len(s.faces))
	for _, v := range s.vertices {
		md.AddVertexNormal(v.Pos, v.Normal)
	}
	for i := range s.faces {
		f := &s.faces[i]
		tris, center, needCenter := s.triangulate(f.Vertices)
		c := brep.Absent
		if needCenter {
			c = md.AddVertexNormal(center, f.Normal)
		}
		for _, t := range tris {
			for j := range t {
				if t[j] == brep.Absent {
					t[j] = c
				}
			}
			md.AddFace(t[0], t[1], t[2])
		}
	}
	return md
}

// Triangulate splits every face with more than three vertices into
// triangles that inherit the face's attributes. The first triangle keeps
// the face ID.
func (s *Solid) Triangulate() {
	faces := make([]Face, 0, len(s.faces))
	for _, f := range s.faces {
		if len(f.Vertices) == 3 {
			faces = append(faces, f)
			continue
		}
		tris, center, needCenter := s.triangulate(f.Vertices)
		c := brep.Absent
		if needCenter {
			c = uint32(len(s.vertices))
			s.vertices = append(s.vertices, Vertex{ID: NewID(), Pos: center})
		}
		for i, t := range tris {
			for j := range t {
				if t[j] == brep.Absent {
					t[j] = c
				}
			}
			tf := f
			tf.Vertices = []uint32{t[0], t[1], t[2]}
			tf.Edges = nil
			if i > 0 {
				tf.ID = NewID()
			}
			faces = append(faces, tf)
		}
	}
	s.faces = faces
	s.rebuildTopology()
}

// triangulate fans the convex loop from the first vertex whose fan has no
// degenerate triangle. Loops with collinear runs on every side fan around
// their centroid instead; those triangles reference brep.Absent for the
// centroid vertex.
func (s *Solid) triangulate(loop []uint32) (tris [][3]uint32, center ms3.Vec, needCenter bool) {
	n := len(loop)
	if n == 3 {
		return [][3]uint32{{loop[0], loop[1], loop[2]}}, center, false
	}
	for apex := 0; apex < n; apex++ {
		tris = tris[:0]
		ok := true
		a := loop[apex]
		for k := 1; k < n-1; k++ {
			b, c := loop[(apex+k)%n], loop[(apex+k+1)%n]
			if d3.TriArea(s.vertices[a].Pos, s.vertices[b].Pos, s.vertices[c].Pos) <= degenerateFanArea {
				ok = false
				break
			}
			tris = append(tris, [3]uint32{a, b, c})
		}
		if ok {
			return tris, center, false
		}
	}
	tris = tris[:0]
	for i := range loop {
		center = ms3.Add(center, s.vertices[loop[i]].Pos)
		tris = append(tris, [3]uint32{brep.Absent, loop[i], loop[(i+1)%n]})
	}
	return tris, ms3.Scale(1/float32(n), center), true
}

const degenerateFanArea = 1e-12

// invalidate drops every cached measurement.
func (s *Solid) invalidate() {
	s.mu.Lock()
	s.cache = cache{}
	s.mu.Unlock()
}

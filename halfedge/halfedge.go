// Package halfedge implements a half-edge adjacency structure built from
// indexed triangle soup. Construction tolerates non-manifold edges: a third
// or later face sharing an edge is kept but its half-edge is left without a
// twin.
//
// All relations are 32 bit indices; brep.Absent marks a missing relation.
package halfedge

import (
	"github.com/soypat/brep"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

// MaxFaceVertices bounds face loop traversals. Faces are triangles; the
// extra slot catches corrupted next pointers. Raise in lockstep if n-gon
// faces are ever supported.
const MaxFaceVertices = 4

// Vertex is a mesh vertex. HalfEdge is one outgoing half-edge, or Absent
// for isolated vertices. For boundary vertices it is chosen so that forward
// fan circulation visits the whole fan.
type Vertex struct {
	Pos      ms3.Vec
	Normal   ms3.Vec
	HalfEdge uint32
}

// HalfEdge is a directed edge on one face pointing at Vertex.
// Twin is Absent on open boundaries and on the third and later faces
// sharing a non-manifold edge.
type HalfEdge struct {
	Vertex uint32
	Face   uint32
	Next   uint32
	Prev   uint32
	Twin   uint32
}

// Face is a triangle. HalfEdge is Absent if the face was degenerate at build
// time; such faces own no half-edges.
type Face struct {
	HalfEdge uint32
	Normal   ms3.Vec
}

// Edge is an unordered vertex pair with V0 < V1.
type Edge struct {
	V0, V1 uint32
}

func makeEdge(a, b uint32) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{V0: a, V1: b}
}

func (e Edge) key() uint64 { return uint64(e.V0)<<32 | uint64(e.V1) }

// Mesh is a half-edge mesh. Its arrays may be read directly; mutate them
// only through package functions or the decimate package.
type Mesh struct {
	Vertices  []Vertex
	HalfEdges []HalfEdge
	Faces     []Face
}

// edgeSlot records the first two half-edges seen for an unordered edge and
// the total number of faces using it.
type edgeSlot struct {
	first, second uint32
	faces         int32
}

// Build constructs a half-edge mesh from positions and triangle indices.
// Faces with repeated vertex indices are kept as degenerate placeholders.
// Non-manifold edges are tolerated; see FindNonManifoldEdges. Two faces
// walking a shared edge in the same direction are not made twins and both
// half-edges stay twinless; see FindInconsistentEdges.
func Build(positions []ms3.Vec, indices []uint32) (*Mesh, error) {
	const op = "halfedge.Build"
	if len(indices)%3 != 0 {
		return nil, brep.Errorf(brep.KindValidation, op, "index count %d is not a multiple of 3", len(indices))
	}
	nv := uint32(len(positions))
	for i, idx := range indices {
		if idx >= nv {
			return nil, brep.Errorf(brep.KindValidation, op, "face %d references vertex %d, vertex count is %d", i/3, idx, nv).
				WithHint("validate the source mesh with IsValid() before building")
		}
	}
	nf := len(indices) / 3
	m := &Mesh{
		Vertices:  make([]Vertex, nv),
		HalfEdges: make([]HalfEdge, 0, 3*nf),
		Faces:     make([]Face, nf),
	}
	for i := range m.Vertices {
		m.Vertices[i] = Vertex{Pos: positions[i], HalfEdge: brep.Absent}
	}
	edges := make(map[uint64]edgeSlot, 3*nf/2)
	for f := 0; f < nf; f++ {
		v := [3]uint32{indices[3*f], indices[3*f+1], indices[3*f+2]}
		if v[0] == v[1] || v[1] == v[2] || v[2] == v[0] {
			m.Faces[f].HalfEdge = brep.Absent
			continue
		}
		base := uint32(len(m.HalfEdges))
		m.Faces[f].HalfEdge = base
		for j := uint32(0); j < 3; j++ {
			m.HalfEdges = append(m.HalfEdges, HalfEdge{
				Vertex: v[(j+1)%3],
				Face:   uint32(f),
				Next:   base + (j+1)%3,
				Prev:   base + (j+2)%3,
				Twin:   brep.Absent,
			})
		}
		for j := uint32(0); j < 3; j++ {
			h := base + j
			src := v[j]
			if m.Vertices[src].HalfEdge == brep.Absent {
				m.Vertices[src].HalfEdge = h
			}
			k := makeEdge(src, v[(j+1)%3]).key()
			slot, seen := edges[k]
			switch {
			case !seen:
				slot = edgeSlot{first: h, second: brep.Absent}
			case slot.faces == 1 && m.Source(slot.first) != src:
				// Only oppositely oriented pairs become twins.
				slot.second = h
				m.HalfEdges[h].Twin = slot.first
				m.HalfEdges[slot.first].Twin = h
			}
			// Third and later sightings stay twinless.
			slot.faces++
			edges[k] = slot
		}
	}
	m.rewindBoundaryVertices()
	m.ComputeFaceNormals()
	m.ComputeVertexNormals()
	return m, nil
}

// FromMesh builds a half-edge mesh from md's positions and indices.
func FromMesh(md *mesh.Data) (*Mesh, error) {
	return Build(md.Positions, md.Indices)
}

// rewindBoundaryVertices points each boundary vertex's outgoing half-edge at
// the start of its forward fan.
func (m *Mesh) rewindBoundaryVertices() {
	for v := range m.Vertices {
		m.Rewind(uint32(v))
	}
}

// Rewind walks v's fan backward through twin(prev(h)) and stores the first
// outgoing half-edge whose predecessor has no twin, so that forward
// circulation from it covers the whole fan. Interior vertices are unchanged.
func (m *Mesh) Rewind(v uint32) {
	h := m.Vertices[v].HalfEdge
	if h == brep.Absent {
		return
	}
	start := h
	limit := len(m.HalfEdges)
	for steps := 0; steps < limit; steps++ {
		t := m.HalfEdges[m.HalfEdges[h].Prev].Twin
		if t == brep.Absent {
			m.Vertices[v].HalfEdge = h
			return
		}
		h = t
		if h == start {
			return
		}
	}
}

// Source returns the origin vertex of half-edge h.
func (m *Mesh) Source(h uint32) uint32 {
	return m.HalfEdges[m.HalfEdges[h].Prev].Vertex
}

// Target returns the vertex half-edge h points at.
func (m *Mesh) Target(h uint32) uint32 { return m.HalfEdges[h].Vertex }

// IsBoundaryHalfEdge reports whether h has no twin.
func (m *Mesh) IsBoundaryHalfEdge(h uint32) bool { return m.HalfEdges[h].Twin == brep.Absent }

// FaceValid reports whether face f was non-degenerate at build time.
func (m *Mesh) FaceValid(f uint32) bool {
	return int(f) < len(m.Faces) && m.Faces[f].HalfEdge != brep.Absent
}

// ComputeFaceNormals recomputes every valid face's unit normal.
func (m *Mesh) ComputeFaceNormals() {
	for f := range m.Faces {
		m.Faces[f].Normal = ms3.Vec{}
		a, b, c, ok := m.FaceTriangle(uint32(f))
		if !ok {
			continue
		}
		m.Faces[f].Normal = d3.UnitOr(d3.TriNormal(m.Vertices[a].Pos, m.Vertices[b].Pos, m.Vertices[c].Pos), ms3.Vec{})
	}
}

// ComputeVertexNormals sets each vertex normal to the normalized area
// weighted sum of its face normals, falling back to (0,0,1).
func (m *Mesh) ComputeVertexNormals() {
	sums := make([]ms3.Vec, len(m.Vertices))
	for f := range m.Faces {
		a, b, c, ok := m.FaceTriangle(uint32(f))
		if !ok {
			continue
		}
		n := d3.TriNormal(m.Vertices[a].Pos, m.Vertices[b].Pos, m.Vertices[c].Pos)
		sums[a] = ms3.Add(sums[a], n)
		sums[b] = ms3.Add(sums[b], n)
		sums[c] = ms3.Add(sums[c], n)
	}
	for v := range m.Vertices {
		m.Vertices[v].Normal = d3.UnitOr(sums[v], ms3.Vec{Z: 1})
	}
}

// ToMesh exports positions and normals by index and one triangle per valid face.
func (m *Mesh) ToMesh() *mesh.Data {
	md := mesh.New(len(m.Vertices), len(m.Faces))
	md.Normals = make([]ms3.Vec, 0, len(m.Vertices))
	for _, v := range m.Vertices {
		md.AddVertexNormal(v.Pos, v.Normal)
	}
	for f := range m.Faces {
		a, b, c, ok := m.FaceTriangle(uint32(f))
		if ok {
			md.AddFace(a, b, c)
		}
	}
	return md
}

// VertexCount returns the number of vertex slots.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// FaceCount returns the number of face slots, including degenerate ones.
func (m *Mesh) FaceCount() int { return len(m.Faces) }

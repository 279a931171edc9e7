package halfedge

import (
	"fmt"
	"sort"

	"github.com/soypat/brep"
)

// faceEdgeCounts counts, for every unordered edge, the valid faces using it.
func (m *Mesh) faceEdgeCounts() map[Edge]int {
	counts := make(map[Edge]int, len(m.HalfEdges)/2)
	for f := range m.Faces {
		for _, h := range m.FaceHalfEdges(uint32(f)) {
			counts[makeEdge(m.Source(h), m.HalfEdges[h].Vertex)]++
		}
	}
	return counts
}

// Edges returns every unordered edge of the mesh sorted by vertex pair.
func (m *Mesh) Edges() []Edge {
	counts := m.faceEdgeCounts()
	out := make([]Edge, 0, len(counts))
	for e := range counts {
		out = append(out, e)
	}
	sortEdges(out)
	return out
}

// EdgeCount returns the number of distinct unordered edges.
func (m *Mesh) EdgeCount() int { return len(m.faceEdgeCounts()) }

// FindNonManifoldEdges returns the edges shared by three or more faces,
// sorted by vertex pair.
func (m *Mesh) FindNonManifoldEdges() []Edge {
	var out []Edge
	for e, n := range m.faceEdgeCounts() {
		if n > 2 {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

// FindInconsistentEdges returns the edges shared by exactly two faces that
// traverse it in the same direction, sorted by vertex pair. Such faces
// disagree on orientation and their half-edges are left without twins.
func (m *Mesh) FindInconsistentEdges() []Edge {
	counts := m.faceEdgeCounts()
	seen := make(map[Edge]bool)
	var out []Edge
	for f := range m.Faces {
		for _, h := range m.FaceHalfEdges(uint32(f)) {
			if m.HalfEdges[h].Twin != brep.Absent {
				continue
			}
			e := makeEdge(m.Source(h), m.HalfEdges[h].Vertex)
			if counts[e] == 2 && !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	sortEdges(out)
	return out
}

// FindNonManifoldVertices returns vertices whose link has more than one
// component: fan circulation reaches fewer faces than are incident to the
// vertex, or the fan crosses more than two boundary half-edges.
func (m *Mesh) FindNonManifoldVertices() []uint32 {
	incident := make([]int, len(m.Vertices))
	for f := range m.Faces {
		a, b, c, ok := m.FaceTriangle(uint32(f))
		if !ok {
			continue
		}
		incident[a]++
		incident[b]++
		incident[c]++
	}
	var out []uint32
	for v := range m.Vertices {
		if incident[v] == 0 {
			continue
		}
		fan := m.VertexOutgoing(uint32(v))
		boundary := 0
		for _, h := range fan {
			if m.HalfEdges[h].Twin == brep.Absent {
				boundary++
			}
			if m.HalfEdges[m.HalfEdges[h].Prev].Twin == brep.Absent {
				boundary++
			}
		}
		if len(fan) < incident[v] || boundary > 2 {
			out = append(out, uint32(v))
		}
	}
	return out
}

// IsManifold reports whether every edge has at most two faces and every
// vertex link is a single disk or half-disk.
func (m *Mesh) IsManifold() bool {
	return len(m.FindNonManifoldEdges()) == 0 && len(m.FindNonManifoldVertices()) == 0
}

// IsClosed reports whether every half-edge of a valid face has a twin.
func (m *Mesh) IsClosed() bool {
	for h := range m.HalfEdges {
		if m.HalfEdges[h].Twin == brep.Absent {
			return false
		}
	}
	return len(m.HalfEdges) > 0
}

// EulerCharacteristic returns V - E + F counting only vertices used by
// valid faces.
func (m *Mesh) EulerCharacteristic() int {
	var v, f int
	for i := range m.Vertices {
		if m.Vertices[i].HalfEdge != brep.Absent {
			v++
		}
	}
	for i := range m.Faces {
		if m.Faces[i].HalfEdge != brep.Absent {
			f++
		}
	}
	return v - m.EdgeCount() + f
}

// FindBoundaryLoops returns the open boundary loops as vertex cycles.
// Each loop starts at an unvisited twinless half-edge and advances to the
// next boundary half-edge by rotating next(twin(h)) around the shared
// vertex. Loops touching an endpoint of a non-manifold edge are omitted since
// their boundary is ambiguous; use FindNonManifoldEdges to locate them.
func (m *Mesh) FindBoundaryLoops() [][]uint32 {
	counts := m.faceEdgeCounts()
	pinned := make(map[uint32]bool)
	for e, n := range counts {
		if n > 2 {
			pinned[e.V0] = true
			pinned[e.V1] = true
		}
	}
	isBoundary := func(h uint32) bool {
		he := m.HalfEdges[h]
		return he.Twin == brep.Absent && counts[makeEdge(m.Source(h), he.Vertex)] == 1
	}
	visited := make([]bool, len(m.HalfEdges))
	limit := len(m.HalfEdges)
	var loops [][]uint32
	for start := range m.HalfEdges {
		h0 := uint32(start)
		if visited[h0] || !isBoundary(h0) {
			continue
		}
		var loop []uint32
		ok := false
		skip := false
		h := h0
		for steps := 0; steps < limit; steps++ {
			visited[h] = true
			v := m.HalfEdges[h].Vertex
			loop = append(loop, v)
			if pinned[v] {
				skip = true
			}
			next := m.HalfEdges[h].Next
			for rot := 0; rot < limit && m.HalfEdges[next].Twin != brep.Absent; rot++ {
				next = m.HalfEdges[m.HalfEdges[next].Twin].Next
			}
			if next == h0 {
				ok = true
				break
			}
			if visited[next] {
				break
			}
			h = next
		}
		if ok && !skip {
			loops = append(loops, loop)
		}
	}
	return loops
}

// Validate checks the per-half-edge invariants and returns the first
// violation as a validation error.
func (m *Mesh) Validate() error {
	const op = "halfedge.Validate"
	n := uint32(len(m.HalfEdges))
	bad := func(h int, format string, args ...any) error {
		return brep.Errorf(brep.KindValidation, op, "half-edge %d: %s", h, fmt.Sprintf(format, args...)).
			WithHint("rebuild the half-edge mesh from its source triangles")
	}
	for h, he := range m.HalfEdges {
		if he.Next >= n || he.Prev >= n || int(he.Vertex) >= len(m.Vertices) || int(he.Face) >= len(m.Faces) {
			return bad(h, "index out of range")
		}
		if m.HalfEdges[he.Next].Prev != uint32(h) {
			return bad(h, "prev(next(h)) != h")
		}
		if m.HalfEdges[he.Prev].Next != uint32(h) {
			return bad(h, "next(prev(h)) != h")
		}
		if he.Twin != brep.Absent {
			if he.Twin >= n || m.HalfEdges[he.Twin].Twin != uint32(h) {
				return bad(h, "twin(twin(h)) != h")
			}
		}
		cur := uint32(h)
		closed := false
		for i := 0; i < MaxFaceVertices; i++ {
			if m.HalfEdges[cur].Face != he.Face {
				return bad(h, "face loop crosses faces %d and %d", he.Face, m.HalfEdges[cur].Face)
			}
			cur = m.HalfEdges[cur].Next
			if cur == uint32(h) {
				closed = true
				break
			}
		}
		if !closed {
			return bad(h, "face loop does not close within %d steps", MaxFaceVertices)
		}
	}
	for v, vert := range m.Vertices {
		if vert.HalfEdge != brep.Absent && (vert.HalfEdge >= n || m.Source(vert.HalfEdge) != uint32(v)) {
			return brep.Errorf(brep.KindValidation, op, "vertex %d outgoing half-edge %d does not leave it", v, vert.HalfEdge)
		}
	}
	return nil
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].V0 != edges[j].V0 {
			return edges[i].V0 < edges[j].V0
		}
		return edges[i].V1 < edges[j].V1
	})
}

package halfedge

import "github.com/soypat/brep"

// FaceHalfEdges returns the half-edges bounding face f in loop order.
// Degenerate or out of range faces return nil.
func (m *Mesh) FaceHalfEdges(f uint32) []uint32 {
	if !m.FaceValid(f) {
		return nil
	}
	start := m.Faces[f].HalfEdge
	out := make([]uint32, 0, 3)
	h := start
	for i := 0; i < MaxFaceVertices; i++ {
		out = append(out, h)
		h = m.HalfEdges[h].Next
		if h == start {
			return out
		}
	}
	return out // Corrupted loop, partial result.
}

// FaceVertices returns the vertices of face f in counter-clockwise order.
func (m *Mesh) FaceVertices(f uint32) []uint32 {
	hs := m.FaceHalfEdges(f)
	if hs == nil {
		return nil
	}
	out := make([]uint32, len(hs))
	for i, h := range hs {
		out[i] = m.Source(h)
	}
	return out
}

// FaceTriangle returns the three vertices of face f without allocating.
func (m *Mesh) FaceTriangle(f uint32) (a, b, c uint32, ok bool) {
	if !m.FaceValid(f) {
		return brep.Absent, brep.Absent, brep.Absent, false
	}
	h := m.Faces[f].HalfEdge
	n := m.HalfEdges[h].Next
	return m.Source(h), m.HalfEdges[h].Vertex, m.HalfEdges[n].Vertex, true
}

// FaceNeighbors returns the faces sharing an edge with f through twin links.
func (m *Mesh) FaceNeighbors(f uint32) []uint32 {
	var out []uint32
	for _, h := range m.FaceHalfEdges(f) {
		if t := m.HalfEdges[h].Twin; t != brep.Absent {
			out = append(out, m.HalfEdges[t].Face)
		}
	}
	return out
}

// VertexOutgoing returns the half-edges leaving v. Iteration follows
// next(twin(h)) forward and, on reaching a boundary, twin(prev(h))
// backward from the start. Each direction is bounded by the half-edge
// count so corrupted twin chains return partial results instead of looping.
func (m *Mesh) VertexOutgoing(v uint32) []uint32 {
	if int(v) >= len(m.Vertices) {
		return nil
	}
	start := m.Vertices[v].HalfEdge
	if start == brep.Absent {
		return nil
	}
	limit := len(m.HalfEdges)
	out := []uint32{start}
	h := start
	closed := false
	for steps := 0; steps < limit; steps++ {
		t := m.HalfEdges[h].Twin
		if t == brep.Absent {
			break
		}
		h = m.HalfEdges[t].Next
		if h == start {
			closed = true
			break
		}
		out = append(out, h)
	}
	if closed {
		return out
	}
	h = start
	for steps := 0; steps < limit; steps++ {
		t := m.HalfEdges[m.HalfEdges[h].Prev].Twin
		if t == brep.Absent || t == start {
			break
		}
		h = t
		out = append(out, h)
	}
	return out
}

// VertexFaces returns the faces in v's fan.
func (m *Mesh) VertexFaces(v uint32) []uint32 {
	hs := m.VertexOutgoing(v)
	out := make([]uint32, len(hs))
	for i, h := range hs {
		out[i] = m.HalfEdges[h].Face
	}
	return out
}

// VertexNeighbors returns the distinct vertices adjacent to v in its fan,
// including the far end of boundary edges entering v.
func (m *Mesh) VertexNeighbors(v uint32) []uint32 {
	var out []uint32
	add := func(u uint32) {
		for _, w := range out {
			if w == u {
				return
			}
		}
		out = append(out, u)
	}
	for _, h := range m.VertexOutgoing(v) {
		add(m.HalfEdges[h].Vertex)
		add(m.Source(m.HalfEdges[h].Prev))
	}
	return out
}

// IsBoundaryVertex reports whether v lies on an open boundary.
func (m *Mesh) IsBoundaryVertex(v uint32) bool {
	for _, h := range m.VertexOutgoing(v) {
		if m.HalfEdges[h].Twin == brep.Absent || m.HalfEdges[m.HalfEdges[h].Prev].Twin == brep.Absent {
			return true
		}
	}
	return false
}

// FindHalfEdge returns the half-edge from a to b or Absent.
func (m *Mesh) FindHalfEdge(a, b uint32) uint32 {
	for _, h := range m.VertexOutgoing(a) {
		if m.HalfEdges[h].Vertex == b {
			return h
		}
	}
	return brep.Absent
}

package mesh

import (
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
)

// fallbackNormal replaces zero-length vertex normals.
var fallbackNormal = ms3.Vec{Z: 1}

// FaceNormal returns the unit normal of face i. Out of range or degenerate
// faces return the zero vector.
func (m *Data) FaceNormal(i int) ms3.Vec {
	if !m.faceValid(i) {
		return ms3.Vec{}
	}
	t := m.Triangle(i)
	return d3.UnitOr(d3.TriNormal(t[0], t[1], t[2]), ms3.Vec{})
}

// FaceArea returns the area of face i. Out of range faces return 0.
func (m *Data) FaceArea(i int) float32 {
	if !m.faceValid(i) {
		return 0
	}
	t := m.Triangle(i)
	return d3.TriArea(t[0], t[1], t[2])
}

// ComputeNormals sets each vertex normal to the normalized, area weighted
// sum of its incident face normals. Vertices with no usable incident face
// receive (0,0,1).
func (m *Data) ComputeNormals() {
	normals := make([]ms3.Vec, len(m.Positions))
	for i := 0; i < m.FaceCount(); i++ {
		if !m.faceValid(i) {
			continue
		}
		v0, v1, v2 := m.Face(i)
		// Unnormalized cross product: length is twice the area.
		n := d3.TriNormal(m.Positions[v0], m.Positions[v1], m.Positions[v2])
		normals[v0] = ms3.Add(normals[v0], n)
		normals[v1] = ms3.Add(normals[v1], n)
		normals[v2] = ms3.Add(normals[v2], n)
	}
	for i := range normals {
		normals[i] = d3.UnitOr(normals[i], fallbackNormal)
	}
	m.Normals = normals
}

// ComputeNormalsWeighted is like ComputeNormals but weights each incident
// face normal by the face's interior angle at the vertex.
func (m *Data) ComputeNormalsWeighted() {
	normals := make([]ms3.Vec, len(m.Positions))
	for i := 0; i < m.FaceCount(); i++ {
		if !m.faceValid(i) {
			continue
		}
		v0, v1, v2 := m.Face(i)
		p := [3]ms3.Vec{m.Positions[v0], m.Positions[v1], m.Positions[v2]}
		n := d3.UnitOr(d3.TriNormal(p[0], p[1], p[2]), ms3.Vec{})
		if n == (ms3.Vec{}) {
			continue
		}
		idx := [3]uint32{v0, v1, v2}
		for j := 0; j < 3; j++ {
			e1 := ms3.Sub(p[(j+1)%3], p[j])
			e2 := ms3.Sub(p[(j+2)%3], p[j])
			alpha := d3.Angle(e1, e2)
			normals[idx[j]] = ms3.Add(normals[idx[j]], ms3.Scale(alpha, n))
		}
	}
	for i := range normals {
		normals[i] = d3.UnitOr(normals[i], fallbackNormal)
	}
	m.Normals = normals
}

// FlipNormals negates every stored normal and reverses the winding of
// every triangle.
func (m *Data) FlipNormals() {
	for i := range m.Normals {
		m.Normals[i] = ms3.Scale(-1, m.Normals[i])
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		m.Indices[i+1], m.Indices[i+2] = m.Indices[i+2], m.Indices[i+1]
	}
}

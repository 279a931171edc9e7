// Package mesh implements an indexed triangle mesh with bulk geometric
// operations: normal generation, measurement, transformation and cleanup.
package mesh

import (
	"fmt"

	"github.com/soypat/brep"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms2"
	"github.com/soypat/glgl/math/ms3"
)

// Data is an indexed triangle mesh. Every contiguous triple of Indices is one
// counter-clockwise triangle. Normals and UVs are optional and, when present,
// have one entry per position.
//
// Methods that change positions or indices invalidate the cached bounds.
// Callers writing the exported slices directly must call InvalidateBounds.
type Data struct {
	Positions []ms3.Vec
	Normals   []ms3.Vec
	UVs       []ms2.Vec
	Indices   []uint32

	bounds   ms3.Box
	boundsOK bool
}

// New returns an empty mesh with capacity for nverts vertices and nfaces faces.
func New(nverts, nfaces int) *Data {
	return &Data{
		Positions: make([]ms3.Vec, 0, nverts),
		Indices:   make([]uint32, 0, 3*nfaces),
	}
}

// FromTriangles builds an unwelded mesh with three vertices per triangle.
// Use MergeDuplicateVertices to weld shared corners.
func FromTriangles(tris []ms3.Triangle) *Data {
	m := New(3*len(tris), len(tris))
	for _, t := range tris {
		i0 := m.AddVertex(t[0])
		i1 := m.AddVertex(t[1])
		i2 := m.AddVertex(t[2])
		m.AddFace(i0, i1, i2)
	}
	return m
}

// VertexCount returns the number of positions.
func (m *Data) VertexCount() int { return len(m.Positions) }

// FaceCount returns the number of triangles.
func (m *Data) FaceCount() int { return len(m.Indices) / 3 }

// IsEmpty returns true if the mesh has no faces.
func (m *Data) IsEmpty() bool { return len(m.Indices) == 0 }

// HasNormals reports whether the mesh carries one normal per vertex.
func (m *Data) HasNormals() bool {
	return len(m.Normals) > 0 && len(m.Normals) == len(m.Positions)
}

// HasUVs reports whether the mesh carries one texture coordinate per vertex.
func (m *Data) HasUVs() bool {
	return len(m.UVs) > 0 && len(m.UVs) == len(m.Positions)
}

// AddVertex appends a position and returns its index.
func (m *Data) AddVertex(pos ms3.Vec) uint32 {
	m.Positions = append(m.Positions, pos)
	m.boundsOK = false
	return uint32(len(m.Positions) - 1)
}

// AddVertexNormal appends a position with a normal and returns its index.
// If earlier vertices were added without normals the gap is filled with
// zero (uninitialized) normals; call ComputeNormals afterward when mixing
// AddVertex and AddVertexNormal.
func (m *Data) AddVertexNormal(pos, normal ms3.Vec) uint32 {
	idx := m.AddVertex(pos)
	for len(m.Normals) < int(idx) {
		m.Normals = append(m.Normals, ms3.Vec{})
	}
	m.Normals = append(m.Normals[:idx], normal)
	return idx
}

// AddFace appends a triangle. Indices are not checked; see IsValid.
func (m *Data) AddFace(v0, v1, v2 uint32) {
	m.Indices = append(m.Indices, v0, v1, v2)
	m.boundsOK = false
}

// Face returns the vertex indices of face i. Out of range faces return
// three brep.Absent indices.
func (m *Data) Face(i int) (v0, v1, v2 uint32) {
	if i < 0 || 3*i+2 >= len(m.Indices) {
		return brep.Absent, brep.Absent, brep.Absent
	}
	return m.Indices[3*i], m.Indices[3*i+1], m.Indices[3*i+2]
}

// Triangle returns the positions of face i. The face must be valid.
func (m *Data) Triangle(i int) ms3.Triangle {
	v0, v1, v2 := m.Face(i)
	return ms3.Triangle{m.Positions[v0], m.Positions[v1], m.Positions[v2]}
}

// Triangles returns the faces as a slice of position triples.
func (m *Data) Triangles() []ms3.Triangle {
	tris := make([]ms3.Triangle, m.FaceCount())
	for i := range tris {
		tris[i] = m.Triangle(i)
	}
	return tris
}

func (m *Data) faceValid(i int) bool {
	v0, v1, v2 := m.Face(i)
	n := uint32(len(m.Positions))
	return v0 < n && v1 < n && v2 < n
}

// Bounds returns the axis aligned bounding box of all positions. The result
// is cached until the next geometric mutation. An empty mesh returns an
// inverted box.
func (m *Data) Bounds() ms3.Box {
	if m.boundsOK {
		return m.bounds
	}
	bb := d3.EmptyBox()
	for _, p := range m.Positions {
		bb = d3.Include(bb, p)
	}
	m.bounds = bb
	m.boundsOK = true
	return bb
}

// InvalidateBounds discards the cached bounds.
func (m *Data) InvalidateBounds() { m.boundsOK = false }

// IsValid reports whether the mesh satisfies its structural invariants.
func (m *Data) IsValid() bool { return m.Validate() == nil }

// Validate returns a validation error describing the first violated
// structural invariant, or nil.
func (m *Data) Validate() error {
	const op = "mesh.Validate"
	if len(m.Indices)%3 != 0 {
		return brep.Errorf(brep.KindValidation, op, "index count %d is not a multiple of 3", len(m.Indices)).
			WithHint("truncate the index buffer to whole triangles")
	}
	if len(m.Normals) != 0 && len(m.Normals) != len(m.Positions) {
		return brep.Errorf(brep.KindValidation, op, "normal count %d does not match vertex count %d", len(m.Normals), len(m.Positions)).
			WithHint("call ComputeNormals() after mixing AddVertex and AddVertexNormal")
	}
	if len(m.UVs) != 0 && len(m.UVs) != len(m.Positions) {
		return brep.Errorf(brep.KindValidation, op, "uv count %d does not match vertex count %d", len(m.UVs), len(m.Positions))
	}
	n := uint32(len(m.Positions))
	for i, idx := range m.Indices {
		if idx >= n {
			return brep.Errorf(brep.KindValidation, op, "index %d of face %d is %d, vertex count is %d", i%3, i/3, idx, n)
		}
	}
	return nil
}

// Clone returns a deep copy of the mesh.
func (m *Data) Clone() *Data {
	c := &Data{
		Positions: append([]ms3.Vec(nil), m.Positions...),
		Indices:   append([]uint32(nil), m.Indices...),
		bounds:    m.bounds,
		boundsOK:  m.boundsOK,
	}
	if len(m.Normals) > 0 {
		c.Normals = append([]ms3.Vec(nil), m.Normals...)
	}
	if len(m.UVs) > 0 {
		c.UVs = append([]ms2.Vec(nil), m.UVs...)
	}
	return c
}

// ShrinkToFit reallocates the slices so their capacity equals their length.
func (m *Data) ShrinkToFit() {
	m.Positions = append([]ms3.Vec(nil), m.Positions...)
	m.Indices = append([]uint32(nil), m.Indices...)
	if m.Normals != nil {
		m.Normals = append([]ms3.Vec(nil), m.Normals...)
	}
	if m.UVs != nil {
		m.UVs = append([]ms2.Vec(nil), m.UVs...)
	}
}

// Append concatenates other onto m, offsetting its indices. Attribute
// arrays are kept only if both meshes carry them.
func (m *Data) Append(other *Data) {
	keepN := (m.HasNormals() || len(m.Positions) == 0) && other.HasNormals()
	keepUV := (m.HasUVs() || len(m.Positions) == 0) && other.HasUVs()
	off := uint32(len(m.Positions))
	m.Positions = append(m.Positions, other.Positions...)
	if keepN {
		m.Normals = append(m.Normals, other.Normals...)
	} else {
		m.Normals = nil
	}
	if keepUV {
		m.UVs = append(m.UVs, other.UVs...)
	} else {
		m.UVs = nil
	}
	for _, idx := range other.Indices {
		m.Indices = append(m.Indices, idx+off)
	}
	m.boundsOK = false
}

// String returns a short summary of the mesh.
func (m *Data) String() string {
	return fmt.Sprintf("mesh{vertices:%d faces:%d normals:%v uvs:%v}", m.VertexCount(), m.FaceCount(), m.HasNormals(), m.HasUVs())
}

package mesh

import (
	"github.com/chewxy/math32"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
)

// SurfaceArea returns the sum of all face areas.
func (m *Data) SurfaceArea() float32 {
	var area float32
	for i := 0; i < m.FaceCount(); i++ {
		area += m.FaceArea(i)
	}
	return area
}

// SignedVolume returns the divergence theorem volume sum(v0.(v1 x v2))/6.
// It is positive for closed meshes with outward facing triangles and only
// meaningful for closed, consistently oriented meshes.
func (m *Data) SignedVolume() float32 {
	var vol float32
	for i := 0; i < m.FaceCount(); i++ {
		if !m.faceValid(i) {
			continue
		}
		t := m.Triangle(i)
		vol += d3.Dot(t[0], ms3.Cross(t[1], t[2]))
	}
	return vol / 6
}

// Volume returns the absolute value of SignedVolume. The absolute value hides
// inverted orientation; check SignedVolume to detect it.
func (m *Data) Volume() float32 {
	return math32.Abs(m.SignedVolume())
}

// Centroid returns the area weighted centroid of the surface.
func (m *Data) Centroid() ms3.Vec {
	var sum ms3.Vec
	var area float32
	for i := 0; i < m.FaceCount(); i++ {
		a := m.FaceArea(i)
		if a == 0 {
			continue
		}
		t := m.Triangle(i)
		sum = ms3.Add(sum, ms3.Scale(a, d3.Centroid(t[0], t[1], t[2])))
		area += a
	}
	if area == 0 {
		return ms3.Vec{}
	}
	return ms3.Scale(1/area, sum)
}

// Transform applies T to every position, with homogeneous divide, and the
// transposed inverse of T's 3x3 block to every normal. Normals are
// renormalized. Transforms that mirror space also reverse the winding of
// every triangle so the mesh keeps its orientation.
func (m *Data) Transform(T geom.Mat4) {
	for i, p := range m.Positions {
		m.Positions[i] = T.MulPosition(p)
	}
	if T.Mat3().Det() < 0 {
		for i := 0; i+2 < len(m.Indices); i += 3 {
			m.Indices[i+1], m.Indices[i+2] = m.Indices[i+2], m.Indices[i+1]
		}
	}
	if len(m.Normals) > 0 {
		nm := T.NormalMatrix()
		for i, n := range m.Normals {
			m.Normals[i] = d3.UnitOr(nm.MulVec(n), n)
		}
	}
	m.boundsOK = false
}

// Translate moves every position by v.
func (m *Data) Translate(v ms3.Vec) { m.Transform(geom.Translation(v)) }

// Scale scales every position about the origin.
func (m *Data) Scale(s ms3.Vec) { m.Transform(geom.Scaling(s)) }

// Rotate rotates every position about the origin.
func (m *Data) Rotate(q geom.Quat) { m.Transform(q.Mat4()) }

package solid

import (
	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
	"gonum.org/v1/gonum/mat"
)

// BoundingBox returns the bounds of all vertices. An empty solid returns an
// empty box with Min > Max.
func (s *Solid) BoundingBox() ms3.Box {
	bb := d3.EmptyBox()
	for _, v := range s.vertices {
		bb = d3.Include(bb, v.Pos)
	}
	return bb
}

// SurfaceArea returns the summed face area.
func (s *Solid) SurfaceArea() (area float32) {
	for i := range s.faces {
		area += s.faces[i].Area
	}
	return area
}

// SignedVolume returns the sum of the shells' signed volumes. It is
// negative when the solid is inside out.
func (s *Solid) SignedVolume() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cache.volumeOK {
		var vol float32
		for _, sh := range s.shells {
			vol += sh.Volume
		}
		s.cache.volume = vol
		s.cache.volumeOK = true
	}
	return s.cache.volume
}

// Volume returns the absolute enclosed volume.
func (s *Solid) Volume() float32 { return math32.Abs(s.SignedVolume()) }

// tetrahedra calls fn with the corners of every signed tetrahedron spanned
// by the origin and a fan triangle of each face.
func (s *Solid) tetrahedra(fn func(a, b, c ms3.Vec)) {
	for i := range s.faces {
		loop := s.faces[i].Vertices
		a := s.vertices[loop[0]].Pos
		for k := 1; k < len(loop)-1; k++ {
			fn(a, s.vertices[loop[k]].Pos, s.vertices[loop[k+1]].Pos)
		}
	}
}

// CenterOfMass returns the centroid of the enclosed volume assuming uniform
// density. Solids enclosing no volume return the area weighted centroid of
// their faces.
func (s *Solid) CenterOfMass() ms3.Vec {
	var sum ms3.Vec
	var vol float32
	s.tetrahedra(func(a, b, c ms3.Vec) {
		v := d3.Dot(a, ms3.Cross(b, c)) / 6
		vol += v
		sum = ms3.Add(sum, ms3.Scale(v/4, ms3.Add(a, ms3.Add(b, c))))
	})
	if math32.Abs(vol) > 1e-12 {
		return ms3.Scale(1/vol, sum)
	}
	var area float32
	sum = ms3.Vec{}
	for i := range s.faces {
		f := &s.faces[i]
		sum = ms3.Add(sum, ms3.Scale(f.Area, f.Centroid))
		area += f.Area
	}
	if area == 0 {
		return ms3.Vec{}
	}
	return ms3.Scale(1/area, sum)
}

// secondMoments returns the signed volume and the integrals of x_i x_j
// over the enclosed volume.
func (s *Solid) secondMoments() (vol float32, C geom.Mat3) {
	s.tetrahedra(func(a, b, c ms3.Vec) {
		det := d3.Dot(a, ms3.Cross(b, c))
		vol += det / 6
		sum := ms3.Add(a, ms3.Add(b, c))
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				C[i*3+j] += det / 120 * (d3.Comp(a, i)*d3.Comp(a, j) + d3.Comp(b, i)*d3.Comp(b, j) +
					d3.Comp(c, i)*d3.Comp(c, j) + d3.Comp(sum, i)*d3.Comp(sum, j))
			}
		}
	})
	return vol, C
}

// InertiaTensor returns the inertia tensor about the center of mass for a
// uniform density.
func (s *Solid) InertiaTensor(density float32) geom.Mat3 {
	vol, C := s.secondMoments()
	com := s.CenterOfMass()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			C[i*3+j] -= vol * d3.Comp(com, i) * d3.Comp(com, j)
		}
	}
	tr := C[0] + C[4] + C[8]
	var I geom.Mat3
	for i := range I {
		I[i] = -density * C[i]
	}
	for i := 0; i < 3; i++ {
		I[i*3+i] += density * tr
	}
	return I
}

// PrincipalAxes returns the principal moments of inertia in ascending order
// and the matching unit axes.
func (s *Solid) PrincipalAxes(density float32) (moments [3]float32, axes [3]ms3.Vec, err error) {
	I := s.InertiaTensor(density)
	data := make([]float64, 9)
	for i, v := range I {
		data[i] = float64(v)
	}
	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(3, data), true) {
		return moments, axes, brep.Errorf(brep.KindDegenerate, "solid.PrincipalAxes", "eigen decomposition of inertia tensor did not converge")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	for i := 0; i < 3; i++ {
		moments[i] = float32(vals[i])
		axes[i] = ms3.Vec{X: float32(vecs.At(0, i)), Y: float32(vecs.At(1, i)), Z: float32(vecs.At(2, i))}
	}
	return moments, axes, nil
}

// IsWatertight reports whether every edge has exactly two faces.
func (s *Solid) IsWatertight() bool {
	for i := range s.edges {
		if len(s.edges[i].Faces) != 2 {
			return false
		}
	}
	return true
}

// IsManifold reports whether the solid has no non-manifold edges or vertices.
func (s *Solid) IsManifold() bool {
	return len(s.FindNonManifoldEdges()) == 0 && len(s.FindNonManifoldVertices()) == 0
}

// IsClosed reports whether every shell is closed.
func (s *Solid) IsClosed() bool {
	for _, sh := range s.shells {
		if !sh.Closed {
			return false
		}
	}
	return true
}

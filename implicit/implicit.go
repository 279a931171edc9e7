// Package implicit tessellates signed distance field primitives into
// triangle meshes using the sdfx marching cubes renderer.
//
// Returned meshes are welded, free of zero area triangles, wound with
// outward facing triangles and carry vertex normals, so they can be passed
// straight to solid.FromMesh.
package implicit

import (
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/soypat/brep"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

// DefaultCells is the resolution used when Options.Cells is zero.
const DefaultCells = 64

// Options configures tessellation.
type Options struct {
	// Cells is the number of marching cubes cells along the longest side
	// of the shape's bounding box.
	Cells int
}

func (o Options) normalize(op string) (Options, error) {
	if o.Cells == 0 {
		o.Cells = DefaultCells
	}
	if o.Cells < 0 {
		return o, brep.Errorf(brep.KindValidation, op, "negative cell count %d", o.Cells)
	}
	return o, nil
}

// RoundedBox tessellates a box of the given size centred at the origin
// whose edges are rounded with the given radius.
func RoundedBox(size ms3.Vec, round float32, opts Options) (*mesh.Data, error) {
	const op = "implicit.RoundedBox"
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 || !d3.IsFinite(size) {
		return nil, brep.Errorf(brep.KindValidation, op, "box size %v must be positive", size)
	}
	if smallest := min(size.X, size.Y, size.Z); round < 0 || 2*round > smallest {
		return nil, brep.Errorf(brep.KindValidation, op, "round %v must be within [0, %v]", round, smallest/2)
	}
	s, err := sdf.Box3D(toV3(size), float64(round))
	if err != nil {
		return nil, brep.Wrap(err, brep.KindValidation, op)
	}
	return tessellate(op, s, opts)
}

// Cylinder tessellates a cylinder along Z centred at the origin. round is
// the radius of the fillet at both rims.
func Cylinder(radius, height, round float32, opts Options) (*mesh.Data, error) {
	const op = "implicit.Cylinder"
	if !(radius > 0) || !(height > 0) {
		return nil, brep.Errorf(brep.KindValidation, op, "radius %v and height %v must be positive", radius, height)
	}
	if round < 0 || round > radius || 2*round > height {
		return nil, brep.Errorf(brep.KindValidation, op, "round %v exceeds the radius or half the height", round)
	}
	s, err := sdf.Cylinder3D(float64(height), float64(radius), float64(round))
	if err != nil {
		return nil, brep.Wrap(err, brep.KindValidation, op)
	}
	return tessellate(op, s, opts)
}

// Sphere tessellates a sphere centred at the origin.
func Sphere(radius float32, opts Options) (*mesh.Data, error) {
	const op = "implicit.Sphere"
	if !(radius > 0) {
		return nil, brep.Errorf(brep.KindValidation, op, "radius %v must be positive", radius)
	}
	s, err := sdf.Sphere3D(float64(radius))
	if err != nil {
		return nil, brep.Wrap(err, brep.KindValidation, op)
	}
	return tessellate(op, s, opts)
}

// Tessellate renders any sdfx solid.
func Tessellate(s sdf.SDF3, opts Options) (*mesh.Data, error) {
	return tessellate("implicit.Tessellate", s, opts)
}

func tessellate(op string, s sdf.SDF3, opts Options) (*mesh.Data, error) {
	opts, err := opts.normalize(op)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, brep.Errorf(brep.KindValidation, op, "nil sdf")
	}
	bb := s.BoundingBox()
	size := bb.Size()
	cell := float32(math.Max(size.X, math.Max(size.Y, size.Z))) / float32(opts.Cells)

	tris := render.ToTriangles(s, render.NewMarchingCubesUniform(opts.Cells))
	m := mesh.New(3*len(tris), len(tris))
	for _, t := range tris {
		a, b, c := fromV3(t[0]), fromV3(t[1]), fromV3(t[2])
		if !d3.IsFinite(a) || !d3.IsFinite(b) || !d3.IsFinite(c) {
			continue
		}
		m.AddFace(m.AddVertex(a), m.AddVertex(b), m.AddVertex(c))
	}
	// Marching cubes computes a shared edge vertex once per adjacent cell.
	if _, err := m.MergeDuplicateVertices(cell*1e-4, nil); err != nil {
		return nil, err
	}
	m.RemoveDegenerateFaces(cell * cell * 1e-8)
	m.RemoveUnusedVertices()
	if m.IsEmpty() {
		return nil, brep.Errorf(brep.KindDegenerate, op, "tessellation at %d cells produced no triangles", opts.Cells).
			WithHint("increase Options.Cells")
	}
	if m.SignedVolume() < 0 {
		m.FlipNormals()
	}
	m.ComputeNormals()
	return m, nil
}

func toV3(v ms3.Vec) v3.Vec {
	return v3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

func fromV3(v v3.Vec) ms3.Vec {
	return ms3.Vec{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

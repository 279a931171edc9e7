package solid

import (
	"github.com/soypat/brep"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

// Box returns a closed box centred at the origin. Each side of the box is a
// face group made of two planar triangles.
func Box(size ms3.Vec) (*Solid, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, brep.Errorf(brep.KindValidation, "solid.Box", "non-positive size %v", size)
	}
	return fromPrimitive(mesh.Box(size), func(f int) (SurfaceKind, int32) {
		return SurfacePlanar, int32(f / 2)
	})
}

// Cube returns a closed cube of the given side centred at the origin.
func Cube(side float32) (*Solid, error) {
	return Box(ms3.Vec{X: side, Y: side, Z: side})
}

// UVSphere returns a closed sphere centred at the origin. See mesh.UVSphere
// for the meaning of rings and segs.
func UVSphere(radius float32, rings, segs int) (*Solid, error) {
	if radius <= 0 {
		return nil, brep.Errorf(brep.KindValidation, "solid.UVSphere", "non-positive radius %v", radius)
	}
	return fromPrimitive(mesh.UVSphere(radius, rings, segs), func(int) (SurfaceKind, int32) {
		return SurfaceSpherical, 0
	})
}

// Cylinder returns a closed cylinder along Z centred at the origin. The
// side is group 0 and the bottom and top caps are groups 1 and 2.
func Cylinder(radius, height float32, segs int) (*Solid, error) {
	if radius <= 0 || height <= 0 {
		return nil, brep.Errorf(brep.KindValidation, "solid.Cylinder", "non-positive radius %v or height %v", radius, height)
	}
	// mesh.Cylinder emits two side triangles, a bottom and a top triangle per segment.
	return fromPrimitive(mesh.Cylinder(radius, height, segs), func(f int) (SurfaceKind, int32) {
		switch f % 4 {
		case 0, 1:
			return SurfaceCylindrical, 0
		case 2:
			return SurfacePlanar, 1
		}
		return SurfacePlanar, 2
	})
}

func fromPrimitive(md *mesh.Data, tag func(face int) (SurfaceKind, int32)) (*Solid, error) {
	polys := make([]Polygon, md.FaceCount())
	for i := range polys {
		a, b, c := md.Face(i)
		kind, group := tag(i)
		polys[i] = Polygon{Loop: []uint32{a, b, c}, Surface: kind, Group: group}
	}
	return FromPolygons(md.Positions, polys)
}

package d3

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// EmptyBox returns an inverted box that any Include call will reset.
func EmptyBox() ms3.Box {
	return ms3.Box{
		Min: Elem(math32.MaxFloat32),
		Max: Elem(-math32.MaxFloat32),
	}
}

// IsEmpty reports whether the box contains no points.
func IsEmpty(a ms3.Box) bool {
	return a.Min.X > a.Max.X || a.Min.Y > a.Max.Y || a.Min.Z > a.Max.Z
}

// Include enlarges a 3d box to include a point.
func Include(a ms3.Box, v ms3.Vec) ms3.Box {
	return ms3.Box{
		Min: MinElem(a.Min, v),
		Max: ms3.MaxElem(a.Max, v),
	}
}

// Extend returns a box enclosing two 3d boxes.
func Extend(a, b ms3.Box) ms3.Box {
	return ms3.Box{
		Min: MinElem(a.Min, b.Min),
		Max: ms3.MaxElem(a.Max, b.Max),
	}
}

// Contains checks if the 3d box contains the given vector (considering bounds as inside).
func Contains(a ms3.Box, v ms3.Vec) bool {
	return a.Min.X <= v.X && a.Min.Y <= v.Y && a.Min.Z <= v.Z &&
		v.X <= a.Max.X && v.Y <= a.Max.Y && v.Z <= a.Max.Z
}

// ContainsBox checks if a contains b with tolerance tol.
func ContainsBox(a, b ms3.Box, tol float32) bool {
	return a.Min.X-tol <= b.Min.X && a.Min.Y-tol <= b.Min.Y && a.Min.Z-tol <= b.Min.Z &&
		b.Max.X <= a.Max.X+tol && b.Max.Y <= a.Max.Y+tol && b.Max.Z <= a.Max.Z+tol
}

// Overlaps reports whether the two boxes intersect, touching counts.
func Overlaps(a, b ms3.Box) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

// Enlarge grows the box by d on every side.
func Enlarge(a ms3.Box, d float32) ms3.Box {
	return ms3.Box{Min: ms3.AddScalar(-d, a.Min), Max: ms3.AddScalar(d, a.Max)}
}

// SurfaceArea returns the area of the box's six faces.
func SurfaceArea(a ms3.Box) float32 {
	if IsEmpty(a) {
		return 0
	}
	s := ms3.Sub(a.Max, a.Min)
	return 2 * (s.X*s.Y + s.Y*s.Z + s.Z*s.X)
}

// TriangleBox returns the bounding box of triangle (a,b,c).
func TriangleBox(a, b, c ms3.Vec) ms3.Box {
	return ms3.Box{
		Min: MinElem(a, MinElem(b, c)),
		Max: ms3.MaxElem(a, ms3.MaxElem(b, c)),
	}
}

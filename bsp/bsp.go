// Package bsp implements binary space partitioning trees over convex
// polygons, the building block of the csg boolean operations.
//
// Polygons refer to corners in a Pool by index. Splitting a polygon
// appends the crossing points to the pool, so trees that exchange
// polygons must share one pool. A node's children are arena indices with
// brep.Absent marking a missing child.
package bsp

import (
	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms2"
	"github.com/soypat/glgl/math/ms3"
)

const (
	// DefaultEpsilon is the distance under which a point is coplanar with a plane.
	DefaultEpsilon = 1e-5
	// DefaultMaxDepth is the smallest depth cap of a tree.
	DefaultMaxDepth = 64
)

// Vertex is a polygon corner. Normal and UV are interpolated along with the
// position when an edge is split.
type Vertex struct {
	Pos    ms3.Vec
	Normal ms3.Vec
	UV     ms2.Vec
}

// Lerp interpolates between v and w.
func (v Vertex) Lerp(w Vertex, t float32) Vertex {
	return Vertex{
		Pos:    d3.Lerp(v.Pos, w.Pos, t),
		Normal: d3.Lerp(v.Normal, w.Normal, t),
		UV:     ms2.Add(v.UV, ms2.Scale(t, ms2.Sub(w.UV, v.UV))),
	}
}

// Polygon is a convex planar polygon. Fragments produced by splitting keep
// the plane and tag of the polygon they were cut from.
type Polygon struct {
	Verts []uint32
	Plane geom.Plane
	// Tag is caller data carried through splits.
	Tag int32
}

// Stats counts the work done by splitting polygons in a pool.
type Stats struct {
	// Splits is the number of polygons cut in two.
	Splits int
	// Intersections is the number of polygon edges found crossing a plane.
	Intersections int
	// NewVertices is the number of crossing points added to the pool.
	NewVertices int
}

// Pool is an append-only vertex array shared by polygons and trees.
type Pool struct {
	Vertices  []Vertex
	crossings map[crossing]uint32
	stats     Stats
}

// crossing identifies the point where an edge meets a plane. Edges are
// stored with the lower index first and planes in a canonical orientation
// so both polygons sharing an edge get the same vertex.
type crossing struct {
	plane geom.Plane
	a, b  uint32
}

// Add appends v and returns its index.
func (p *Pool) Add(v Vertex) uint32 {
	p.Vertices = append(p.Vertices, v)
	return uint32(len(p.Vertices) - 1)
}

// AddPositions appends vertices at the given positions and returns the
// index of the first one.
func (p *Pool) AddPositions(pos []ms3.Vec) uint32 {
	first := uint32(len(p.Vertices))
	for _, v := range pos {
		p.Vertices = append(p.Vertices, Vertex{Pos: v})
	}
	return first
}

// Pos returns the position of vertex i.
func (p *Pool) Pos(i uint32) ms3.Vec { return p.Vertices[i].Pos }

// Stats returns the split statistics accumulated by the pool.
func (p *Pool) Stats() Stats { return p.stats }

// Polygon builds a polygon over verts with its plane fitted by Newell's
// method. Polygons with no area fail with brep.KindDegenerate and
// non-finite coordinates with brep.KindValidation.
func (p *Pool) Polygon(verts []uint32, tag int32) (Polygon, error) {
	const op = "bsp.Polygon"
	if len(verts) < 3 {
		return Polygon{}, brep.Errorf(brep.KindDegenerate, op, "polygon has %d vertices", len(verts))
	}
	var centroid ms3.Vec
	for _, v := range verts {
		if int(v) >= len(p.Vertices) {
			return Polygon{}, brep.Errorf(brep.KindValidation, op, "vertex %d out of pool of %d", v, len(p.Vertices))
		}
		pos := p.Vertices[v].Pos
		if !d3.IsFinite(pos) {
			return Polygon{}, brep.Errorf(brep.KindValidation, op, "vertex %d has non-finite position %v", v, pos)
		}
		centroid = ms3.Add(centroid, pos)
	}
	n := p.newell(verts)
	l := ms3.Norm(n)
	if l < 1e-12 {
		return Polygon{}, brep.Errorf(brep.KindDegenerate, op, "polygon has no area")
	}
	n = ms3.Scale(1/l, n)
	centroid = ms3.Scale(1/float32(len(verts)), centroid)
	return Polygon{Verts: verts, Plane: geom.PlaneFromNormal(n, centroid), Tag: tag}, nil
}

func (p *Pool) newell(verts []uint32) (n ms3.Vec) {
	for i, v := range verts {
		a, b := p.Vertices[v].Pos, p.Vertices[verts[(i+1)%len(verts)]].Pos
		n = ms3.Add(n, ms3.Cross(a, b))
	}
	return n
}

// Area returns the area of the polygon over verts.
func (p *Pool) Area(verts []uint32) float32 {
	return ms3.Norm(p.newell(verts)) / 2
}

// Flip returns the polygon with reversed winding and plane.
func (poly Polygon) Flip() Polygon {
	n := len(poly.Verts)
	verts := make([]uint32, n)
	for i, v := range poly.Verts {
		verts[n-1-i] = v
	}
	return Polygon{Verts: verts, Plane: poly.Plane.Flip(), Tag: poly.Tag}
}

func canonical(pl geom.Plane) geom.Plane {
	for _, c := range [3]float32{pl.N.X, pl.N.Y, pl.N.Z} {
		if c > 0 {
			return pl
		} else if c < 0 {
			return pl.Flip()
		}
	}
	return pl
}

// crossingVertex returns the vertex where edge (a,b) meets pl, adding it
// to the pool on first use.
func (p *Pool) crossingVertex(pl geom.Plane, a, b uint32) uint32 {
	p.stats.Intersections++
	if a > b {
		a, b = b, a
	}
	key := crossing{plane: canonical(pl), a: a, b: b}
	if v, ok := p.crossings[key]; ok {
		return v
	}
	if p.crossings == nil {
		p.crossings = make(map[crossing]uint32)
	}
	va, vb := p.Vertices[a], p.Vertices[b]
	da, db := pl.Distance(va.Pos), pl.Distance(vb.Pos)
	v := p.Add(va.Lerp(vb, da/(da-db)))
	p.crossings[key] = v
	p.stats.NewVertices++
	return v
}

// split sorts poly into the four lists with respect to pl, cutting
// spanning polygons in two. Coplanar polygons go to coFront when they face
// the same way as pl. Fragments with area under eps² are dropped.
func (p *Pool) split(pl geom.Plane, poly Polygon, eps float32, coFront, coBack, front, back *[]Polygon) error {
	var sides [16]geom.Side
	var types []geom.Side
	if len(poly.Verts) <= len(sides) {
		types = sides[:len(poly.Verts)]
	} else {
		types = make([]geom.Side, len(poly.Verts))
	}
	var kind geom.Side
	for i, v := range poly.Verts {
		d := pl.Distance(p.Vertices[v].Pos)
		if math32.IsNaN(d) {
			return brep.Errorf(brep.KindValidation, "bsp.split", "NaN distance from vertex %d to plane %v", v, pl).
				WithHint("check the input for non-finite coordinates")
		}
		switch {
		case d > eps:
			types[i] = geom.Front
		case d < -eps:
			types[i] = geom.Back
		default:
			types[i] = geom.Coplanar
		}
		kind |= types[i]
	}
	switch kind {
	case geom.Coplanar:
		if d3.Dot(pl.N, poly.Plane.N) > 0 {
			*coFront = append(*coFront, poly)
		} else {
			*coBack = append(*coBack, poly)
		}
	case geom.Front:
		*front = append(*front, poly)
	case geom.Back:
		*back = append(*back, poly)
	case geom.Spanning:
		p.stats.Splits++
		n := len(poly.Verts)
		f := make([]uint32, 0, n+1)
		b := make([]uint32, 0, n+1)
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			ti, tj := types[i], types[j]
			vi := poly.Verts[i]
			if ti != geom.Back {
				f = append(f, vi)
			}
			if ti != geom.Front {
				b = append(b, vi)
			}
			if ti|tj == geom.Spanning {
				x := p.crossingVertex(pl, vi, poly.Verts[j])
				f = append(f, x)
				b = append(b, x)
			}
		}
		if len(f) >= 3 && p.Area(f) >= eps*eps {
			*front = append(*front, Polygon{Verts: f, Plane: poly.Plane, Tag: poly.Tag})
		}
		if len(b) >= 3 && p.Area(b) >= eps*eps {
			*back = append(*back, Polygon{Verts: b, Plane: poly.Plane, Tag: poly.Tag})
		}
	}
	return nil
}

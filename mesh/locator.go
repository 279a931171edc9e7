package mesh

import (
	"math"
	"sort"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// VertexLocator answers nearest vertex queries over a fixed set of positions
// using a k-d tree. It keeps its own copy of the positions.
type VertexLocator struct {
	tree  *kdtree.Tree
	count int
}

// NewVertexLocator builds a locator over positions.
func NewVertexLocator(positions []ms3.Vec) *VertexLocator {
	pts := make(kdPoints, len(positions))
	for i, p := range positions {
		pts[i] = kdPoint{p: p, idx: uint32(i)}
	}
	loc := &VertexLocator{count: len(pts)}
	if len(pts) > 0 {
		loc.tree = kdtree.New(pts, true)
	}
	return loc
}

// Len returns the number of indexed vertices.
func (loc *VertexLocator) Len() int { return loc.count }

// Nearest returns the index of the vertex closest to p and its distance.
// An empty locator returns brep.Absent and +Inf.
func (loc *VertexLocator) Nearest(p ms3.Vec) (idx uint32, dist float32) {
	if loc.tree == nil {
		return brep.Absent, math32.Inf(1)
	}
	got, dist2 := loc.tree.Nearest(kdPoint{p: p})
	if got == nil {
		return brep.Absent, math32.Inf(1)
	}
	return got.(kdPoint).idx, float32(math.Sqrt(dist2))
}

// NearestN returns up to n vertex indices ordered by increasing distance to p.
func (loc *VertexLocator) NearestN(p ms3.Vec, n int) []uint32 {
	if loc.tree == nil || n <= 0 {
		return nil
	}
	keep := kdtree.NewNKeeper(n)
	loc.tree.NearestSet(keep, kdPoint{p: p})
	found := append(kdtree.Heap(nil), keep.Heap...)
	sort.Slice(found, func(i, j int) bool { return found[i].Dist < found[j].Dist })
	out := make([]uint32, 0, len(found))
	for _, cd := range found {
		if cd.Comparable == nil {
			continue
		}
		out = append(out, cd.Comparable.(kdPoint).idx)
	}
	return out
}

// Within returns the indices of all vertices within radius r of p in no
// particular order.
func (loc *VertexLocator) Within(p ms3.Vec, r float32) []uint32 {
	if loc.tree == nil || r < 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(float64(r) * float64(r))
	loc.tree.NearestSet(keep, kdPoint{p: p})
	out := make([]uint32, 0, len(keep.Heap))
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		out = append(out, cd.Comparable.(kdPoint).idx)
	}
	return out
}

// NearestVertex returns the vertex of m closest to p. It builds a fresh
// locator; reuse a VertexLocator for repeated queries.
func (m *Data) NearestVertex(p ms3.Vec) (idx uint32, dist float32) {
	return NewVertexLocator(m.Positions).Nearest(p)
}

type kdPoint struct {
	p   ms3.Vec
	idx uint32
}

func (a kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	b := c.(kdPoint)
	return float64(d3.Comp(a.p, int(d)) - d3.Comp(b.p, int(d)))
}

func (a kdPoint) Dims() int { return 3 }

func (a kdPoint) Distance(c kdtree.Comparable) float64 {
	b := c.(kdPoint)
	dx := float64(a.p.X) - float64(b.p.X)
	dy := float64(a.p.Y) - float64(b.p.Y)
	dz := float64(a.p.Z) - float64(b.p.Z)
	return dx*dx + dy*dy + dz*dz
}

type kdPoints []kdPoint

func (pts kdPoints) Index(i int) kdtree.Comparable { return pts[i] }

func (pts kdPoints) Len() int { return len(pts) }

func (pts kdPoints) Pivot(d kdtree.Dim) int {
	p := kdPlane{dim: int(d), pts: pts}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (pts kdPoints) Slice(start, end int) kdtree.Interface { return pts[start:end] }

// Bounds implements kdtree.Bounder.
func (pts kdPoints) Bounds() *kdtree.Bounding {
	bb := d3.EmptyBox()
	for _, p := range pts {
		bb = d3.Include(bb, p.p)
	}
	return &kdtree.Bounding{Min: kdPoint{p: bb.Min}, Max: kdPoint{p: bb.Max}}
}

type kdPlane struct {
	dim int
	pts kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	return p.pts[i].Compare(p.pts[j], kdtree.Dim(p.dim)) < 0
}
func (p kdPlane) Swap(i, j int) { p.pts[i], p.pts[j] = p.pts[j], p.pts[i] }
func (p kdPlane) Len() int      { return len(p.pts) }
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.pts = p.pts[start:end]
	return p
}

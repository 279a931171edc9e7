// Package csg implements boolean operations between solids using BSP trees.
//
// Each operand is turned into a bsp.Tree sharing one vertex pool. The
// trees clip each other and their surviving polygons are welded, repaired
// at T-junctions and assembled into a new solid.Solid.
package csg

import (
	"time"

	"github.com/soypat/brep"
	"github.com/soypat/brep/bsp"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/solid"
)

// Op is a boolean operation.
type Op uint8

const (
	Union Op = iota
	Subtract
	Intersect
)

func (op Op) String() string {
	switch op {
	case Union:
		return "union"
	case Subtract:
		return "subtract"
	case Intersect:
		return "intersect"
	}
	return "unknown op"
}

// Options configures a boolean operation.
type Options struct {
	// CoplanarEpsilon is the plane classification tolerance.
	CoplanarEpsilon float32
	// MergeEpsilon is the distance under which result vertices are welded.
	MergeEpsilon float32
	// MaxDepth caps the depth of the BSP trees. Zero lets the cap follow
	// the operands' face planes, never below bsp.DefaultMaxDepth.
	MaxDepth int
	// MergeCoplanar joins adjacent coplanar fragments of the same face
	// group back into larger convex polygons.
	MergeCoplanar bool
	// Triangulate splits the result's polygons into triangles.
	Triangulate bool
}

// DefaultOptions returns the options used when none are given. Zero numeric
// fields of other Options also select these defaults.
func DefaultOptions() Options {
	return Options{
		CoplanarEpsilon: bsp.DefaultEpsilon,
		MergeEpsilon:    1e-5,
		Triangulate:     true,
	}
}

func (o Options) normalize(op string) (Options, error) {
	def := DefaultOptions()
	if o.CoplanarEpsilon == 0 {
		o.CoplanarEpsilon = def.CoplanarEpsilon
	}
	if o.MergeEpsilon == 0 {
		o.MergeEpsilon = def.MergeEpsilon
	}
	if o.CoplanarEpsilon < 0 || o.MergeEpsilon < 0 || o.MaxDepth < 0 {
		return o, brep.Errorf(brep.KindValidation, op, "negative option in %+v", o)
	}
	return o, nil
}

// Stats describes the work done by a boolean operation.
type Stats struct {
	// IntersectionCount is the number of polygon edges found crossing a splitting plane.
	IntersectionCount int
	// NewVertexCount is the number of vertices created by splits.
	NewVertexCount int
	// SplitCount is the number of polygons cut in two.
	SplitCount int
	Duration   time.Duration
}

// BooleanResult is the outcome of a boolean operation.
type BooleanResult struct {
	Solid *solid.Solid
	Stats Stats
}

// Union returns the solid occupied by a or b.
func Union(a, b *solid.Solid, opts Options, progress brep.ProgressFunc) (BooleanResult, error) {
	return Apply(Union, a, b, opts, progress)
}

// Subtract returns the solid occupied by a but not b.
func Subtract(a, b *solid.Solid, opts Options, progress brep.ProgressFunc) (BooleanResult, error) {
	return Apply(Subtract, a, b, opts, progress)
}

// Intersect returns the solid occupied by both a and b.
func Intersect(a, b *solid.Solid, opts Options, progress brep.ProgressFunc) (BooleanResult, error) {
	return Apply(Intersect, a, b, opts, progress)
}

// Apply performs op on a and b, which are not modified. The operands must
// be closed and consistently oriented for the result to be meaningful.
// Empty operands and operands with disjoint bounds are resolved without
// building trees.
func Apply(op Op, a, b *solid.Solid, opts Options, progress brep.ProgressFunc) (BooleanResult, error) {
	start := time.Now()
	name := "csg." + op.String()
	if op > Intersect {
		return BooleanResult{}, brep.Errorf(brep.KindValidation, name, "unknown operation %d", op)
	}
	if a == nil || b == nil {
		return BooleanResult{}, brep.Errorf(brep.KindValidation, name, "nil operand")
	}
	opts, err := opts.normalize(name)
	if err != nil {
		return BooleanResult{}, err
	}
	tick := brep.NewTicker(name, progress, 1)
	res, ok, err := shortcut(op, a, b)
	if err != nil {
		return BooleanResult{}, err
	}
	if !ok {
		res, err = apply(op, a, b, opts, tick)
		if err != nil {
			return BooleanResult{}, err
		}
	}
	res.Stats.Duration = time.Since(start)
	if err := tick.Done(); err != nil {
		return BooleanResult{}, err
	}
	return res, nil
}

// shortcut resolves operations whose result follows from the operands'
// emptiness or bounds alone.
func shortcut(op Op, a, b *solid.Solid) (res BooleanResult, ok bool, err error) {
	switch {
	case a.IsEmpty():
		if op == Union {
			return BooleanResult{Solid: b.Clone()}, true, nil
		}
		return BooleanResult{Solid: solid.New()}, true, nil
	case b.IsEmpty():
		if op == Intersect {
			return BooleanResult{Solid: solid.New()}, true, nil
		}
		return BooleanResult{Solid: a.Clone()}, true, nil
	case !d3.Overlaps(a.BoundingBox(), b.BoundingBox()):
		switch op {
		case Union:
			s, err := combine(a, b)
			return BooleanResult{Solid: s}, err == nil, err
		case Subtract:
			return BooleanResult{Solid: a.Clone()}, true, nil
		}
		return BooleanResult{Solid: solid.New()}, true, nil
	}
	return res, false, nil
}

func apply(op Op, a, b *solid.Solid, opts Options, tick *brep.Ticker) (BooleanResult, error) {
	pool := &bsp.Pool{}
	var attrs []faceAttr
	pa, err := polygons(pool, a, &attrs)
	if err != nil {
		return BooleanResult{}, err
	}
	pb, err := polygons(pool, b, &attrs)
	if err != nil {
		return BooleanResult{}, err
	}
	bo := bsp.Options{Epsilon: opts.CoplanarEpsilon, MaxDepth: opts.MaxDepth}
	ta, err := bsp.New(pool, bo)
	if err != nil {
		return BooleanResult{}, err
	}
	tb, err := bsp.New(pool, bo)
	if err != nil {
		return BooleanResult{}, err
	}
	if err := tick.Stage(0, 0.15, buildWork(len(pa))); err != nil {
		return BooleanResult{}, err
	}
	if err := ta.Build(pa, tick); err != nil {
		return BooleanResult{}, err
	}
	if err := tick.Stage(0.15, 0.3, buildWork(len(pb))); err != nil {
		return BooleanResult{}, err
	}
	if err := tb.Build(pb, tick); err != nil {
		return BooleanResult{}, err
	}

	steps := sequence(op, ta, tb, tick)
	work := buildWork(len(pa) + len(pb))
	for i, step := range steps {
		lo := 0.3 + 0.5*float32(i)/float32(len(steps))
		hi := 0.3 + 0.5*float32(i+1)/float32(len(steps))
		if err := tick.Stage(lo, hi, work); err != nil {
			return BooleanResult{}, err
		}
		if err := step(); err != nil {
			return BooleanResult{}, err
		}
	}
	if err := tick.Report(0.8); err != nil {
		return BooleanResult{}, err
	}

	s, err := assemble(pool, ta.AllPolygons(), attrs, opts)
	if err != nil {
		return BooleanResult{}, err
	}
	if opts.Triangulate {
		s.Triangulate()
	}
	st := pool.Stats()
	return BooleanResult{
		Solid: s,
		Stats: Stats{
			IntersectionCount: st.Intersections,
			NewVertexCount:    st.NewVertices,
			SplitCount:        st.Splits,
		},
	}, nil
}

// buildWork estimates the polygon classifications done while building or
// clipping against a tree of n polygons. Trees split on polygon planes grow
// one node per face plane on convex input, where each node classifies all
// polygons left below it.
func buildWork(n int) int { return n * (n + 1) / 2 }

// sequence returns the clip and invert steps that leave the result of op
// in ta.
func sequence(op Op, ta, tb *bsp.Tree, tick *brep.Ticker) []func() error {
	invert := func(t *bsp.Tree) func() error { return func() error { t.Invert(); return nil } }
	clip := func(t, by *bsp.Tree) func() error { return func() error { return t.ClipTo(by, tick) } }
	merge := func() error { return ta.Build(tb.AllPolygons(), tick) }
	switch op {
	case Subtract:
		return []func() error{
			invert(ta), clip(ta, tb), clip(tb, ta),
			invert(tb), clip(tb, ta), invert(tb),
			merge, invert(ta),
		}
	case Intersect:
		return []func() error{
			invert(ta), clip(tb, ta), invert(tb),
			clip(ta, tb), clip(tb, ta),
			merge, invert(ta),
		}
	}
	return []func() error{
		clip(ta, tb), clip(tb, ta),
		invert(tb), clip(tb, ta), invert(tb),
		merge,
	}
}

// faceAttr holds the face attributes a polygon's tag refers to.
type faceAttr struct {
	surface  solid.SurfaceKind
	material int32
	group    int32
}

// polygons appends the faces of s to pool as BSP polygons. Faces without
// area are skipped.
func polygons(pool *bsp.Pool, s *solid.Solid, attrs *[]faceAttr) ([]bsp.Polygon, error) {
	verts := s.Vertices()
	first := uint32(len(pool.Vertices))
	for _, v := range verts {
		pool.Add(bsp.Vertex{Pos: v.Pos, Normal: v.Normal})
	}
	polys := make([]bsp.Polygon, 0, s.FaceCount())
	for _, f := range s.Faces() {
		loop := make([]uint32, len(f.Vertices))
		for i, v := range f.Vertices {
			loop[i] = first + v
		}
		p, err := pool.Polygon(loop, int32(len(*attrs)))
		if brep.KindOf(err) == brep.KindDegenerate {
			continue
		} else if err != nil {
			return nil, err
		}
		*attrs = append(*attrs, faceAttr{surface: f.Surface, material: f.Material, group: f.Group})
		polys = append(polys, p)
	}
	return polys, nil
}

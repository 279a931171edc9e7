package bsp

import (
	"github.com/soypat/brep"
	"github.com/soypat/brep/geom"
	"github.com/soypat/glgl/math/ms3"
)

// Options configures tree construction.
type Options struct {
	// Epsilon is the coplanarity tolerance. Zero selects DefaultEpsilon.
	Epsilon float32
	// MaxDepth caps the tree depth. Zero selects DefaultMaxDepth, raised to
	// the number of distinct polygon planes given to Build: every node
	// plane is a polygon plane, so a convex solid builds a chain with one
	// node per face plane.
	MaxDepth int
}

// maxCandidates bounds the number of polygon planes tried per node.
const maxCandidates = 16

// splitCost weighs a split against the front and back imbalance when
// choosing a node plane.
const splitCost = 4

type node struct {
	plane    geom.Plane
	hasPlane bool
	polys    []Polygon
	front    uint32
	back     uint32
}

// Tree is a solid BSP tree: the region behind the leaves' planes is inside.
// Node planes are polygon planes so missing front children are outside and
// missing back children inside.
type Tree struct {
	pool  *Pool
	nodes []node
	opts  Options
	// planes holds the distinct polygon planes built into the tree when
	// the depth cap follows the input.
	planes map[geom.Plane]struct{}
}

// New returns an empty tree whose polygons live in pool.
func New(pool *Pool, opts Options) (*Tree, error) {
	if opts.Epsilon == 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.Epsilon < 0 || opts.MaxDepth < 0 {
		return nil, brep.Errorf(brep.KindValidation, "bsp.New", "negative epsilon %v or max depth %d", opts.Epsilon, opts.MaxDepth)
	}
	if pool == nil {
		pool = &Pool{}
	}
	t := &Tree{pool: pool, opts: opts}
	if opts.MaxDepth == 0 {
		t.planes = make(map[geom.Plane]struct{})
	}
	t.newNode()
	return t, nil
}

// Pool returns the vertex pool of the tree.
func (t *Tree) Pool() *Pool { return t.pool }

// MaxDepth returns the current depth cap.
func (t *Tree) MaxDepth() int {
	if t.planes == nil {
		return t.opts.MaxDepth
	}
	return max(DefaultMaxDepth, len(t.planes))
}

func (t *Tree) newNode() uint32 {
	t.nodes = append(t.nodes, node{front: brep.Absent, back: brep.Absent})
	return uint32(len(t.nodes) - 1)
}

// Build inserts polygons into the tree, splitting them by existing node
// planes and growing new nodes as needed. tick, which may be nil, advances
// once per polygon classified. Building past the depth cap fails with
// brep.KindCapacity, leaving the tree partially built.
func (t *Tree) Build(polys []Polygon, tick *brep.Ticker) error {
	if t.planes != nil {
		for _, p := range polys {
			t.planes[p.Plane] = struct{}{}
		}
	}
	return t.build(0, polys, 1, t.MaxDepth(), tick)
}

func (t *Tree) build(ni uint32, polys []Polygon, depth, maxDepth int, tick *brep.Ticker) error {
	if len(polys) == 0 {
		return nil
	}
	if depth > maxDepth {
		return brep.Errorf(brep.KindCapacity, "bsp.Build", "tree depth exceeds %d with %d polygons left", maxDepth, len(polys)).
			WithHint("raise MaxDepth or leave it zero to follow the number of face planes")
	}
	if !t.nodes[ni].hasPlane {
		t.nodes[ni].plane = t.choosePlane(polys)
		t.nodes[ni].hasPlane = true
	}
	pl := t.nodes[ni].plane
	coplanar := t.nodes[ni].polys
	var front, back []Polygon
	for _, p := range polys {
		if err := tick.Tick(); err != nil {
			return err
		}
		if err := t.pool.split(pl, p, t.opts.Epsilon, &coplanar, &coplanar, &front, &back); err != nil {
			return err
		}
	}
	t.nodes[ni].polys = coplanar
	if len(front) > 0 {
		if t.nodes[ni].front == brep.Absent {
			child := t.newNode()
			t.nodes[ni].front = child
		}
		if err := t.build(t.nodes[ni].front, front, depth+1, maxDepth, tick); err != nil {
			return err
		}
	}
	if len(back) > 0 {
		if t.nodes[ni].back == brep.Absent {
			child := t.newNode()
			t.nodes[ni].back = child
		}
		if err := t.build(t.nodes[ni].back, back, depth+1, maxDepth, tick); err != nil {
			return err
		}
	}
	return nil
}

// choosePlane returns the plane, among an evenly spaced sample of polygon
// planes, with the lowest cost. A plane costs splitCost per polygon it
// splits plus the difference between the polygons left in front and behind.
func (t *Tree) choosePlane(polys []Polygon) geom.Plane {
	step := max(1, len(polys)/maxCandidates)
	best, bestCost := 0, -1
	for i := 0; i < len(polys); i += step {
		pl := polys[i].Plane
		var splits, front, back int
		for j := range polys {
			if j == i {
				continue
			}
			switch t.side(pl, polys[j]) {
			case geom.Spanning:
				splits++
			case geom.Front:
				front++
			case geom.Back:
				back++
			}
		}
		imbalance := front - back
		if imbalance < 0 {
			imbalance = -imbalance
		}
		cost := splitCost*splits + imbalance
		if bestCost < 0 || cost < bestCost {
			best, bestCost = i, cost
			if cost <= 1 {
				break
			}
		}
	}
	return polys[best].Plane
}

// side classifies polygon p against pl.
func (t *Tree) side(pl geom.Plane, p Polygon) geom.Side {
	var kind geom.Side
	for _, v := range p.Verts {
		kind |= pl.Classify(t.pool.Vertices[v].Pos, t.opts.Epsilon)
		if kind == geom.Spanning {
			break
		}
	}
	return kind
}

// Invert turns the solid inside out: every plane and polygon is flipped
// and front and back children swap. Vertex normals are left untouched.
func (t *Tree) Invert() {
	for i := range t.nodes {
		n := &t.nodes[i]
		for j := range n.polys {
			n.polys[j] = n.polys[j].Flip()
		}
		n.plane = n.plane.Flip()
		n.front, n.back = n.back, n.front
	}
}

// ClipPolygons returns the parts of polys outside the solid described by t.
// tick, which may be nil, advances once per polygon classified.
func (t *Tree) ClipPolygons(polys []Polygon, tick *brep.Ticker) ([]Polygon, error) {
	return t.clip(0, polys, tick)
}

func (t *Tree) clip(ni uint32, polys []Polygon, tick *brep.Ticker) ([]Polygon, error) {
	n := &t.nodes[ni]
	if !n.hasPlane {
		return append([]Polygon(nil), polys...), nil
	}
	pl, frontChild, backChild := n.plane, n.front, n.back
	var front, back []Polygon
	for _, p := range polys {
		if err := tick.Tick(); err != nil {
			return nil, err
		}
		if err := t.pool.split(pl, p, t.opts.Epsilon, &front, &back, &front, &back); err != nil {
			return nil, err
		}
	}
	var err error
	if frontChild != brep.Absent {
		if front, err = t.clip(frontChild, front, tick); err != nil {
			return nil, err
		}
	}
	if backChild == brep.Absent {
		return front, nil
	}
	if back, err = t.clip(backChild, back, tick); err != nil {
		return nil, err
	}
	return append(front, back...), nil
}

// ClipTo removes the parts of t's polygons inside other. Both trees must
// share a pool.
func (t *Tree) ClipTo(other *Tree, tick *brep.Ticker) error {
	if t.pool != other.pool {
		return brep.Errorf(brep.KindInternal, "bsp.ClipTo", "trees do not share a vertex pool")
	}
	for i := range t.nodes {
		clipped, err := other.clip(0, t.nodes[i].polys, tick)
		if err != nil {
			return err
		}
		t.nodes[i].polys = clipped
	}
	return nil
}

// AllPolygons returns every polygon in the tree in depth first order,
// front subtrees first.
func (t *Tree) AllPolygons() []Polygon {
	var out []Polygon
	t.walk(func(n *node, _ int) {
		out = append(out, n.polys...)
	})
	return out
}

func (t *Tree) walk(fn func(n *node, depth int)) {
	type item struct {
		ni    uint32
		depth int
	}
	stack := []item{{0, 1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[it.ni]
		fn(n, it.depth)
		if n.back != brep.Absent {
			stack = append(stack, item{n.back, it.depth + 1})
		}
		if n.front != brep.Absent {
			stack = append(stack, item{n.front, it.depth + 1})
		}
	}
}

// Depth returns the number of nodes on the longest root to leaf path. An
// empty tree has depth 1.
func (t *Tree) Depth() (depth int) {
	t.walk(func(_ *node, d int) { depth = max(depth, d) })
	return depth
}

// NodeCount returns the number of nodes in the arena.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// PolygonCount returns the number of polygons stored in the tree.
func (t *Tree) PolygonCount() (n int) {
	for i := range t.nodes {
		n += len(t.nodes[i].polys)
	}
	return n
}

// Contains reports whether p lies strictly inside the solid. Points within
// Epsilon of a node plane are treated as outside of it.
func (t *Tree) Contains(p ms3.Vec) bool {
	ni := uint32(0)
	if !t.nodes[0].hasPlane {
		return false
	}
	for {
		n := &t.nodes[ni]
		if n.plane.Distance(p) < -t.opts.Epsilon {
			if n.back == brep.Absent {
				return true
			}
			ni = n.back
		} else {
			if n.front == brep.Absent {
				return false
			}
			ni = n.front
		}
	}
}

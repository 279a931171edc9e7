// Package bvh implements a bounding volume hierarchy over triangle meshes
// for ray, box, frustum and nearest point queries.
package bvh

import (
	"sort"

	"github.com/soypat/brep"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

const (
	// MaxLeafSize is the largest number of triangles stored in a leaf.
	MaxLeafSize = 4
	// MaxDepth caps the tree depth; deeper slices become oversized leaves.
	MaxDepth = 64
)

// Node is a BVH node. Internal nodes have Count == 0 and reference their
// children; leaves reference Count primitives starting at First in the
// primitive index order.
type Node struct {
	Bounds      ms3.Box
	Left, Right uint32
	First       uint32
	Count       uint32
}

// IsLeaf reports whether n references primitives.
func (n *Node) IsLeaf() bool { return n.Count > 0 }

// BVH is an immutable acceleration structure. It owns copies of the vertex
// positions and triangle indices so later changes to the source mesh do not
// affect queries.
type BVH struct {
	positions []ms3.Vec
	indices   []uint32
	nodes     []Node
	// prims maps leaf slots to triangle indices.
	prims []uint32
	depth int
}

type buildPrim struct {
	box      ms3.Box
	centroid ms3.Vec
}

// New builds a BVH over positions and triangle indices.
// The progress callback is ticked once per primitive placed in a leaf.
func New(positions []ms3.Vec, indices []uint32, progress brep.ProgressFunc) (*BVH, error) {
	const op = "bvh.New"
	if len(indices)%3 != 0 {
		return nil, brep.Errorf(brep.KindValidation, op, "index count %d is not a multiple of 3", len(indices))
	}
	for i, idx := range indices {
		if int(idx) >= len(positions) {
			return nil, brep.Errorf(brep.KindValidation, op, "face %d references vertex %d, vertex count is %d", i/3, idx, len(positions))
		}
	}
	b := &BVH{
		positions: append([]ms3.Vec(nil), positions...),
		indices:   append([]uint32(nil), indices...),
	}
	nt := len(indices) / 3
	if nt == 0 {
		return b, nil
	}
	built := make([]buildPrim, nt)
	b.prims = make([]uint32, nt)
	for i := range built {
		a, bb, c := b.triangle(uint32(i))
		built[i] = buildPrim{box: d3.TriangleBox(a, bb, c), centroid: d3.Centroid(a, bb, c)}
		b.prims[i] = uint32(i)
	}
	b.nodes = make([]Node, 1, 2*nt/MaxLeafSize+1)
	tick := brep.NewTicker(op, progress, nt)
	if err := b.subdivide(0, 0, nt, 1, built, tick); err != nil {
		return nil, err
	}
	return b, tick.Done()
}

// FromMesh builds a BVH over md.
func FromMesh(md *mesh.Data, progress brep.ProgressFunc) (*BVH, error) {
	return New(md.Positions, md.Indices, progress)
}

func (b *BVH) subdivide(node, start, end, depth int, built []buildPrim, tick *brep.Ticker) error {
	if depth > b.depth {
		b.depth = depth
	}
	bounds := d3.EmptyBox()
	centroids := d3.EmptyBox()
	for _, p := range b.prims[start:end] {
		bounds = d3.Extend(bounds, built[p].box)
		centroids = d3.Include(centroids, built[p].centroid)
	}
	if end-start <= MaxLeafSize || depth >= MaxDepth {
		b.nodes[node] = Node{Bounds: bounds, First: uint32(start), Count: uint32(end - start)}
		for i := start; i < end; i++ {
			if err := tick.Tick(); err != nil {
				return err
			}
		}
		return nil
	}
	// Longest centroid axis, split at the median.
	axis := d3.LongestAxis(centroids.Size())
	slice := b.prims[start:end]
	sort.Slice(slice, func(i, j int) bool {
		return d3.Comp(built[slice[i]].centroid, axis) < d3.Comp(built[slice[j]].centroid, axis)
	})
	mid := start + (end-start)/2
	left := len(b.nodes)
	b.nodes = append(b.nodes, Node{}, Node{})
	b.nodes[node] = Node{Bounds: bounds, Left: uint32(left), Right: uint32(left + 1)}
	if err := b.subdivide(left, start, mid, depth+1, built, tick); err != nil {
		return err
	}
	return b.subdivide(left+1, mid, end, depth+1, built, tick)
}

func (b *BVH) triangle(prim uint32) (a, bb, c ms3.Vec) {
	i := 3 * prim
	return b.positions[b.indices[i]], b.positions[b.indices[i+1]], b.positions[b.indices[i+2]]
}

// Triangle returns the positions of triangle prim.
func (b *BVH) Triangle(prim uint32) ms3.Triangle {
	a, bb, c := b.triangle(prim)
	return ms3.Triangle{a, bb, c}
}

// Bounds returns the bounds of all triangles. An empty BVH returns an
// inverted box.
func (b *BVH) Bounds() ms3.Box {
	if len(b.nodes) == 0 {
		return d3.EmptyBox()
	}
	return b.nodes[0].Bounds
}

// PrimitiveCount returns the number of triangles.
func (b *BVH) PrimitiveCount() int { return len(b.prims) }

// NodeCount returns the number of nodes.
func (b *BVH) NodeCount() int { return len(b.nodes) }

// Depth returns the number of levels in the tree.
func (b *BVH) Depth() int { return b.depth }

// Nodes returns the node array. Node 0 is the root.
func (b *BVH) Nodes() []Node { return b.nodes }

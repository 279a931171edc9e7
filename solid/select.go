package solid

import (
	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

// flatAngle is the dihedral magnitude under which an edge counts as flat.
const flatAngle = 1e-3

func (s *Solid) selectEdges(keep func(e *Edge) bool) []uint32 {
	var out []uint32
	for i := range s.edges {
		if keep(&s.edges[i]) {
			out = append(out, uint32(i))
		}
	}
	return out
}

// FindSharpEdges returns the two-sided edges whose dihedral angle magnitude
// exceeds minAngle radians.
func (s *Solid) FindSharpEdges(minAngle float32) []uint32 {
	return s.selectEdges(func(e *Edge) bool {
		return len(e.Faces) == 2 && math32.Abs(e.Dihedral) > minAngle
	})
}

// FindConvexEdges returns the edges across which the surface folds away
// from its normals.
func (s *Solid) FindConvexEdges() []uint32 {
	return s.selectEdges(func(e *Edge) bool { return len(e.Faces) == 2 && e.Dihedral > flatAngle })
}

// FindConcaveEdges returns the edges across which the surface folds towards
// its normals.
func (s *Solid) FindConcaveEdges() []uint32 {
	return s.selectEdges(func(e *Edge) bool { return len(e.Faces) == 2 && e.Dihedral < -flatAngle })
}

// FindBoundaryEdges returns the edges used by a single face.
func (s *Solid) FindBoundaryEdges() []uint32 {
	return s.selectEdges(func(e *Edge) bool { return e.Boundary })
}

// FindNonManifoldEdges returns the edges used by more than two faces.
func (s *Solid) FindNonManifoldEdges() []uint32 {
	return s.selectEdges(func(e *Edge) bool { return e.NonManifold })
}

// FindTangentEdges grows a selection from edge start through edges sharing
// an endpoint whose dihedral angle differs from that of the edge they were
// reached from by less than maxDeviation radians. The result is sorted and
// includes start.
func (s *Solid) FindTangentEdges(start uint32, maxDeviation float32) []uint32 {
	if int(start) >= len(s.edges) {
		return nil
	}
	seen := map[uint32]bool{start: true}
	queue := []uint32{start}
	out := []uint32{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		e := &s.edges[cur]
		for _, v := range [2]uint32{e.V0, e.V1} {
			for _, ni := range s.vertices[v].Edges {
				if seen[ni] {
					continue
				}
				n := &s.edges[ni]
				if len(n.Faces) != 2 || math32.Abs(n.Dihedral-e.Dihedral) >= maxDeviation {
					continue
				}
				seen[ni] = true
				queue = append(queue, ni)
				out = append(out, ni)
			}
		}
	}
	return sortedEdges(out)
}

// FindNonManifoldVertices returns the vertices on a non-manifold edge or
// whose incident faces form more than one fan.
func (s *Solid) FindNonManifoldVertices() []uint32 {
	var out []uint32
	parent := make(map[uint32]uint32)
	find := func(x uint32) uint32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for vi := range s.vertices {
		v := &s.vertices[vi]
		if len(v.Faces) == 0 {
			continue
		}
		nonManifold := false
		clear(parent)
		for _, f := range v.Faces {
			parent[f] = f
		}
		for _, ei := range v.Edges {
			e := &s.edges[ei]
			if e.NonManifold {
				nonManifold = true
				break
			}
			if len(e.Faces) == 2 {
				if a, b := find(e.Faces[0]), find(e.Faces[1]); a != b {
					parent[a] = b
				}
			}
		}
		if !nonManifold {
			root := find(v.Faces[0])
			for _, f := range v.Faces[1:] {
				if find(f) != root {
					nonManifold = true
					break
				}
			}
		}
		if nonManifold {
			out = append(out, uint32(vi))
		}
	}
	return out
}

// NearestVertex returns the vertex closest to p and its distance. The
// k-d tree behind the query is cached until the next topology change.
// An empty solid returns brep.Absent.
func (s *Solid) NearestVertex(p ms3.Vec) (uint32, float32) {
	s.mu.Lock()
	if s.cache.locator == nil {
		pos := make([]ms3.Vec, len(s.vertices))
		for i, v := range s.vertices {
			pos[i] = v.Pos
		}
		s.cache.locator = mesh.NewVertexLocator(pos)
	}
	loc := s.cache.locator
	s.mu.Unlock()
	if loc.Len() == 0 {
		return brep.Absent, math32.Inf(1)
	}
	return loc.Nearest(p)
}

package bvh

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
)

// Hit describes a ray-triangle intersection at r.At(T) with barycentric
// coordinates (U, V) on triangle Prim.
type Hit struct {
	T, U, V float32
	Prim    uint32
}

// Intersect returns the closest hit along r within [r.TMin, r.TMax].
// Nearer children are visited first and subtrees entered beyond the current
// best t are pruned.
func (b *BVH) Intersect(r geom.Ray) (best Hit, ok bool) {
	if len(b.nodes) == 0 {
		return best, false
	}
	inv := r.InvDir()
	t0, _, hit := r.IntersectBox(b.nodes[0].Bounds, inv)
	if !hit {
		return best, false
	}
	type entry struct {
		node   uint32
		tEnter float32
	}
	stack := make([]entry, 1, 2*MaxDepth)
	stack[0] = entry{node: 0, tEnter: t0}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ok && e.tEnter > r.TMax {
			continue
		}
		n := &b.nodes[e.node]
		if n.IsLeaf() {
			for _, p := range b.prims[n.First : n.First+n.Count] {
				v0, v1, v2 := b.triangle(p)
				if t, u, v, hit := r.IntersectTriangle(v0, v1, v2); hit {
					best = Hit{T: t, U: u, V: v, Prim: p}
					ok = true
					r.TMax = t
				}
			}
			continue
		}
		tl, _, hitL := r.IntersectBox(b.nodes[n.Left].Bounds, inv)
		tr, _, hitR := r.IntersectBox(b.nodes[n.Right].Bounds, inv)
		left := entry{node: n.Left, tEnter: tl}
		right := entry{node: n.Right, tEnter: tr}
		// Push the farther child first so the nearer one is visited next.
		switch {
		case hitL && hitR:
			if tl <= tr {
				stack = append(stack, right, left)
			} else {
				stack = append(stack, left, right)
			}
		case hitL:
			stack = append(stack, left)
		case hitR:
			stack = append(stack, right)
		}
	}
	return best, ok
}

// IntersectAny reports whether r hits any triangle within [r.TMin, r.TMax].
func (b *BVH) IntersectAny(r geom.Ray) bool {
	found := false
	b.walkRay(r, func(h Hit) bool {
		found = true
		return false
	})
	return found
}

// IntersectAll returns every hit along r sorted by increasing T.
func (b *BVH) IntersectAll(r geom.Ray) []Hit {
	var hits []Hit
	b.walkRay(r, func(h Hit) bool {
		hits = append(hits, h)
		return true
	})
	sort.Slice(hits, func(i, j int) bool { return hits[i].T < hits[j].T })
	return hits
}

// walkRay calls fn for every hit in traversal order until fn returns false.
func (b *BVH) walkRay(r geom.Ray, fn func(Hit) bool) {
	if len(b.nodes) == 0 {
		return
	}
	inv := r.InvDir()
	stack := make([]uint32, 1, 2*MaxDepth)
	for len(stack) > 0 {
		n := &b.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if _, _, hit := r.IntersectBox(n.Bounds, inv); !hit {
			continue
		}
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.Left)
			continue
		}
		for _, p := range b.prims[n.First : n.First+n.Count] {
			v0, v1, v2 := b.triangle(p)
			if t, u, v, hit := r.IntersectTriangle(v0, v1, v2); hit {
				if !fn(Hit{T: t, U: u, V: v, Prim: p}) {
					return
				}
			}
		}
	}
}

// QueryBox returns the triangles whose bounding boxes overlap box.
func (b *BVH) QueryBox(box ms3.Box) []uint32 {
	return b.collect(func(bb ms3.Box) bool { return d3.Overlaps(bb, box) })
}

// QueryFrustum returns the triangles whose bounding boxes are not entirely
// on the negative side of any plane. Plane normals point into the frustum.
func (b *BVH) QueryFrustum(planes []geom.Plane) []uint32 {
	return b.collect(func(bb ms3.Box) bool {
		for _, pl := range planes {
			// Corner furthest along the plane normal.
			pv := bb.Min
			if pl.N.X >= 0 {
				pv.X = bb.Max.X
			}
			if pl.N.Y >= 0 {
				pv.Y = bb.Max.Y
			}
			if pl.N.Z >= 0 {
				pv.Z = bb.Max.Z
			}
			if pl.Distance(pv) < 0 {
				return false
			}
		}
		return true
	})
}

func (b *BVH) collect(accept func(ms3.Box) bool) []uint32 {
	if len(b.nodes) == 0 {
		return nil
	}
	var out []uint32
	stack := make([]uint32, 1, 2*MaxDepth)
	for len(stack) > 0 {
		n := &b.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !accept(n.Bounds) {
			continue
		}
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.Left)
			continue
		}
		for _, p := range b.prims[n.First : n.First+n.Count] {
			v0, v1, v2 := b.triangle(p)
			if accept(d3.TriangleBox(v0, v1, v2)) {
				out = append(out, p)
			}
		}
	}
	return out
}

// ClosestPoint returns the point on the mesh surface nearest to p, the
// triangle it lies on and its distance. An empty BVH returns ok=false.
func (b *BVH) ClosestPoint(p ms3.Vec) (closest ms3.Vec, prim uint32, dist float32, ok bool) {
	if len(b.nodes) == 0 {
		return closest, 0, math32.Inf(1), false
	}
	best := math32.Inf(1)
	b.nearest(0, p, &best, &closest, &prim)
	return closest, prim, math32.Sqrt(best), true
}

func (b *BVH) nearest(node uint32, p ms3.Vec, best2 *float32, closest *ms3.Vec, prim *uint32) {
	n := &b.nodes[node]
	if n.IsLeaf() {
		for _, t := range b.prims[n.First : n.First+n.Count] {
			v0, v1, v2 := b.triangle(t)
			q := closestOnTriangle(p, v0, v1, v2)
			if d2 := d3.Dist2(p, q); d2 < *best2 {
				*best2, *closest, *prim = d2, q, t
			}
		}
		return
	}
	dl := minDistBox(p, b.nodes[n.Left].Bounds)
	dr := minDistBox(p, b.nodes[n.Right].Bounds)
	first, second := n.Left, n.Right
	if dr < dl {
		first, second = second, first
		dl, dr = dr, dl
	}
	if dl < *best2 {
		b.nearest(first, p, best2, closest, prim)
	}
	if dr < *best2 {
		b.nearest(second, p, best2, closest, prim)
	}
}

// minDistBox returns the squared distance from p to the box, zero inside.
func minDistBox(p ms3.Vec, bb ms3.Box) float32 {
	dx := math32.Max(0, math32.Max(p.X-bb.Max.X, bb.Min.X-p.X))
	dy := math32.Max(0, math32.Max(p.Y-bb.Max.Y, bb.Min.Y-p.Y))
	dz := math32.Max(0, math32.Max(p.Z-bb.Max.Z, bb.Min.Z-p.Z))
	return dx*dx + dy*dy + dz*dz
}

// closestOnTriangle returns the point of triangle abc closest to p by
// Voronoi region classification.
func closestOnTriangle(p, a, b, c ms3.Vec) ms3.Vec {
	ab := ms3.Sub(b, a)
	ac := ms3.Sub(c, a)
	ap := ms3.Sub(p, a)
	d1, d2 := d3.Dot(ab, ap), d3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := ms3.Sub(p, b)
	d3b, d4 := d3.Dot(ab, bp), d3.Dot(ac, bp)
	if d3b >= 0 && d4 <= d3b {
		return b
	}
	vc := d1*d4 - d3b*d2
	if vc <= 0 && d1 >= 0 && d3b <= 0 {
		return ms3.Add(a, ms3.Scale(d1/(d1-d3b), ab))
	}
	cp := ms3.Sub(p, c)
	d5, d6 := d3.Dot(ab, cp), d3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return ms3.Add(a, ms3.Scale(d2/(d2-d6), ac))
	}
	va := d3b*d6 - d5*d4
	if va <= 0 && d4-d3b >= 0 && d5-d6 >= 0 {
		w := (d4 - d3b) / ((d4 - d3b) + (d5 - d6))
		return ms3.Add(b, ms3.Scale(w, ms3.Sub(c, b)))
	}
	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return ms3.Add(a, ms3.Add(ms3.Scale(v, ab), ms3.Scale(w, ac)))
}

// Package decimate simplifies triangle meshes by quadric error metric edge
// collapse.
//
// Candidate collapses live in a min-priority queue that is never updated in
// place. Each vertex carries a version counter that is bumped whenever its
// neighbourhood changes; a queue entry records the sum of its endpoint
// versions when pushed and is discarded on pop if the sum no longer matches.
package decimate

import (
	"container/heap"

	"github.com/soypat/brep"
	"github.com/soypat/brep/halfedge"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

// Stats summarizes a decimation run.
type Stats struct {
	InitialFaces    int
	InitialVertices int
	FinalFaces      int
	FinalVertices   int
	TargetFaces     int
	Collapses       int
	// StaleSkipped counts queue entries discarded by the version check.
	StaleSkipped int
	// Rejected counts candidates refused by locks or the topology check.
	Rejected int
	// MaxError is the largest cost among performed collapses.
	MaxError float32
}

// Result is the simplified mesh with compacted vertices and recomputed normals.
type Result struct {
	Mesh  *mesh.Data
	Stats Stats
}

// candidate is a queued edge collapse keeping V0 and removing V1.
type candidate struct {
	HalfEdge uint32
	V0, V1   uint32
	Target   ms3.Vec
	Cost     float32
	Version  uint32
}

type queue []candidate

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return q[i].Cost < q[j].Cost }
func (q queue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)        { *q = append(*q, x.(candidate)) }
func (q *queue) Pop() any {
	old := *q
	c := old[len(old)-1]
	*q = old[:len(old)-1]
	return c
}

type bitset []uint64

func newBitset(n int) bitset       { return make(bitset, (n+63)/64) }
func (b bitset) get(i uint32) bool { return b[i/64]&(1<<(i%64)) != 0 }
func (b bitset) set(i uint32)      { b[i/64] |= 1 << (i % 64) }

type decimator struct {
	hm        *halfedge.Mesh
	opts      Options
	quadrics  []Quadric
	versions  []uint32
	deletedV  bitset
	deletedF  bitset
	locked    bitset
	liveFaces int
	liveVerts int
	q         queue
	stats     Stats
}

// Decimate simplifies hm in place and returns the compacted result. hm is
// consumed: after the call its half-edge arrays describe a partially
// collapsed mesh and should not be reused.
//
// Vertices on non-manifold edges or with non-manifold links are locked.
// A progress callback returning false aborts with a cancellation error.
func Decimate(hm *halfedge.Mesh, opts Options, progress brep.ProgressFunc) (Result, error) {
	const op = "decimate.Decimate"
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if opts.BoundaryWeight == 0 {
		opts.BoundaryWeight = DefaultBoundaryWeight
	}
	d := &decimator{
		hm:       hm,
		opts:     opts,
		quadrics: make([]Quadric, len(hm.Vertices)),
		versions: make([]uint32, len(hm.Vertices)),
		deletedV: newBitset(len(hm.Vertices)),
		deletedF: newBitset(len(hm.Faces)),
		locked:   newBitset(len(hm.Vertices)),
	}
	d.init()
	if d.liveFaces == 0 {
		return Result{}, brep.Errorf(brep.KindDegenerate, op, "mesh has no non-degenerate faces to decimate")
	}
	target := TargetFaces(opts, d.liveFaces)
	d.stats.TargetFaces = target
	tick := brep.NewTicker(op, progress, d.liveFaces-target)
	for d.liveFaces > target && d.q.Len() > 0 {
		if err := tick.Tick(); err != nil {
			return Result{}, err
		}
		c := heap.Pop(&d.q).(candidate)
		if opts.MaxError > 0 && c.Cost > opts.MaxError {
			break
		}
		if d.deletedV.get(c.V0) || d.deletedV.get(c.V1) || c.Version != d.versions[c.V0]+d.versions[c.V1] {
			d.stats.StaleSkipped++
			continue
		}
		h := hm.FindHalfEdge(c.V0, c.V1)
		if h == brep.Absent {
			d.stats.StaleSkipped++
			continue
		}
		if d.locked.get(c.V0) || d.locked.get(c.V1) || !d.canCollapse(h, c.Target) {
			d.stats.Rejected++
			continue
		}
		d.collapse(h, c.Target)
		d.stats.Collapses++
		if c.Cost > d.stats.MaxError {
			d.stats.MaxError = c.Cost
		}
	}
	res := Result{Mesh: d.export(), Stats: d.stats}
	res.Stats.FinalFaces = res.Mesh.FaceCount()
	res.Stats.FinalVertices = res.Mesh.VertexCount()
	return res, tick.Done()
}

// Simplify builds a half-edge mesh from md and decimates it. md is not modified.
func Simplify(md *mesh.Data, opts Options, progress brep.ProgressFunc) (Result, error) {
	hm, err := halfedge.FromMesh(md)
	if err != nil {
		return Result{}, err
	}
	return Decimate(hm, opts, progress)
}

func (d *decimator) pos(v uint32) ms3.Vec { return d.hm.Vertices[v].Pos }

func (d *decimator) init() {
	hm := d.hm
	for f := range hm.Faces {
		a, b, c, ok := hm.FaceTriangle(uint32(f))
		if !ok {
			d.deletedF.set(uint32(f))
			continue
		}
		d.liveFaces++
		n := d3.UnitOr(d3.TriNormal(d.pos(a), d.pos(b), d.pos(c)), ms3.Vec{})
		if n == (ms3.Vec{}) {
			continue
		}
		qf := PlaneQuadric(n, -d3.Dot(n, d.pos(a)))
		d.quadrics[a] = d.quadrics[a].Add(qf)
		d.quadrics[b] = d.quadrics[b].Add(qf)
		d.quadrics[c] = d.quadrics[c].Add(qf)
	}
	for v := range hm.Vertices {
		if hm.Vertices[v].HalfEdge == brep.Absent {
			d.deletedV.set(uint32(v))
		} else {
			d.liveVerts++
		}
	}
	d.stats.InitialFaces = d.liveFaces
	d.stats.InitialVertices = d.liveVerts
	if d.opts.PreserveBoundary {
		for h := range hm.HalfEdges {
			if hm.HalfEdges[h].Twin != brep.Absent {
				continue
			}
			v0, v1 := hm.Source(uint32(h)), hm.Target(uint32(h))
			p0 := d.pos(v0)
			fn := hm.Faces[hm.HalfEdges[h].Face].Normal
			m := d3.UnitOr(ms3.Cross(ms3.Sub(d.pos(v1), p0), fn), ms3.Vec{})
			if m == (ms3.Vec{}) {
				continue
			}
			qb := PlaneQuadric(m, -d3.Dot(m, p0)).Scale(d.opts.BoundaryWeight)
			d.quadrics[v0] = d.quadrics[v0].Add(qb)
			d.quadrics[v1] = d.quadrics[v1].Add(qb)
		}
	}
	for _, v := range d.opts.LockedVertices {
		if int(v) < len(hm.Vertices) {
			d.locked.set(v)
		}
	}
	for _, e := range hm.FindNonManifoldEdges() {
		d.locked.set(e.V0)
		d.locked.set(e.V1)
	}
	for _, v := range hm.FindNonManifoldVertices() {
		d.locked.set(v)
	}
	for h := range hm.HalfEdges {
		he := hm.HalfEdges[h]
		if he.Twin == brep.Absent || uint32(h) < he.Twin {
			d.push(uint32(h))
		}
	}
}

// push queues the collapse of half-edge h onto its source vertex.
func (d *decimator) push(h uint32) {
	v0, v1 := d.hm.Source(h), d.hm.Target(h)
	if d.locked.get(v0) || d.locked.get(v1) {
		return
	}
	q := d.quadrics[v0].Add(d.quadrics[v1])
	target, ok := q.Optimal()
	cost := float32(0)
	if ok {
		cost = q.Eval(target)
	} else {
		// Near singular: take the cheapest of the midpoint and the endpoints,
		// preferring the midpoint on ties.
		p0, p1 := d.pos(v0), d.pos(v1)
		target = d3.Lerp(p0, p1, 0.5)
		cost = q.Eval(target)
		for _, p := range [2]ms3.Vec{p0, p1} {
			if e := q.Eval(p); e < cost {
				target, cost = p, e
			}
		}
	}
	if d.opts.MaxError > 0 && cost > d.opts.MaxError {
		return
	}
	heap.Push(&d.q, candidate{
		HalfEdge: h,
		V0:       v0,
		V1:       v1,
		Target:   target,
		Cost:     cost,
		Version:  d.versions[v0] + d.versions[v1],
	})
}

// canCollapse applies the link condition, valence guards and the normal
// flip test for collapsing h onto target.
func (d *decimator) canCollapse(h uint32, target ms3.Vec) bool {
	hm := d.hm
	he := hm.HalfEdges[h]
	v0, v1 := hm.Source(h), he.Vertex
	opposite := []uint32{hm.Target(he.Next)}
	if he.Twin != brep.Absent {
		if hm.IsBoundaryVertex(v0) && hm.IsBoundaryVertex(v1) {
			return false // Interior edge joining two boundary vertices would pinch.
		}
		opposite = append(opposite, hm.Target(hm.HalfEdges[he.Twin].Next))
	}
	n0 := hm.VertexNeighbors(v0)
	n1 := hm.VertexNeighbors(v1)
	common := 0
	for _, a := range n0 {
		for _, b := range n1 {
			if a != b {
				continue
			}
			common++
			if !contains(opposite, a) {
				return false
			}
		}
	}
	if common != len(opposite) {
		return false
	}
	for _, x := range opposite {
		val := len(hm.VertexNeighbors(x))
		if val <= 2 || (val <= 3 && !hm.IsBoundaryVertex(x)) {
			return false
		}
	}
	removed := [2]uint32{he.Face, brep.Absent}
	if he.Twin != brep.Absent {
		removed[1] = hm.HalfEdges[he.Twin].Face
	}
	for _, v := range [2]uint32{v0, v1} {
		for _, f := range hm.VertexFaces(v) {
			if f == removed[0] || f == removed[1] {
				continue
			}
			a, b, c, _ := hm.FaceTriangle(f)
			tri := [3]ms3.Vec{d.pos(a), d.pos(b), d.pos(c)}
			before := d3.TriNormal(tri[0], tri[1], tri[2])
			for i, u := range [3]uint32{a, b, c} {
				if u == v0 || u == v1 {
					tri[i] = target
				}
			}
			after := d3.TriNormal(tri[0], tri[1], tri[2])
			if d3.Dot(before, after) <= 0 {
				return false
			}
		}
	}
	return true
}

func contains(s []uint32, v uint32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// collapse merges the target vertex of h into its source and moves the
// source to target. The faces on both sides of h are deleted and their
// outer half-edges are twinned across the removed region.
func (d *decimator) collapse(h uint32, target ms3.Vec) {
	hm := d.hm
	hes := hm.HalfEdges
	v0, v1 := hm.Source(h), hes[h].Vertex
	incoming := hm.VertexOutgoing(v1)
	for i, o := range incoming {
		incoming[i] = hes[o].Prev
	}
	link := func(a, b uint32) {
		if a != brep.Absent {
			hes[a].Twin = b
		}
		if b != brep.Absent {
			hes[b].Twin = a
		}
	}
	var survivors []uint32 // half-edges that may serve as vertex outgoing.
	removeFace := func(e uint32) (apex uint32) {
		en, ep := hes[e].Next, hes[e].Prev
		apex = hes[en].Vertex
		outerN, outerP := hes[en].Twin, hes[ep].Twin
		link(outerN, outerP)
		hes[en].Twin = brep.Absent
		hes[ep].Twin = brep.Absent
		d.deletedF.set(hes[e].Face)
		d.liveFaces--
		for _, o := range [2]uint32{outerN, outerP} {
			if o != brep.Absent {
				survivors = append(survivors, o, hes[o].Next)
			}
		}
		return apex
	}
	apexes := []uint32{removeFace(h)}
	if t := hes[h].Twin; t != brep.Absent {
		apexes = append(apexes, removeFace(t))
		hes[t].Twin = brep.Absent
	}
	hes[h].Twin = brep.Absent
	for _, in := range incoming {
		if !d.deletedF.get(hes[in].Face) {
			hes[in].Vertex = v0
		}
	}
	hm.Vertices[v0].Pos = target
	hm.Vertices[v1].HalfEdge = brep.Absent
	d.deletedV.set(v1)
	d.liveVerts--
	d.quadrics[v0] = d.quadrics[v0].Add(d.quadrics[v1])
	d.versions[v0]++

	// Repair outgoing references of v0 and the apex vertices.
	for _, v := range append(apexes, v0) {
		cur := hm.Vertices[v].HalfEdge
		if cur != brep.Absent && !d.deletedF.get(hes[cur].Face) && hm.Source(cur) == v {
			hm.Rewind(v)
			continue
		}
		hm.Vertices[v].HalfEdge = brep.Absent
		for _, s := range survivors {
			if !d.deletedF.get(hes[s].Face) && hm.Source(s) == v {
				hm.Vertices[v].HalfEdge = s
				break
			}
		}
		hm.Rewind(v)
	}
	for _, f := range hm.VertexFaces(v0) {
		a, b, c, _ := hm.FaceTriangle(f)
		hm.Faces[f].Normal = d3.UnitOr(d3.TriNormal(d.pos(a), d.pos(b), d.pos(c)), ms3.Vec{})
	}
	for _, o := range hm.VertexOutgoing(v0) {
		d.push(o)
		if p := hes[o].Prev; hes[p].Twin == brep.Absent {
			d.push(p)
		}
	}
}

// export compacts live vertices and faces into a new mesh.
func (d *decimator) export() *mesh.Data {
	hm := d.hm
	remap := make([]uint32, len(hm.Vertices))
	for i := range remap {
		remap[i] = brep.Absent
	}
	out := mesh.New(d.liveVerts, d.liveFaces)
	for f := range hm.Faces {
		if d.deletedF.get(uint32(f)) {
			continue
		}
		a, b, c, ok := hm.FaceTriangle(uint32(f))
		if !ok {
			continue
		}
		var idx [3]uint32
		for i, v := range [3]uint32{a, b, c} {
			if remap[v] == brep.Absent {
				remap[v] = out.AddVertex(hm.Vertices[v].Pos)
			}
			idx[i] = remap[v]
		}
		out.AddFace(idx[0], idx[1], idx[2])
	}
	out.ComputeNormals()
	return out
}

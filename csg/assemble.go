package csg

import (
	"slices"
	"sort"

	"github.com/chewxy/math32"
	"github.com/soypat/brep/bsp"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/brep/solid"
	"github.com/soypat/glgl/math/ms3"
)

type faceLoop struct {
	verts  []uint32
	tag    int32
	normal ms3.Vec
	dead   bool
}

// assemble welds the pool, drops collapsed polygons, repairs T-junctions
// and builds the result solid.
func assemble(pool *bsp.Pool, polys []bsp.Polygon, attrs []faceAttr, opts Options) (*solid.Solid, error) {
	pos := make([]ms3.Vec, len(pool.Vertices))
	for i, v := range pool.Vertices {
		pos[i] = v.Pos
	}
	remap, unique := mesh.Weld(pos, opts.MergeEpsilon)
	loops := make([]faceLoop, 0, len(polys))
	for _, p := range polys {
		l := weldLoop(p.Verts, remap)
		if l == nil || loopArea(unique, l) < solid.DefaultDegenerateArea {
			continue
		}
		loops = append(loops, faceLoop{verts: l, tag: p.Tag, normal: p.Plane.N})
	}
	repairTJunctions(unique, loops, opts.MergeEpsilon)
	if opts.MergeCoplanar {
		mergeCoplanar(unique, loops, attrs, opts.CoplanarEpsilon)
	}
	out := make([]solid.Polygon, 0, len(loops))
	for _, l := range loops {
		if l.dead {
			continue
		}
		a := attrs[l.tag]
		out = append(out, solid.Polygon{Loop: l.verts, Surface: a.surface, Material: a.material, Group: a.group})
	}
	return solid.FromPolygons(unique, out)
}

// weldLoop maps a loop through remap and removes the repeats left by
// welding. It returns nil if fewer than three distinct vertices remain or a
// vertex is visited twice.
func weldLoop(verts, remap []uint32) []uint32 {
	l := make([]uint32, 0, len(verts))
	for _, v := range verts {
		r := remap[v]
		if len(l) == 0 || l[len(l)-1] != r {
			l = append(l, r)
		}
	}
	for len(l) > 1 && l[0] == l[len(l)-1] {
		l = l[:len(l)-1]
	}
	if len(l) < 3 {
		return nil
	}
	for i, v := range l {
		if slices.Contains(l[i+1:], v) {
			return nil
		}
	}
	return l
}

func loopArea(pos []ms3.Vec, l []uint32) float32 {
	var n ms3.Vec
	for i, v := range l {
		n = ms3.Add(n, ms3.Cross(pos[v], pos[l[(i+1)%len(l)]]))
	}
	return ms3.Norm(n) / 2
}

// repairTJunctions inserts into every loop edge the used vertices lying on
// it, so that neighbouring fragments share edges.
func repairTJunctions(pos []ms3.Vec, loops []faceLoop, eps float32) {
	used := make([]bool, len(pos))
	var idx []uint32
	var upos []ms3.Vec
	for _, l := range loops {
		for _, v := range l.verts {
			if !used[v] {
				used[v] = true
				idx = append(idx, v)
				upos = append(upos, pos[v])
			}
		}
	}
	loc := mesh.NewVertexLocator(upos)
	type joint struct {
		t float32
		v uint32
	}
	var onEdge []joint
	for i := range loops {
		l := loops[i].verts
		out := make([]uint32, 0, len(l))
		for k, u := range l {
			v := l[(k+1)%len(l)]
			out = append(out, u)
			pu, pv := pos[u], pos[v]
			d := ms3.Sub(pv, pu)
			l2 := d3.Norm2(d)
			if l2 == 0 {
				continue
			}
			onEdge = onEdge[:0]
			for _, c := range loc.Within(d3.Lerp(pu, pv, 0.5), math32.Sqrt(l2)/2+eps) {
				w := idx[c]
				if w == u || w == v || slices.Contains(l, w) {
					continue
				}
				t := d3.Dot(ms3.Sub(pos[w], pu), d) / l2
				if t <= 0 || t >= 1 || d3.Dist(pos[w], d3.Lerp(pu, pv, t)) > eps {
					continue
				}
				onEdge = append(onEdge, joint{t: t, v: w})
			}
			sort.Slice(onEdge, func(i, j int) bool { return onEdge[i].t < onEdge[j].t })
			for _, j := range onEdge {
				out = append(out, j.v)
			}
		}
		loops[i].verts = out
	}
}

// mergeCoplanar repeatedly joins pairs of loops sharing an edge when they
// lie in the same plane, carry the same attributes and their union is
// convex. Joined loops are marked dead.
func mergeCoplanar(pos []ms3.Vec, loops []faceLoop, attrs []faceAttr, eps float32) {
	for {
		owner := make(map[[2]uint32]int)
		for i, l := range loops {
			if l.dead {
				continue
			}
			for k, u := range l.verts {
				owner[[2]uint32{u, l.verts[(k+1)%len(l.verts)]}] = i
			}
		}
		touched := make([]bool, len(loops))
		merged := false
		for i := range loops {
			if loops[i].dead || touched[i] {
				continue
			}
			l := loops[i].verts
			for k, u := range l {
				v := l[(k+1)%len(l)]
				j, ok := owner[[2]uint32{v, u}]
				if !ok || j == i || loops[j].dead || touched[j] ||
					attrs[loops[i].tag] != attrs[loops[j].tag] ||
					!coplanar(pos, loops[i], loops[j], eps) {
					continue
				}
				joined := joinLoops(l, loops[j].verts, u, v)
				if joined == nil || !convex(pos, joined, loops[i].normal, eps) {
					continue
				}
				loops[i].verts = joined
				loops[j].dead = true
				touched[i], touched[j] = true, true
				merged = true
				break
			}
		}
		if !merged {
			return
		}
	}
}

func coplanar(pos []ms3.Vec, a, b faceLoop, eps float32) bool {
	if d3.Dot(a.normal, b.normal) < 1-eps {
		return false
	}
	p0 := pos[a.verts[0]]
	for _, v := range b.verts {
		if math32.Abs(d3.Dot(a.normal, ms3.Sub(pos[v], p0))) > eps {
			return false
		}
	}
	return true
}

// joinLoops merges loop a, which walks edge u->v, with loop b, which walks
// v->u, removing the shared edge. It returns nil if the loops share more
// than that edge.
func joinLoops(a, b []uint32, u, v uint32) []uint32 {
	ka := slices.Index(a, v)
	kb := slices.Index(b, u)
	out := make([]uint32, 0, len(a)+len(b)-2)
	for i := 0; i < len(a); i++ {
		out = append(out, a[(ka+i)%len(a)])
	}
	// out runs v..u; continue along b after u until just before v.
	for i := 1; i < len(b)-1; i++ {
		w := b[(kb+i)%len(b)]
		if slices.Contains(out, w) {
			return nil
		}
		out = append(out, w)
	}
	return out
}

// convex reports whether loop turns left about normal at every corner.
// Collinear corners are accepted.
func convex(pos []ms3.Vec, loop []uint32, normal ms3.Vec, eps float32) bool {
	n := len(loop)
	for i := range loop {
		a, b, c := pos[loop[i]], pos[loop[(i+1)%n]], pos[loop[(i+2)%n]]
		if d3.Dot(ms3.Cross(ms3.Sub(b, a), ms3.Sub(c, b)), normal) < -eps*eps {
			return false
		}
	}
	return true
}

// combine places a and b in one solid without clipping.
func combine(a, b *solid.Solid) (*solid.Solid, error) {
	var pos []ms3.Vec
	var polys []solid.Polygon
	for _, s := range []*solid.Solid{a, b} {
		first := uint32(len(pos))
		for _, v := range s.Vertices() {
			pos = append(pos, v.Pos)
		}
		for _, f := range s.Faces() {
			loop := make([]uint32, len(f.Vertices))
			for i, v := range f.Vertices {
				loop[i] = first + v
			}
			polys = append(polys, solid.Polygon{Loop: loop, Surface: f.Surface, Material: f.Material, Group: f.Group})
		}
	}
	return solid.FromPolygons(pos, polys)
}

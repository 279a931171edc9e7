package solid

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
)

func edgeKey(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

func idKey(a, b ID) [2]ID {
	if a > b {
		a, b = b, a
	}
	return [2]ID{a, b}
}

// rebuildTopology derives edges, adjacency, face and vertex properties and
// shells from the face loops. Edge IDs are carried over by the IDs of their
// endpoints; vertices and faces keep theirs.
func (s *Solid) rebuildTopology() {
	oldEdges := make(map[[2]ID]ID, len(s.edges))
	for _, e := range s.edges {
		if int(e.V0) < len(s.vertices) && int(e.V1) < len(s.vertices) {
			oldEdges[idKey(s.vertices[e.V0].ID, s.vertices[e.V1].ID)] = e.ID
		}
	}
	for i := range s.vertices {
		v := &s.vertices[i]
		v.Edges = nil
		v.Faces = nil
		if v.ID == 0 {
			v.ID = NewID()
		}
	}
	s.edges = nil
	lookup := make(map[uint64]uint32, 3*len(s.faces)/2)
	for fi := range s.faces {
		f := &s.faces[fi]
		if f.ID == 0 {
			f.ID = NewID()
		}
		n := len(f.Vertices)
		f.Edges = make([]uint32, 0, n)
		for i, a := range f.Vertices {
			b := f.Vertices[(i+1)%n]
			k := edgeKey(a, b)
			ei, ok := lookup[k]
			if !ok {
				ei = uint32(len(s.edges))
				lookup[k] = ei
				v0, v1 := min(a, b), max(a, b)
				id, ok := oldEdges[idKey(s.vertices[v0].ID, s.vertices[v1].ID)]
				if !ok {
					id = NewID()
				}
				s.edges = append(s.edges, Edge{ID: id, V0: v0, V1: v1})
			}
			s.edges[ei].Faces = append(s.edges[ei].Faces, uint32(fi))
			f.Edges = append(f.Edges, ei)
			s.vertices[a].Faces = append(s.vertices[a].Faces, uint32(fi))
		}
		s.faceProperties(f)
	}
	for ei := range s.edges {
		e := &s.edges[ei]
		s.vertices[e.V0].Edges = append(s.vertices[e.V0].Edges, uint32(ei))
		s.vertices[e.V1].Edges = append(s.vertices[e.V1].Edges, uint32(ei))
		s.edgeProperties(e)
	}
	for vi := range s.vertices {
		s.vertexProperties(uint32(vi))
	}
	s.findShells()
	s.invalidate()
}

func (s *Solid) faceProperties(f *Face) {
	var newell, centroid ms3.Vec
	var area float32
	p0 := s.vertices[f.Vertices[0]].Pos
	n := len(f.Vertices)
	for i := range f.Vertices {
		cur := s.vertices[f.Vertices[i]].Pos
		nxt := s.vertices[f.Vertices[(i+1)%n]].Pos
		newell.X += (cur.Y - nxt.Y) * (cur.Z + nxt.Z)
		newell.Y += (cur.Z - nxt.Z) * (cur.X + nxt.X)
		newell.Z += (cur.X - nxt.X) * (cur.Y + nxt.Y)
		if i > 0 && i < n-1 {
			a := d3.TriArea(p0, cur, nxt)
			centroid = ms3.Add(centroid, ms3.Scale(a, d3.Centroid(p0, cur, nxt)))
			area += a
		}
	}
	f.Normal = d3.UnitOr(newell, ms3.Vec{})
	f.Area = ms3.Norm(newell) / 2
	if area > 0 {
		f.Centroid = ms3.Scale(1/area, centroid)
	} else {
		f.Centroid = ms3.Vec{}
		for _, v := range f.Vertices {
			f.Centroid = ms3.Add(f.Centroid, s.vertices[v].Pos)
		}
		f.Centroid = ms3.Scale(1/float32(n), f.Centroid)
	}
}

func (s *Solid) edgeProperties(e *Edge) {
	p0, p1 := s.vertices[e.V0].Pos, s.vertices[e.V1].Pos
	d := ms3.Sub(p1, p0)
	e.Length = ms3.Norm(d)
	e.Dir = d3.UnitOr(d, ms3.Vec{})
	e.Mid = d3.Lerp(p0, p1, 0.5)
	e.Boundary = len(e.Faces) == 1
	e.NonManifold = len(e.Faces) > 2
	e.Dihedral = 0
	e.Sharp = false
	e.Seam = false
	if len(e.Faces) != 2 {
		return
	}
	f0, f1 := &s.faces[e.Faces[0]], &s.faces[e.Faces[1]]
	// Direction in which f0 walks the edge.
	dir := ms3.Scale(-1, e.Dir)
	for i, v := range f0.Vertices {
		if v == e.V0 && f0.Vertices[(i+1)%len(f0.Vertices)] == e.V1 {
			dir = e.Dir
			break
		}
	}
	e.Dihedral = math32.Atan2(d3.Dot(ms3.Cross(f0.Normal, f1.Normal), dir), d3.Dot(f0.Normal, f1.Normal))
	e.Sharp = math32.Abs(e.Dihedral) > DefaultSharpAngle
	e.Seam = f0.Group != f1.Group || f0.Surface != f1.Surface
}

func (s *Solid) vertexProperties(vi uint32) {
	v := &s.vertices[vi]
	v.Boundary = false
	v.Sharp = false
	for _, ei := range v.Edges {
		v.Boundary = v.Boundary || s.edges[ei].Boundary
		v.Sharp = v.Sharp || s.edges[ei].Sharp
	}
	var normal ms3.Vec
	var angles, area float32
	for _, fi := range v.Faces {
		f := &s.faces[fi]
		normal = ms3.Add(normal, ms3.Scale(f.Area, f.Normal))
		area += f.Area / float32(len(f.Vertices))
		n := len(f.Vertices)
		for i, u := range f.Vertices {
			if u != vi {
				continue
			}
			prev := s.vertices[f.Vertices[(i+n-1)%n]].Pos
			next := s.vertices[f.Vertices[(i+1)%n]].Pos
			angles += d3.Angle(ms3.Sub(prev, v.Pos), ms3.Sub(next, v.Pos))
		}
	}
	v.Normal = d3.UnitOr(normal, ms3.Vec{Z: 1})
	full := 2 * math32.Pi
	if v.Boundary {
		full = math32.Pi
	}
	v.Curvature = 0
	if area > 0 {
		v.Curvature = (full - angles) / area
	}
}

// findShells groups faces into edge-connected shells with union-find and
// picks the outer shell as the one whose bounds contain all the others.
func (s *Solid) findShells() {
	parent := make([]uint32, len(s.faces))
	for i := range parent {
		parent[i] = uint32(i)
	}
	find := func(x uint32) uint32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, e := range s.edges {
		r0 := find(e.Faces[0])
		for _, f := range e.Faces[1:] {
			if r := find(f); r != r0 {
				parent[r] = r0
			}
		}
	}
	s.shells = nil
	shellOf := make(map[uint32]int)
	for fi := range s.faces {
		r := find(uint32(fi))
		si, ok := shellOf[r]
		if !ok {
			si = len(s.shells)
			shellOf[r] = si
			s.shells = append(s.shells, Shell{Closed: true, Bounds: d3.EmptyBox()})
		}
		sh := &s.shells[si]
		f := &s.faces[fi]
		sh.Faces = append(sh.Faces, uint32(fi))
		sh.Area += f.Area
		sh.Volume += s.faceVolume(f)
		for _, v := range f.Vertices {
			sh.Bounds = d3.Include(sh.Bounds, s.vertices[v].Pos)
		}
		for _, ei := range f.Edges {
			if len(s.edges[ei].Faces) == 1 {
				sh.Closed = false
			}
		}
	}
	s.outer = -1
	for i := range s.shells {
		tol := 1e-6 * max(1, ms3.Norm(s.shells[i].Bounds.Size()))
		contains := true
		for j := range s.shells {
			if j != i && !d3.ContainsBox(s.shells[i].Bounds, s.shells[j].Bounds, tol) {
				contains = false
				break
			}
		}
		if !contains {
			continue
		}
		if s.outer >= 0 {
			s.outer = -1 // Not unique.
			break
		}
		s.outer = i
	}
	for i := range s.shells {
		sh := &s.shells[i]
		sh.Outer = i == s.outer
		// Without a unique outer shell every shell is judged as an outer one.
		positive := sh.Outer || s.outer < 0
		orient := Outward
		if positive && sh.Volume < 0 || !positive && sh.Volume > 0 {
			orient = Inward
		}
		for _, fi := range sh.Faces {
			s.faces[fi].Orientation = orient
		}
	}
}

// faceVolume returns the signed volume of the cone from the origin to f.
func (s *Solid) faceVolume(f *Face) (vol float32) {
	p0 := s.vertices[f.Vertices[0]].Pos
	for i := 1; i < len(f.Vertices)-1; i++ {
		p1 := s.vertices[f.Vertices[i]].Pos
		p2 := s.vertices[f.Vertices[i+1]].Pos
		vol += d3.Dot(p0, ms3.Cross(p1, p2)) / 6
	}
	return vol
}

// sortedEdges returns edge indices sorted ascending. Selection helpers use
// it so results are deterministic.
func sortedEdges(edges []uint32) []uint32 {
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })
	return edges
}

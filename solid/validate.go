package solid

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/bvh"
	"github.com/soypat/brep/geom"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
)

// DefaultDegenerateArea is the face area under which validation reports a
// face as degenerate.
const DefaultDegenerateArea = 1e-10

// ValidateOptions configures Validate.
type ValidateOptions struct {
	// DegenerateArea is the face area threshold. Zero selects DefaultDegenerateArea.
	DegenerateArea float32
	// SelfIntersections enables the triangle-triangle intersection search.
	SelfIntersections bool
	// AllIntersections collects every intersecting face pair instead of
	// stopping at the first.
	AllIntersections bool
}

// DefaultValidateOptions returns the options used by IsValid.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{DegenerateArea: DefaultDegenerateArea, SelfIntersections: true}
}

// Report is the result of Validate. Index slices are sorted.
type Report struct {
	OpenEdges           []uint32
	NonManifoldEdges    []uint32
	NonManifoldVertices []uint32
	DegenerateFaces     []uint32
	// SelfIntersections lists intersecting face pairs with the lower index first.
	SelfIntersections [][2]uint32
	// OverlappingShells is set when no single shell contains all others.
	OverlappingShells bool
	Watertight        bool
	Valid             bool
}

// Err summarizes the report as a validation error, or returns nil if the
// solid is valid.
func (r *Report) Err() error {
	if r.Valid {
		return nil
	}
	var b strings.Builder
	add := func(n int, what string) {
		if n > 0 {
			fmt.Fprintf(&b, "\n\t%d %s", n, what)
		}
	}
	b.WriteString("solid is not valid:")
	add(len(r.OpenEdges), "open edges")
	add(len(r.NonManifoldEdges), "non-manifold edges")
	add(len(r.NonManifoldVertices), "non-manifold vertices")
	add(len(r.DegenerateFaces), "degenerate faces")
	add(len(r.SelfIntersections), "self-intersecting face pairs")
	if r.OverlappingShells {
		b.WriteString("\n\tno shell contains all other shells")
	}
	return brep.Errorf(brep.KindValidation, "solid.Validate", "%s", b.String()).
		WithHint("repair the input mesh or re-export it as a closed manifold")
}

// Validate inspects the solid. The report for DefaultValidateOptions is
// cached until the next topology change. Returned slices must not be modified.
func (s *Solid) Validate(opts ValidateOptions) Report {
	if opts.DegenerateArea == 0 {
		opts.DegenerateArea = DefaultDegenerateArea
	}
	cacheable := opts == DefaultValidateOptions()
	if cacheable {
		s.mu.Lock()
		r := s.cache.report
		s.mu.Unlock()
		if r != nil {
			return *r
		}
	}
	r := Report{
		OpenEdges:           s.FindBoundaryEdges(),
		NonManifoldEdges:    s.FindNonManifoldEdges(),
		NonManifoldVertices: s.FindNonManifoldVertices(),
		OverlappingShells:   len(s.shells) > 1 && s.outer < 0,
	}
	for i := range s.faces {
		if s.faces[i].Area < opts.DegenerateArea {
			r.DegenerateFaces = append(r.DegenerateFaces, uint32(i))
		}
	}
	if opts.SelfIntersections {
		r.SelfIntersections = s.selfIntersections(!opts.AllIntersections)
	}
	r.Watertight = len(r.OpenEdges) == 0 && len(r.NonManifoldEdges) == 0
	r.Valid = r.Watertight && len(r.DegenerateFaces) == 0 && len(r.SelfIntersections) == 0 && !r.OverlappingShells
	if cacheable {
		s.mu.Lock()
		s.cache.report = &r
		s.mu.Unlock()
	}
	return r
}

// IsValid reports whether Validate with default options finds no problem.
func (s *Solid) IsValid() bool { return s.Validate(DefaultValidateOptions()).Valid }

type faceBVH struct {
	tree   *bvh.BVH
	toFace []uint32
	tris   [][3]uint32
}

// accel returns the cached BVH over the triangulated faces.
func (s *Solid) accel() (*faceBVH, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.accel != nil || s.cache.accelErr != nil {
		return s.cache.accel, s.cache.accelErr
	}
	pos := make([]ms3.Vec, len(s.vertices))
	for i, v := range s.vertices {
		pos[i] = v.Pos
	}
	a := &faceBVH{}
	var idx []uint32
	for fi := range s.faces {
		loop := s.faces[fi].Vertices
		// Fan triangles cover convex faces exactly; degenerate slivers are harmless here.
		for k := 1; k < len(loop)-1; k++ {
			t := [3]uint32{loop[0], loop[k], loop[k+1]}
			a.tris = append(a.tris, t)
			a.toFace = append(a.toFace, uint32(fi))
			idx = append(idx, t[0], t[1], t[2])
		}
	}
	a.tree, s.cache.accelErr = bvh.New(pos, idx, nil)
	if s.cache.accelErr != nil {
		return nil, s.cache.accelErr
	}
	s.cache.accel = a
	return a, nil
}

func sharesVertex(a, b [3]uint32) bool {
	for _, u := range a {
		for _, v := range b {
			if u == v {
				return true
			}
		}
	}
	return false
}

// selfIntersections tests every pair of non-adjacent triangles with
// overlapping bounds. Triangles sharing a vertex are skipped.
func (s *Solid) selfIntersections(first bool) [][2]uint32 {
	a, err := s.accel()
	if err != nil {
		return nil
	}
	found := make(map[[2]uint32]bool)
	var out [][2]uint32
	for i, ti := range a.tris {
		t1 := a.tree.Triangle(uint32(i))
		for _, j := range a.tree.QueryBox(d3.TriangleBox(t1[0], t1[1], t1[2])) {
			if j <= uint32(i) || a.toFace[i] == a.toFace[j] || sharesVertex(ti, a.tris[j]) {
				continue
			}
			if !trianglesIntersect(t1, a.tree.Triangle(j)) {
				continue
			}
			pair := [2]uint32{a.toFace[i], a.toFace[j]}
			if pair[0] > pair[1] {
				pair[0], pair[1] = pair[1], pair[0]
			}
			if found[pair] {
				continue
			}
			found[pair] = true
			out = append(out, pair)
			if first {
				return out
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// trianglesIntersect reports whether an edge of either triangle pierces
// the other. Coplanar overlaps are not detected.
func trianglesIntersect(t1, t2 ms3.Triangle) bool {
	return edgesPierce(t1, t2) || edgesPierce(t2, t1)
}

func edgesPierce(edges, tri ms3.Triangle) bool {
	for i := range edges {
		p, q := edges[i], edges[(i+1)%3]
		r := geom.Ray{Origin: p, Dir: ms3.Sub(q, p), TMin: 0, TMax: 1}
		if _, _, _, hit := r.IntersectTriangle(tri[0], tri[1], tri[2]); hit {
			return true
		}
	}
	return false
}

// containsDirs are ray directions chosen to avoid grazing axis aligned
// edges and vertices.
var containsDirs = [3]ms3.Vec{
	{X: 0.5773, Y: 0.5774, Z: 0.5775},
	{X: -0.2673, Y: 0.8018, Z: 0.5346},
	{X: 0.7071, Y: -0.1001, Z: -0.6999},
}

// ContainsPoint reports whether p lies inside the solid by ray parity,
// taking the majority over three ray directions. Results are only
// meaningful for closed solids.
func (s *Solid) ContainsPoint(p ms3.Vec) bool {
	a, err := s.accel()
	if err != nil || a.tree.PrimitiveCount() == 0 {
		return false
	}
	votes := 0
	for _, dir := range containsDirs {
		hits := a.tree.IntersectAll(geom.NewRay(p, dir))
		crossings := 0
		last := float32(-math32.MaxFloat32)
		for _, h := range hits {
			// Hits on a shared edge are reported once per triangle.
			if h.T-last > 1e-6*max(1, h.T) {
				crossings++
				last = h.T
			}
		}
		if crossings%2 == 1 {
			votes++
		}
	}
	return votes >= 2
}

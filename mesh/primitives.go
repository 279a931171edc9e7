package mesh

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// Box returns a closed box with the given side lengths centred at the
// origin. Vertex i has +X if bit 0 is set, +Y for bit 1 and +Z for bit 2.
func Box(size ms3.Vec) *Data {
	h := ms3.Scale(0.5, size)
	m := New(8, 12)
	for i := 0; i < 8; i++ {
		p := ms3.Scale(-1, h)
		if i&1 != 0 {
			p.X = h.X
		}
		if i&2 != 0 {
			p.Y = h.Y
		}
		if i&4 != 0 {
			p.Z = h.Z
		}
		m.AddVertex(p)
	}
	for _, f := range [12][3]uint32{
		{0, 2, 3}, {0, 3, 1}, // -Z
		{4, 5, 7}, {4, 7, 6}, // +Z
		{0, 1, 5}, {0, 5, 4}, // -Y
		{2, 6, 7}, {2, 7, 3}, // +Y
		{0, 4, 6}, {0, 6, 2}, // -X
		{1, 3, 7}, {1, 7, 5}, // +X
	} {
		m.AddFace(f[0], f[1], f[2])
	}
	return m
}

// UVSphere returns a closed sphere centred at the origin. rings counts the
// latitude rings of vertices including both poles and segs the vertices per
// ring, giving 2*segs*(rings-2) triangles. rings is raised to at least 3 and
// segs to at least 3.
func UVSphere(radius float32, rings, segs int) *Data {
	if rings < 3 {
		rings = 3
	}
	if segs < 3 {
		segs = 3
	}
	m := New(segs*(rings-2)+2, 2*segs*(rings-2))
	north := m.AddVertex(ms3.Vec{Z: radius})
	for i := 1; i < rings-1; i++ {
		st, ct := math32.Sincos(math32.Pi * float32(i) / float32(rings-1))
		for j := 0; j < segs; j++ {
			sp, cp := math32.Sincos(2 * math32.Pi * float32(j) / float32(segs))
			m.AddVertex(ms3.Vec{X: radius * st * cp, Y: radius * st * sp, Z: radius * ct})
		}
	}
	south := m.AddVertex(ms3.Vec{Z: -radius})
	ring := func(i, j int) uint32 { return uint32(1 + i*segs + j%segs) }
	for j := 0; j < segs; j++ {
		m.AddFace(north, ring(0, j), ring(0, j+1))
	}
	for i := 0; i < rings-3; i++ {
		for j := 0; j < segs; j++ {
			a, b := ring(i, j), ring(i, j+1)
			c, d := ring(i+1, j), ring(i+1, j+1)
			m.AddFace(a, c, d)
			m.AddFace(a, d, b)
		}
	}
	for j := 0; j < segs; j++ {
		m.AddFace(south, ring(rings-3, j+1), ring(rings-3, j))
	}
	m.ComputeNormals()
	return m
}

// Cylinder returns a closed cylinder along Z centred at the origin with
// capped ends fanned around a centre vertex. segs is raised to at least 3.
func Cylinder(radius, height float32, segs int) *Data {
	if segs < 3 {
		segs = 3
	}
	h := height / 2
	m := New(2*segs+2, 4*segs)
	for j := 0; j < segs; j++ {
		s, c := math32.Sincos(2 * math32.Pi * float32(j) / float32(segs))
		m.AddVertex(ms3.Vec{X: radius * c, Y: radius * s, Z: -h})
		m.AddVertex(ms3.Vec{X: radius * c, Y: radius * s, Z: h})
	}
	bottom := m.AddVertex(ms3.Vec{Z: -h})
	top := m.AddVertex(ms3.Vec{Z: h})
	for j := 0; j < segs; j++ {
		b0, t0 := uint32(2*j), uint32(2*j+1)
		b1, t1 := uint32(2*((j+1)%segs)), uint32(2*((j+1)%segs)+1)
		m.AddFace(b0, b1, t1)
		m.AddFace(b0, t1, t0)
		m.AddFace(bottom, b1, b0)
		m.AddFace(top, t0, t1)
	}
	return m
}

// Grid returns an open, flat n by n grid of unit cells in the XY plane with
// its corner at the origin, facing +Z.
func Grid(n int) *Data {
	w := uint32(n + 1)
	m := New(int(w*w), 2*n*n)
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			m.AddVertex(ms3.Vec{X: float32(i), Y: float32(j)})
		}
	}
	for j := uint32(0); j < uint32(n); j++ {
		for i := uint32(0); i < uint32(n); i++ {
			a := j*w + i
			m.AddFace(a, a+1, a+w+1)
			m.AddFace(a, a+w+1, a+w)
		}
	}
	return m
}

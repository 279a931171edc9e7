package mesh

import (
	"github.com/soypat/brep"
	"github.com/soypat/glgl/math/ms2"
	"github.com/soypat/glgl/math/ms3"
)

// CountDegenerateFaces returns the number of faces with area below eps.
func (m *Data) CountDegenerateFaces(eps float32) (n int) {
	for i := 0; i < m.FaceCount(); i++ {
		if m.FaceArea(i) < eps {
			n++
		}
	}
	return n
}

// RemoveDegenerateFaces deletes faces with area below eps and returns how
// many were removed. Vertices are kept; see RemoveUnusedVertices.
func (m *Data) RemoveDegenerateFaces(eps float32) (removed int) {
	kept := m.Indices[:0]
	for i := 0; i < m.FaceCount(); i++ {
		if m.FaceArea(i) < eps {
			removed++
			continue
		}
		kept = append(kept, m.Indices[3*i:3*i+3]...)
	}
	m.Indices = kept
	m.boundsOK = false
	return removed
}

// CountDuplicateVertices returns the number of vertices that lie within eps
// of an earlier vertex, which is the number MergeDuplicateVertices would drop.
func (m *Data) CountDuplicateVertices(eps float32) int {
	_, first, _ := m.weld(eps, nil)
	return len(m.Positions) - len(first)
}

// MergeDuplicateVertices welds vertices closer than eps: a pair exactly eps
// apart is kept apart, and an eps of zero merges nothing. The first vertex
// seen in each cluster is kept. Indices are rewritten and the surplus
// positions, normals and UVs are dropped in lockstep. It returns the number
// of vertices removed. A cancelled merge leaves the mesh untouched.
func (m *Data) MergeDuplicateVertices(eps float32, progress brep.ProgressFunc) (int, error) {
	tick := brep.NewTicker("mesh.MergeDuplicateVertices", progress, len(m.Positions))
	remap, first, err := m.weld(eps, tick)
	if err != nil {
		return 0, err
	}
	removed := len(m.Positions) - len(first)
	if removed == 0 {
		return 0, tick.Done()
	}
	keepN := m.HasNormals()
	keepUV := m.HasUVs()
	positions := make([]ms3.Vec, len(first))
	var normals []ms3.Vec
	var uvs []ms2.Vec
	if keepN {
		normals = make([]ms3.Vec, len(first))
	}
	if keepUV {
		uvs = make([]ms2.Vec, len(first))
	}
	for nw, old := range first {
		positions[nw] = m.Positions[old]
		if keepN {
			normals[nw] = m.Normals[old]
		}
		if keepUV {
			uvs[nw] = m.UVs[old]
		}
	}
	for i, idx := range m.Indices {
		if int(idx) < len(remap) {
			m.Indices[i] = remap[idx]
		}
	}
	m.Positions = positions
	m.Normals = normals
	m.UVs = uvs
	m.boundsOK = false
	return removed, tick.Done()
}

// Weld clusters positions closer than eps using the same rule as
// MergeDuplicateVertices. remap maps every input index to its index in
// unique, which holds the first position of each cluster.
func Weld(positions []ms3.Vec, eps float32) (remap []uint32, unique []ms3.Vec) {
	m := Data{Positions: positions}
	remap, first, _ := m.weld(eps, nil)
	unique = make([]ms3.Vec, len(first))
	for i, old := range first {
		unique[i] = positions[old]
	}
	return remap, unique
}

// weld computes the old-to-new index map and the old index of every kept
// vertex in output order.
func (m *Data) weld(eps float32, tick *brep.Ticker) (remap, first []uint32, err error) {
	remap = make([]uint32, len(m.Positions))
	first = make([]uint32, 0, len(m.Positions))
	h := newSpatialHash(eps, len(m.Positions))
	for i, p := range m.Positions {
		if tick != nil {
			if err = tick.Tick(); err != nil {
				return nil, nil, err
			}
		}
		if rep, ok := h.find(p, m.Positions); ok {
			remap[i] = remap[rep]
			continue
		}
		remap[i] = uint32(len(first))
		first = append(first, uint32(i))
		h.insert(p, uint32(i))
	}
	return remap, first, nil
}

// RemoveUnusedVertices drops vertices no face references and returns how
// many were removed.
func (m *Data) RemoveUnusedVertices() int {
	keepN, keepUV := m.HasNormals(), m.HasUVs()
	used := make([]bool, len(m.Positions))
	for _, idx := range m.Indices {
		if int(idx) < len(used) {
			used[idx] = true
		}
	}
	remap := make([]uint32, len(m.Positions))
	n := 0
	for i, u := range used {
		if !u {
			remap[i] = brep.Absent
			continue
		}
		remap[i] = uint32(n)
		m.Positions[n] = m.Positions[i]
		if keepN {
			m.Normals[n] = m.Normals[i]
		}
		if keepUV {
			m.UVs[n] = m.UVs[i]
		}
		n++
	}
	removed := len(m.Positions) - n
	if keepN {
		m.Normals = m.Normals[:n]
	}
	if keepUV {
		m.UVs = m.UVs[:n]
	}
	m.Positions = m.Positions[:n]
	for i, idx := range m.Indices {
		if int(idx) < len(remap) {
			m.Indices[i] = remap[idx]
		}
	}
	m.boundsOK = false
	return removed
}

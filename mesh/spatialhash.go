package mesh

import (
	"github.com/chewxy/math32"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
)

// maxCellScale bounds the spatial hash resolution so cell coordinates of
// reasonably sized models stay well inside int64.
const maxCellScale = 1e7

type cellKey [3]int64

// spatialHash buckets vertex indices by integer cell coordinates
// floor(p*scale). The cell edge is at least eps so any two points closer
// than eps lie in the same or adjacent cells.
type spatialHash struct {
	scale float32
	eps2  float32
	cells map[cellKey][]uint32
}

func newSpatialHash(eps float32, sizeHint int) *spatialHash {
	scale := float32(maxCellScale)
	if eps > 0 && 1/eps < scale {
		scale = 1 / eps
	}
	return &spatialHash{
		scale: scale,
		eps2:  eps * eps,
		cells: make(map[cellKey][]uint32, sizeHint),
	}
}

func (h *spatialHash) key(p ms3.Vec) cellKey {
	return cellKey{
		int64(math32.Floor(p.X * h.scale)),
		int64(math32.Floor(p.Y * h.scale)),
		int64(math32.Floor(p.Z * h.scale)),
	}
}

func (h *spatialHash) insert(p ms3.Vec, idx uint32) {
	k := h.key(p)
	h.cells[k] = append(h.cells[k], idx)
}

// find returns the first indexed vertex closer than eps to p, probing the
// home cell and all 26 neighbours.
func (h *spatialHash) find(p ms3.Vec, positions []ms3.Vec) (uint32, bool) {
	home := h.key(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				k := cellKey{home[0] + dx, home[1] + dy, home[2] + dz}
				for _, idx := range h.cells[k] {
					if d3.Dist2(positions[idx], p) < h.eps2 {
						return idx, true
					}
				}
			}
		}
	}
	return 0, false
}

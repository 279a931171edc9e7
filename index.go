package brep

import "math"

// Index addresses an element (vertex, face, half-edge, node) in a contiguous arena.
type Index = uint32

// Absent is the sentinel Index denoting "no element".
const Absent Index = math.MaxUint32

// IsAbsent reports whether i is the Absent sentinel.
func IsAbsent(i Index) bool { return i == Absent }

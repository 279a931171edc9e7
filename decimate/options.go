package decimate

import (
	"github.com/soypat/brep"
)

// TargetMode selects how the target face count is derived.
type TargetMode uint8

const (
	// TargetRatio keeps floor(faces*Ratio) faces.
	TargetRatio TargetMode = iota
	// TargetVertexCount aims for VertexCount vertices using Euler's formula
	// for closed meshes, F = 2V - 4.
	TargetVertexCount
	// TargetFaceCount keeps FaceCount faces.
	TargetFaceCount
)

func (m TargetMode) String() string {
	switch m {
	case TargetRatio:
		return "ratio"
	case TargetVertexCount:
		return "vertex count"
	case TargetFaceCount:
		return "face count"
	}
	return "TargetMode(?)"
}

// DefaultBoundaryWeight scales boundary constraint quadrics.
const DefaultBoundaryWeight = 100

// Options configures Decimate.
type Options struct {
	Mode        TargetMode
	Ratio       float32 // Fraction of faces kept in TargetRatio mode, in [0,1].
	VertexCount int
	FaceCount   int
	// MaxError rejects collapses costing more than it. Zero means unbounded.
	MaxError float32
	// PreserveBoundary adds BoundaryWeight scaled constraint quadrics along
	// open boundaries so boundary vertices resist moving.
	PreserveBoundary bool
	BoundaryWeight   float32
	// LockedVertices are never moved or removed.
	LockedVertices []uint32
}

// DefaultOptions halves the face count and preserves boundaries.
func DefaultOptions() Options {
	return Options{
		Mode:             TargetRatio,
		Ratio:            0.5,
		PreserveBoundary: true,
		BoundaryWeight:   DefaultBoundaryWeight,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	const op = "decimate.Options"
	switch {
	case o.Mode > TargetFaceCount:
		return brep.Errorf(brep.KindValidation, op, "unknown target mode %d", o.Mode)
	case o.Mode == TargetRatio && !(o.Ratio >= 0 && o.Ratio <= 1):
		return brep.Errorf(brep.KindValidation, op, "target ratio %v outside [0,1]", o.Ratio)
	case o.VertexCount < 0 || o.FaceCount < 0:
		return brep.Errorf(brep.KindValidation, op, "negative target count (vertices %d, faces %d)", o.VertexCount, o.FaceCount)
	case o.MaxError < 0:
		return brep.Errorf(brep.KindValidation, op, "negative max error %v", o.MaxError)
	case o.BoundaryWeight < 0:
		return brep.Errorf(brep.KindValidation, op, "negative boundary weight %v", o.BoundaryWeight)
	}
	return nil
}

// TargetFaces resolves the face count at which decimation stops.
func TargetFaces(o Options, originalFaces int) int {
	var target int
	switch o.Mode {
	case TargetVertexCount:
		target = 2*o.VertexCount - 4
	case TargetFaceCount:
		target = o.FaceCount
	default:
		target = int(float64(originalFaces) * float64(o.Ratio))
	}
	if target < 0 {
		return 0
	}
	return target
}

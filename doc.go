// Package brep is the root of a geometry kernel for polygonal and boundary
// representation solids. It defines the vocabulary shared by the kernel's
// packages: 32-bit element indices with an absent sentinel, the error type and
// its kinds, and cancellable progress callbacks.
//
// The kernel is organised leaves first:
//
//	geom      4x4 matrices, quaternions, rays, planes and AABB helpers over ms3 types.
//	mesh      indexed triangle mesh (positions, normals, uvs, indices).
//	halfedge  half-edge adjacency built from triangle soup.
//	bvh       bounding volume hierarchy for ray and box queries.
//	decimate  quadric error metric edge-collapse simplification.
//	solid     vertex/edge/face/shell topology with mass properties and validation.
//	bsp, csg  polygon partition trees and boolean operations on solids.
//	meshio    STL and PLY decoders and encoders.
//	implicit  tessellation of implicit primitives.
//
// All algorithms are single threaded. Long running operations accept a
// ProgressFunc and stop promptly when it returns false.
package brep

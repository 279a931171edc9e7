package decimate

import (
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/glgl/math/ms3"
	"gonum.org/v1/gonum/mat"
)

// maxCondition is the largest condition number of the quadric's 3x3 block
// for which the optimal point is solved directly.
const maxCondition = 1e6

// Quadric is a symmetric 4x4 error form stored as its 10 upper triangular
// entries in row-major order:
//
//	q0 q1 q2 q3
//	   q4 q5 q6
//	      q7 q8
//	         q9
type Quadric [10]float32

// PlaneQuadric returns the fundamental quadric of the plane n.p + d = 0.
// n should be unit length.
func PlaneQuadric(n ms3.Vec, d float32) Quadric {
	a, b, c := n.X, n.Y, n.Z
	return Quadric{
		a * a, a * b, a * c, a * d,
		b * b, b * c, b * d,
		c * c, c * d,
		d * d,
	}
}

// Add returns the componentwise sum of q and o.
func (q Quadric) Add(o Quadric) Quadric {
	for i := range q {
		q[i] += o[i]
	}
	return q
}

// Scale returns q scaled by w.
func (q Quadric) Scale(w float32) Quadric {
	for i := range q {
		q[i] *= w
	}
	return q
}

// Eval returns the error p'Qp for the homogeneous point (p,1). The result
// is never negative.
func (q Quadric) Eval(p ms3.Vec) float32 {
	x, y, z := float64(p.X), float64(p.Y), float64(p.Z)
	var f [10]float64
	for i := range q {
		f[i] = float64(q[i])
	}
	e := f[0]*x*x + 2*f[1]*x*y + 2*f[2]*x*z + 2*f[3]*x +
		f[4]*y*y + 2*f[5]*y*z + 2*f[6]*y +
		f[7]*z*z + 2*f[8]*z +
		f[9]
	if e < 0 {
		return 0
	}
	return float32(e)
}

// Optimal solves A p = -b for the point minimizing the quadric, where
// [A | b] is the upper 3x4 block. ok is false if A is near singular.
func (q Quadric) Optimal() (p ms3.Vec, ok bool) {
	a := mat.NewDense(3, 3, []float64{
		float64(q[0]), float64(q[1]), float64(q[2]),
		float64(q[1]), float64(q[4]), float64(q[5]),
		float64(q[2]), float64(q[5]), float64(q[7]),
	})
	var lu mat.LU
	lu.Factorize(a)
	if lu.Cond() > maxCondition {
		return p, false
	}
	b := mat.NewVecDense(3, []float64{-float64(q[3]), -float64(q[6]), -float64(q[8])})
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, b); err != nil {
		return p, false
	}
	p = ms3.Vec{X: float32(x.AtVec(0)), Y: float32(x.AtVec(1)), Z: float32(x.AtVec(2))}
	return p, d3.IsFinite(p)
}

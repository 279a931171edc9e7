package geom

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// Mat3 is a 3x3 matrix in row-major order.
type Mat3 [9]float32

// Identity3 returns the 3x3 identity.
func Identity3() Mat3 { return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1} }

// At returns the element at row i, column j.
func (m Mat3) At(i, j int) float32 { return m[i*3+j] }

// MulVec returns m*v.
func (m Mat3) MulVec(v ms3.Vec) ms3.Vec {
	return ms3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// Mul returns m*b.
func (m Mat3) Mul(b Mat3) (r Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = m[i*3]*b[j] + m[i*3+1]*b[3+j] + m[i*3+2]*b[6+j]
		}
	}
	return r
}

// Transpose returns the transpose of m.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Det returns the determinant of m.
func (m Mat3) Det() float32 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Inverse returns the inverse of m via the adjugate and false when m is singular.
func (m Mat3) Inverse() (Mat3, bool) {
	det := m.Det()
	if math32.Abs(det) < 1e-20 {
		return Mat3{}, false
	}
	d := 1 / det
	return Mat3{
		(m[4]*m[8] - m[5]*m[7]) * d,
		(m[2]*m[7] - m[1]*m[8]) * d,
		(m[1]*m[5] - m[2]*m[4]) * d,
		(m[5]*m[6] - m[3]*m[8]) * d,
		(m[0]*m[8] - m[2]*m[6]) * d,
		(m[2]*m[3] - m[0]*m[5]) * d,
		(m[3]*m[7] - m[4]*m[6]) * d,
		(m[1]*m[6] - m[0]*m[7]) * d,
		(m[0]*m[4] - m[1]*m[3]) * d,
	}, true
}

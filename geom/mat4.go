package geom

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// Mat4 is a 4x4 homogeneous transformation matrix.
// The zero value of Mat4 is the identity transform.
type Mat4 struct {
	// In order to make the zero value of Mat4 represent the identity
	// we store the matrix with the identity subtracted, in row major order.
	// Identity checks then become:
	//  if m == (Mat4{})
	d [16]float32
}

// Identity4 returns the identity matrix.
func Identity4() Mat4 { return Mat4{} }

// NewMat4 returns a Mat4 from 16 values in row-major order.
func NewMat4(rowMajor [16]float32) Mat4 {
	var m Mat4
	for i := range rowMajor {
		m.d[i] = rowMajor[i]
	}
	m.d[0]--
	m.d[5]--
	m.d[10]--
	m.d[15]--
	return m
}

// Mat4FromMS3 converts a glgl matrix into a Mat4.
func Mat4FromMS3(m ms3.Mat4) Mat4 {
	a := m.Array()
	var rm [16]float32
	for i := range rm {
		rm[i] = a[i]
	}
	return NewMat4(rm)
}

// At returns the element at row i and column j.
func (m Mat4) At(i, j int) float32 {
	v := m.d[i*4+j]
	if i == j {
		v++
	}
	return v
}

func (m *Mat4) set(i, j int, v float32) {
	if i == j {
		v--
	}
	m.d[i*4+j] = v
}

// Array returns the matrix elements in row-major order.
func (m Mat4) Array() (a [16]float32) {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i*4+j] = m.At(i, j)
		}
	}
	return a
}

// Translation returns a pure translation transform.
func Translation(v ms3.Vec) Mat4 {
	var m Mat4
	m.d[3], m.d[7], m.d[11] = v.X, v.Y, v.Z
	return m
}

// Scaling returns a pure scaling transform about the origin.
func Scaling(s ms3.Vec) Mat4 {
	var m Mat4
	m.d[0], m.d[5], m.d[10] = s.X-1, s.Y-1, s.Z-1
	return m
}

// Compose creates a transform for a given translation to
// position, scaling vector scale and quaternion rotation q.
// The identity Mat4 is constructed with
//
//	Compose(Vec{}, Vec{1,1,1}, Quat{W:1})
func Compose(position, scale ms3.Vec, q Quat) Mat4 {
	r := q.Mat3()
	var m Mat4
	for i := 0; i < 3; i++ {
		m.set(i, 0, r.At(i, 0)*scale.X)
		m.set(i, 1, r.At(i, 1)*scale.Y)
		m.set(i, 2, r.At(i, 2)*scale.Z)
	}
	m.d[3], m.d[7], m.d[11] = position.X, position.Y, position.Z
	return m
}

// MulPosition applies the transform to point v, including the homogeneous divide.
func (m Mat4) MulPosition(v ms3.Vec) ms3.Vec {
	if m == (Mat4{}) {
		return v
	}
	w := m.At(3, 0)*v.X + m.At(3, 1)*v.Y + m.At(3, 2)*v.Z + m.At(3, 3)
	if w == 0 {
		w = 1
	}
	w = 1 / w
	return ms3.Vec{
		X: (m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z + m.At(0, 3)) * w,
		Y: (m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z + m.At(1, 3)) * w,
		Z: (m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z + m.At(2, 3)) * w,
	}
}

// MulDirection applies the upper 3x3 block of the transform to v.
func (m Mat4) MulDirection(v ms3.Vec) ms3.Vec {
	return m.Mat3().MulVec(v)
}

// Mul multiplies the matrices m and b and returns the result.
// The result applies b first, then m.
func (m Mat4) Mul(b Mat4) Mat4 {
	if m == (Mat4{}) {
		return b
	}
	if b == (Mat4{}) {
		return m
	}
	var r Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m.At(i, k) * b.At(k, j)
			}
			r.set(i, j, sum)
		}
	}
	return r
}

// Transpose returns the transpose of m.
func (m Mat4) Transpose() Mat4 {
	var r Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r.d[j*4+i] = m.d[i*4+j]
		}
	}
	return r
}

// Mat3 returns the upper left 3x3 block.
func (m Mat4) Mat3() Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = m.At(i, j)
		}
	}
	return r
}

// Inverse returns the inverse of m and false if m is singular.
// Gauss-Jordan elimination with partial pivoting.
func (m Mat4) Inverse() (Mat4, bool) {
	if m == (Mat4{}) {
		return m, true
	}
	var a, inv [4][4]float32
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i][j] = m.At(i, j)
		}
		inv[i][i] = 1
	}
	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math32.Abs(a[r][col]) > math32.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math32.Abs(a[pivot][col]) < 1e-12 {
			return Mat4{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]
		p := 1 / a[col][col]
		for j := 0; j < 4; j++ {
			a[col][j] *= p
			inv[col][j] *= p
		}
		for r := 0; r < 4; r++ {
			if r == col {
				continue
			}
			f := a[r][col]
			if f == 0 {
				continue
			}
			for j := 0; j < 4; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	var r Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r.set(i, j, inv[i][j])
		}
	}
	return r, true
}

// NormalMatrix returns the transposed inverse of the upper 3x3 block, which
// maps surface normals. Singular blocks return the block itself.
func (m Mat4) NormalMatrix() Mat3 {
	m3 := m.Mat3()
	inv, ok := m3.Inverse()
	if !ok {
		return m3
	}
	return inv.Transpose()
}

// EqualWithin tests element-wise equality of two matrices.
func (m Mat4) EqualWithin(b Mat4, tol float32) bool {
	for i := range m.d {
		if math32.Abs(m.d[i]-b.d[i]) > tol {
			return false
		}
	}
	return true
}

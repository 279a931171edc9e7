package geom

import (
	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms3"
)

// Quat is a rotation quaternion W + Xi + Yj + Zk.
// Unit quaternions represent rotations; the identity rotation is Quat{W: 1}.
type Quat struct {
	W, X, Y, Z float32
}

// QuatFromAxisAngle returns the rotation of angle radians about axis.
// A zero axis returns the identity rotation.
func QuatFromAxisAngle(axis ms3.Vec, angle float32) Quat {
	n := math32.Sqrt(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z)
	if n == 0 {
		return Quat{W: 1}
	}
	s, c := math32.Sincos(angle / 2)
	s /= n
	return Quat{W: c, X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s}
}

// Mul returns the Hamilton product q*p, which rotates by p and then q.
func (q Quat) Mul(p Quat) Quat {
	return Quat{
		W: q.W*p.W - q.X*p.X - q.Y*p.Y - q.Z*p.Z,
		X: q.W*p.X + q.X*p.W + q.Y*p.Z - q.Z*p.Y,
		Y: q.W*p.Y - q.X*p.Z + q.Y*p.W + q.Z*p.X,
		Z: q.W*p.Z + q.X*p.Y - q.Y*p.X + q.Z*p.W,
	}
}

// Conj returns the conjugate of q, the inverse rotation for unit quaternions.
func (q Quat) Conj() Quat { return Quat{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z} }

// Norm returns the length of q.
func (q Quat) Norm() float32 {
	return math32.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Unit returns q normalized to unit length. The zero quaternion returns identity.
func (q Quat) Unit() Quat {
	n := q.Norm()
	if n == 0 {
		return Quat{W: 1}
	}
	n = 1 / n
	return Quat{W: q.W * n, X: q.X * n, Y: q.Y * n, Z: q.Z * n}
}

// Rotate rotates v by the unit quaternion q.
func (q Quat) Rotate(v ms3.Vec) ms3.Vec {
	u := ms3.Vec{X: q.X, Y: q.Y, Z: q.Z}
	t := ms3.Scale(2, ms3.Cross(u, v))
	return ms3.Add(ms3.Add(v, ms3.Scale(q.W, t)), ms3.Cross(u, t))
}

// Mat3 returns the rotation matrix of the unit quaternion q.
func (q Quat) Mat3() Mat3 {
	x2, y2, z2 := q.X+q.X, q.Y+q.Y, q.Z+q.Z
	xx, yy, zz := q.X*x2, q.Y*y2, q.Z*z2
	xy, xz, yz := q.X*y2, q.X*z2, q.Y*z2
	wx, wy, wz := q.W*x2, q.W*y2, q.W*z2
	return Mat3{
		1 - (yy + zz), xy - wz, xz + wy,
		xy + wz, 1 - (xx + zz), yz - wx,
		xz - wy, yz + wx, 1 - (xx + yy),
	}
}

// Mat4 returns the rotation as a homogeneous transform.
func (q Quat) Mat4() Mat4 {
	return Compose(ms3.Vec{}, ms3.Vec{X: 1, Y: 1, Z: 1}, q)
}

package ekf

import (
	"math"

	"github.com/westphae/quaternion"
)

// Identity is the quaternion for no rotation.
var Identity = quaternion.Quaternion{W: 1}

// Normalize returns q scaled to unit magnitude.  If q is too small or not
// finite to be normalized safely it returns the identity and false.
func Normalize(q quaternion.Quaternion, minNorm float64) (quaternion.Quaternion, bool) {
	n := q.Norm()
	if !finite(n) || n < minNorm {
		return Identity, false
	}
	return quaternion.Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}, true
}

// Multiply returns the Hamilton product q1*q2.
func Multiply(q1, q2 quaternion.Quaternion) quaternion.Quaternion {
	return quaternion.Prod(q1, q2)
}

// Rotate rotates the body frame vector v into the reference frame: q*v*conj(q).
func Rotate(q quaternion.Quaternion, v [3]float64) [3]float64 {
	r := quaternion.Prod(q, quaternion.Quaternion{X: v[0], Y: v[1], Z: v[2]}, q.Conj())
	return [3]float64{r.X, r.Y, r.Z}
}

// RotateInverse rotates the reference frame vector v into the body frame: conj(q)*v*q.
func RotateInverse(q quaternion.Quaternion, v [3]float64) [3]float64 {
	r := quaternion.Prod(q.Conj(), quaternion.Quaternion{X: v[0], Y: v[1], Z: v[2]}, q)
	return [3]float64{r.X, r.Y, r.Z}
}

// ToEuler returns the yaw, pitch and roll (Z-Y-X Tait-Bryan, radians) of the unit quaternion q.
func ToEuler(q quaternion.Quaternion) (yaw, pitch, roll float64) {
	yaw = math.Atan2(2*(q.X*q.Y+q.W*q.Z), q.W*q.W+q.X*q.X-q.Y*q.Y-q.Z*q.Z)
	// Rounding can push the argument just past +-1 near +-90° pitch.
	sp := 2 * (q.W*q.Y - q.X*q.Z)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	roll = math.Atan2(2*(q.Y*q.Z+q.W*q.X), 1-2*(q.X*q.X+q.Y*q.Y))
	return
}

// FromEuler returns the unit quaternion for yaw, pitch and roll in radians.
func FromEuler(yaw, pitch, roll float64) quaternion.Quaternion {
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	return quaternion.Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// AngleBetween returns the angle in radians of the rotation taking q1 to q2.
// q and -q describe the same attitude, so the result is in [0, Pi].
func AngleBetween(q1, q2 quaternion.Quaternion) float64 {
	r := quaternion.Prod(q1.Conj(), q2)
	return 2 * math.Atan2(math.Sqrt(r.X*r.X+r.Y*r.Y+r.Z*r.Z), math.Abs(r.W))
}

// omega returns the 4x4 operator with dq/dt = 0.5*omega(w)*q for body rates w.
func omega(w [3]float64) [4][4]float64 {
	return [4][4]float64{
		{0, -w[0], -w[1], -w[2]},
		{w[0], 0, w[2], -w[1]},
		{w[1], -w[2], 0, w[0]},
		{w[2], w[1], -w[0], 0},
	}
}

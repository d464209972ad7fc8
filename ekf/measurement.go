package ekf

import (
	"github.com/skelterjohn/go.matrix"
	"github.com/westphae/quaternion"
)

// MeasurementModel predicts the accelerometer and magnetometer directions in
// body frame from an attitude and linearizes that prediction.
//
// Gravity is assumed to dominate the specific force and the local magnetic
// field is assumed undisturbed; neither assumption is checked.
type MeasurementModel struct {
	Gravity  [3]float64          // Reference frame unit vector
	Magnetic [3]float64          // Reference frame unit vector
	R        *matrix.DenseMatrix // 6x6, accel block then mag block
	MinNorm  float64             // Shorter sensor vectors are treated as missing
}

// Linearization is the measurement model evaluated at one attitude.
// It has 6 rows when the magnetometer is used and 3 when it is not.
type Linearization struct {
	Y      *matrix.DenseMatrix // Innovation, n x 1
	H      *matrix.DenseMatrix // Jacobian of the prediction wrt q, n x 4
	R      *matrix.DenseMatrix // Measurement noise, n x n
	UseMag bool
}

// Expected returns the gravity and magnetic directions that the sensors would
// report in body frame if q were the true attitude.
func (mm *MeasurementModel) Expected(q quaternion.Quaternion) (g, m [3]float64) {
	return RotateInverse(q, mm.Gravity), RotateInverse(q, mm.Magnetic)
}

// Linearize forms the innovation and Jacobian for measurement m at q.
// It returns false when the accelerometer reading cannot be used, in which
// case no correction is possible this cycle.
func (mm *MeasurementModel) Linearize(q quaternion.Quaternion, m *Measurement) (*Linearization, bool) {
	an := norm3(m.Accel)
	if !finite3(m.Accel) || an < mm.MinNorm {
		return nil, false
	}
	mn := norm3(m.Mag)
	useMag := finite3(m.Mag) && mn >= mm.MinNorm

	rows := 3
	if useMag {
		rows = 6
	}
	l := &Linearization{
		Y:      matrix.Zeros(rows, 1),
		H:      matrix.Zeros(rows, 4),
		R:      matrix.Zeros(rows, rows),
		UseMag: useMag,
	}

	g, b := mm.Expected(q)
	a := unit3(m.Accel)
	fill(l, 0, a, g, jacobianRotateInverse(q, mm.Gravity))
	if useMag {
		fill(l, 3, unit3(m.Mag), b, jacobianRotateInverse(q, mm.Magnetic))
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < rows; j++ {
			l.R.Set(i, j, mm.R.Get(i, j))
		}
	}
	return l, true
}

func fill(l *Linearization, row int, z, h [3]float64, jac [3][4]float64) {
	for i := 0; i < 3; i++ {
		l.Y.Set(row+i, 0, z[i]-h[i])
		for j := 0; j < 4; j++ {
			l.H.Set(row+i, j, jac[i][j])
		}
	}
}

// jacobianRotateInverse returns d(RotateInverse(q, v))/dq, columns ordered W, X, Y, Z.
func jacobianRotateInverse(q quaternion.Quaternion, v [3]float64) (jac [3][4]float64) {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	v1, v2, v3 := v[0], v[1], v[2]

	// b1 = (w²+x²-y²-z²)v1 + 2(xy+wz)v2 + 2(xz-wy)v3
	jac[0][0] = 2 * (w*v1 + z*v2 - y*v3)
	jac[0][1] = 2 * (x*v1 + y*v2 + z*v3)
	jac[0][2] = 2 * (-y*v1 + x*v2 - w*v3)
	jac[0][3] = 2 * (-z*v1 + w*v2 + x*v3)

	// b2 = 2(xy-wz)v1 + (w²-x²+y²-z²)v2 + 2(yz+wx)v3
	jac[1][0] = 2 * (-z*v1 + w*v2 + x*v3)
	jac[1][1] = 2 * (y*v1 - x*v2 + w*v3)
	jac[1][2] = 2 * (x*v1 + y*v2 + z*v3)
	jac[1][3] = 2 * (-w*v1 - z*v2 + y*v3)

	// b3 = 2(xz+wy)v1 + 2(yz-wx)v2 + (w²-x²-y²+z²)v3
	jac[2][0] = 2 * (y*v1 - x*v2 + w*v3)
	jac[2][1] = 2 * (z*v1 - w*v2 - x*v3)
	jac[2][2] = 2 * (w*v1 + z*v2 - y*v3)
	jac[2][3] = 2 * (x*v1 + y*v2 + z*v3)
	return
}

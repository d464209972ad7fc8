package ekf

import (
	"math"

	"github.com/skelterjohn/go.matrix"
	"github.com/westphae/quaternion"
)

// ProcessModel propagates the attitude and its covariance with the gyro rates.
//
// For a rate w held constant over dt the quaternion kinematics
// dq/dt = 0.5*Omega(w)*q have the exact solution q' = Phi*q with
//
//	Phi = cos(|w|dt/2)*I + sin(|w|dt/2)/|w| * Omega(w)
//
// Phi is linear in q, so it is also the state Jacobian used for the covariance.
type ProcessModel struct {
	Q       *matrix.DenseMatrix // Process noise per second, 4x4
	MaxDt   float64             // Longest dt still integrated, s
	MinNorm float64             // Quaternion norm below which the estimate is reset
}

// Transition returns the 4x4 discrete state transition for gyro rates w over dt.
func (pm *ProcessModel) Transition(w [3]float64, dt float64) *matrix.DenseMatrix {
	om := omega(w)
	n := norm3(w)

	var c, s float64
	if n*dt < 1e-9 {
		// First order is exact to rounding here and avoids dividing by |w|.
		c, s = 1, 0.5*dt
	} else {
		c, s = math.Cos(0.5*n*dt), math.Sin(0.5*n*dt)/n
	}

	phi := matrix.Zeros(4, 4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			v := s * om[i][j]
			if i == j {
				v += c
			}
			phi.Set(i, j, v)
		}
	}
	return phi
}

// Usable reports whether a cycle with this dt and gyro reading may be integrated.
func (pm *ProcessModel) Usable(w [3]float64, dt float64) bool {
	return finite(dt) && dt > 0 && dt <= pm.MaxDt && finite3(w)
}

// Predict propagates q and p over dt.  It returns the propagated pair and
// true, or the inputs unchanged and false if the cycle is not usable.
// The bool reset is set when the propagated quaternion collapsed and was
// replaced by the identity.
func (pm *ProcessModel) Predict(q quaternion.Quaternion, p *matrix.DenseMatrix, w [3]float64, dt float64) (
	qq quaternion.Quaternion, pp *matrix.DenseMatrix, ok, reset bool) {
	if !pm.Usable(w, dt) {
		return q, p, false, false
	}

	phi := pm.Transition(w, dt)
	qv := [4]float64{q.W, q.X, q.Y, q.Z}
	var r [4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r[i] += phi.Get(i, j) * qv[j]
		}
	}
	qq, normal := Normalize(quaternion.Quaternion{W: r[0], X: r[1], Y: r[2], Z: r[3]}, pm.MinNorm)

	pp = matrix.Sum(matrix.Product(phi, matrix.Product(p, phi.Transpose())), matrix.Scaled(pm.Q, dt))
	symmetrize(pp)
	return qq, pp, true, !normal
}

// symmetrize replaces m by (m+m')/2 in place.
func symmetrize(m *matrix.DenseMatrix) {
	n := m.Rows()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (m.Get(i, j) + m.Get(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

func finiteMatrix(m *matrix.DenseMatrix) bool {
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			if !finite(m.Get(i, j)) {
				return false
			}
		}
	}
	return true
}

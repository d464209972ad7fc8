package ekf

import (
	"math"

	"github.com/skelterjohn/go.matrix"
	"github.com/westphae/quaternion"
)

// KalmanCorrector applies a linearized measurement to the predicted state.
type KalmanCorrector struct {
	MinDet  float64 // det(S) at or below this is treated as singular
	MinNorm float64 // Quaternion norm below which the estimate is reset
}

// Correct returns the corrected quaternion and covariance.  When the
// innovation covariance is singular or the update is not finite, it returns
// the prediction unchanged with ok false.
func (kc *KalmanCorrector) Correct(q quaternion.Quaternion, p *matrix.DenseMatrix, l *Linearization) (
	qq quaternion.Quaternion, pp *matrix.DenseMatrix, ok, reset bool) {
	ht := l.H.Transpose()
	s := matrix.Sum(matrix.Product(l.H, matrix.Product(p, ht)), l.R)
	if !finiteMatrix(s) {
		return q, p, false, false
	}
	if det := s.Det(); !finite(det) || math.Abs(det) <= kc.MinDet {
		return q, p, false, false
	}
	si, err := s.Inverse()
	if err != nil || !finiteMatrix(si) {
		return q, p, false, false
	}

	k := matrix.Product(p, matrix.Product(ht, si))
	dx := matrix.Product(k, l.Y)

	// Joseph form: equal to (I-KH)P for the optimal gain, but stays
	// positive semi-definite under rounding.
	ikh := matrix.Difference(matrix.Eye(4), matrix.Product(k, l.H))
	pp = matrix.Sum(
		matrix.Product(ikh, matrix.Product(p, ikh.Transpose())),
		matrix.Product(k, matrix.Product(l.R, k.Transpose())))
	symmetrize(pp)
	if !finiteMatrix(pp) || !finiteMatrix(dx) {
		return q, p, false, false
	}

	qq, normal := Normalize(quaternion.Quaternion{
		W: q.W + dx.Get(0, 0),
		X: q.X + dx.Get(1, 0),
		Y: q.Y + dx.Get(2, 0),
		Z: q.Z + dx.Get(3, 0),
	}, kc.MinNorm)
	return qq, pp, true, !normal
}

package ekf

import (
	"math"
	"testing"

	"github.com/skelterjohn/go.matrix"
)

func trace(m *matrix.DenseMatrix) (tr float64) {
	for i := 0; i < m.Rows(); i++ {
		tr += m.Get(i, i)
	}
	return
}

func TestCorrectReducesError(t *testing.T) {
	mm := newTestMeasurementModel()
	mm.R = matrix.Scaled(matrix.Eye(6), 1e-4)
	kc := &KalmanCorrector{MinDet: 1e-30, MinNorm: 1e-12}

	truth := FromEuler(0.7, -0.4, 1.2)
	m := truthMeasurement(mm, truth)
	for _, pert := range [][3]float64{{0.05, 0, 0}, {0, 0.05, 0}, {0, 0, 0.05}, {0.03, -0.03, 0.03}} {
		q := Multiply(truth, FromEuler(pert[0], pert[1], pert[2]))
		p := matrix.Scaled(matrix.Eye(4), 0.01)
		before := AngleBetween(truth, q)

		l, ok := mm.Linearize(q, &m)
		if !ok {
			t.Fatal("linearization failed")
		}
		qq, pp, ok, reset := kc.Correct(q, p, l)
		if !ok || reset {
			t.Fatalf("perturbation %v: correction not applied", pert)
		}
		if notSmall(math.Sqrt(qq.W*qq.W+qq.X*qq.X+qq.Y*qq.Y+qq.Z*qq.Z) - 1) {
			t.Errorf("perturbation %v: corrected quaternion is not unit", pert)
		}
		if after := AngleBetween(truth, qq); after > 0.1*before {
			t.Errorf("perturbation %v: error %g before, %g after", pert, before, after)
		}
		if trace(pp) >= trace(p) {
			t.Errorf("perturbation %v: covariance trace grew from %g to %g", pert, trace(p), trace(pp))
		}
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				if pp.Get(i, j) != pp.Get(j, i) {
					t.Errorf("corrected covariance is not symmetric at %d,%d", i, j)
				}
			}
		}
	}
}

func TestCorrectSingularInnovation(t *testing.T) {
	mm := newTestMeasurementModel()
	mm.R = matrix.Zeros(6, 6)
	kc := &KalmanCorrector{MinDet: 1e-30, MinNorm: 1e-12}

	q := FromEuler(0.1, 0.2, 0.3)
	m := truthMeasurement(mm, FromEuler(0.5, 0, 0))
	p := matrix.Zeros(4, 4)
	l, ok := mm.Linearize(q, &m)
	if !ok {
		t.Fatal("linearization failed")
	}
	qq, pp, ok, reset := kc.Correct(q, p, l)
	if ok || reset {
		t.Error("a zero innovation covariance must skip the correction")
	}
	if qq != q || pp != p {
		t.Error("skipped correction changed the state")
	}
}

func TestCorrectNonFiniteCovariance(t *testing.T) {
	mm := newTestMeasurementModel()
	kc := &KalmanCorrector{MinDet: 1e-30, MinNorm: 1e-12}

	q := FromEuler(0.1, 0.2, 0.3)
	m := truthMeasurement(mm, q)
	p := matrix.Eye(4)
	p.Set(1, 1, math.Inf(1))
	l, _ := mm.Linearize(q, &m)
	if _, _, ok, _ := kc.Correct(q, p, l); ok {
		t.Error("an infinite covariance must skip the correction")
	}
}

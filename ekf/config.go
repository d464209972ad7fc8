package ekf

import (
	"math"

	"github.com/pkg/errors"
	"github.com/skelterjohn/go.matrix"
	"github.com/westphae/quaternion"
)

// Config holds the construction-time settings of an Estimator.
// Noise values are variances, so the diagonals must be non-negative.
type Config struct {
	InitialAttitude   quaternion.Quaternion // Starting estimate, normalized on use
	InitialCovariance float64               // Scale of the identity starting covariance
	ProcessNoise      [4]float64            // Diagonal of Q, quaternion units squared per second
	MeasurementNoise  [6]float64            // Diagonal of R: accel x,y,z then mag x,y,z, normalized units squared
	ReferenceGravity  [3]float64            // Accelerometer direction when body and reference frames coincide
	ReferenceMagnetic [3]float64            // Magnetometer direction when body and reference frames coincide

	MaxDt             float64 // Longest dt, s, still integrated; longer gaps are treated as a sensor stall
	MinQuaternionNorm float64 // Below this the quaternion is reset to identity instead of normalized
	MinVectorNorm     float64 // Accel or mag readings shorter than this are treated as missing
	MinInnovationDet  float64 // det(S) at or below this skips the correction
	HistorySize       int     // Number of recent estimates retained
}

// DefaultConfig returns settings suitable for a MEMS IMU sampled at 20-1000 Hz.
func DefaultConfig() Config {
	return Config{
		InitialAttitude:   Identity,
		InitialCovariance: 1,
		ProcessNoise:      [4]float64{1e-4, 1e-4, 1e-4, 1e-4},
		MeasurementNoise:  [6]float64{1e-2, 1e-2, 1e-2, 4e-2, 4e-2, 4e-2},
		ReferenceGravity:  [3]float64{0, 0, 1},
		ReferenceMagnetic: [3]float64{1, 0, 0},
		MaxDt:             1,
		MinQuaternionNorm: 1e-12,
		MinVectorNorm:     1e-9,
		MinInnovationDet:  1e-30,
		HistorySize:       1,
	}
}

// Validate reports the first problem found with c.
func (c *Config) Validate() error {
	if !finite(c.InitialCovariance) || c.InitialCovariance < 0 {
		return errors.Errorf("ekf: initial covariance must be a non-negative number, got %g", c.InitialCovariance)
	}
	for i, v := range c.ProcessNoise {
		if !finite(v) || v < 0 {
			return errors.Errorf("ekf: process noise %d must be a non-negative number, got %g", i, v)
		}
	}
	for i, v := range c.MeasurementNoise {
		if !finite(v) || v < 0 {
			return errors.Errorf("ekf: measurement noise %d must be a non-negative number, got %g", i, v)
		}
	}
	if !finite(c.MaxDt) || c.MaxDt <= 0 {
		return errors.Errorf("ekf: max dt must be positive, got %g", c.MaxDt)
	}
	if !finite(c.MinQuaternionNorm) || c.MinQuaternionNorm <= 0 {
		return errors.Errorf("ekf: min quaternion norm must be positive, got %g", c.MinQuaternionNorm)
	}
	if !finite(c.MinVectorNorm) || c.MinVectorNorm <= 0 {
		return errors.Errorf("ekf: min vector norm must be positive, got %g", c.MinVectorNorm)
	}
	if !finite(c.MinInnovationDet) || c.MinInnovationDet < 0 {
		return errors.Errorf("ekf: min innovation determinant must be non-negative, got %g", c.MinInnovationDet)
	}
	if c.HistorySize < 1 {
		return errors.Errorf("ekf: history size must be at least 1, got %d", c.HistorySize)
	}
	if _, ok := Normalize(c.InitialAttitude, c.MinQuaternionNorm); !ok {
		return errors.New("ekf: initial attitude has no direction")
	}
	if n := norm3(c.ReferenceGravity); !finite(n) || n < c.MinVectorNorm {
		return errors.New("ekf: reference gravity has no direction")
	}
	if n := norm3(c.ReferenceMagnetic); !finite(n) || n < c.MinVectorNorm {
		return errors.New("ekf: reference magnetic field has no direction")
	}
	if collinear(c.ReferenceGravity, c.ReferenceMagnetic) {
		return errors.New("ekf: reference gravity and magnetic field are parallel, heading is unobservable")
	}
	return nil
}

// collinear reports whether a and b point along the same line within 0.1°.
func collinear(a, b [3]float64) bool {
	cx := a[1]*b[2] - a[2]*b[1]
	cy := a[2]*b[0] - a[0]*b[2]
	cz := a[0]*b[1] - a[1]*b[0]
	return math.Sqrt(cx*cx+cy*cy+cz*cz) <= math.Sin(0.1*Deg)*norm3(a)*norm3(b)
}

func (c *Config) processNoise() *matrix.DenseMatrix {
	return matrix.Diagonal(c.ProcessNoise[:])
}

func (c *Config) measurementNoise() *matrix.DenseMatrix {
	return matrix.Diagonal(c.MeasurementNoise[:])
}

func (c *Config) initialCovariance() *matrix.DenseMatrix {
	return matrix.Scaled(matrix.Eye(4), c.InitialCovariance)
}

func unit3(v [3]float64) [3]float64 {
	n := norm3(v)
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

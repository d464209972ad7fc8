// Package ekf implements an Extended Kalman Filter estimating the attitude
// of a rigid body from gyro, accelerometer and magnetometer readings.
//
// The state is the unit quaternion rotating body frame to reference frame,
// with its 4x4 covariance kept directly in quaternion space.
package ekf

import (
	"math"

	"github.com/westphae/quaternion"
)

const (
	Pi  = math.Pi
	Deg = Pi / 180 // Deg converts degrees to radians
)

// Measurement holds one synchronized sensor reading, all in body frame.
type Measurement struct {
	Gyro  [3]float64 // Angular velocity, rad/s
	Accel [3]float64 // Specific force, any consistent unit
	Mag   [3]float64 // Magnetic field, any consistent unit
}

// Attitude is the estimator output for one cycle.
type Attitude struct {
	Q                quaternion.Quaternion // Rotates body frame to reference frame
	Yaw, Pitch, Roll float64               // Tait-Bryan angles, rad
	Predicted        bool                  // Was the gyro propagation applied this cycle?
	Corrected        bool                  // Was a measurement correction applied this cycle?
	Seq              uint64                // Cycle counter at the time of the estimate
}

// EulerDegrees returns yaw, pitch and roll in degrees.
func (a Attitude) EulerDegrees() (yaw, pitch, roll float64) {
	return a.Yaw / Deg, a.Pitch / Deg, a.Roll / Deg
}

// Stats counts how cycles were handled since the estimator was created or reset.
type Stats struct {
	Cycles            uint64 // Every call to Ingest
	Held              uint64 // Cycles with unusable dt or gyro: no propagation, no correction
	SkippedCorrection uint64 // Predicted but not corrected: degenerate accel or singular S
	AccelOnly         uint64 // Corrected without the magnetometer rows
	Resets            uint64 // Quaternion norm collapsed and was reset to identity
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func finite3(v [3]float64) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

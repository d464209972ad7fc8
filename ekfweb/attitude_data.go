// Package ekfweb publishes attitude estimates as JSON over websockets so
// they can be watched live from a browser or recorded by another process.
package ekfweb

import (
	"time"

	"github.com/skelterjohn/go.matrix"

	"github.com/stratux/goflying-ekf/ekf"
)

const Port = 8000

// AttitudeData is one published estimate.
type AttitudeData struct {
	T   float64 // Time of the estimate, s
	Seq uint64  // Estimator cycle

	// Filter state
	Q0, Q1, Q2, Q3     float64 // Quaternion rotating body frame to reference frame
	DQ0, DQ1, DQ2, DQ3 float64 // Variances of the quaternion components

	Yaw, Pitch, Roll     float64 // °
	Predicted, Corrected bool
	Runtime              float64 // Time spent in the filter cycle, s

	// Measurement, body frame
	G1, G2, G3 float64 // Gyro rates, °/s
	A1, A2, A3 float64 // Accelerometer
	M1, M2, M3 float64 // Magnetometer
}

// NewAttitudeData builds the message for one estimate.  p and m may be nil.
func NewAttitudeData(t time.Time, a ekf.Attitude, p *matrix.DenseMatrix, m *ekf.Measurement, runtime time.Duration) *AttitudeData {
	d := &AttitudeData{
		T:         float64(t.UnixNano()/1000) / 1e6,
		Seq:       a.Seq,
		Q0:        a.Q.W,
		Q1:        a.Q.X,
		Q2:        a.Q.Y,
		Q3:        a.Q.Z,
		Predicted: a.Predicted,
		Corrected: a.Corrected,
		Runtime:   runtime.Seconds(),
	}
	d.Yaw, d.Pitch, d.Roll = a.EulerDegrees()

	if p != nil {
		d.DQ0 = p.Get(0, 0)
		d.DQ1 = p.Get(1, 1)
		d.DQ2 = p.Get(2, 2)
		d.DQ3 = p.Get(3, 3)
	}

	if m != nil {
		d.G1, d.G2, d.G3 = m.Gyro[0]/ekf.Deg, m.Gyro[1]/ekf.Deg, m.Gyro[2]/ekf.Deg
		d.A1, d.A2, d.A3 = m.Accel[0], m.Accel[1], m.Accel[2]
		d.M1, d.M2, d.M3 = m.Mag[0], m.Mag[1], m.Mag[2]
	}
	return d
}

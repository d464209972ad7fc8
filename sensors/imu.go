// Package sensors turns raw IMU readings into measurements for the attitude estimator.
package sensors

import (
	"time"

	"github.com/kidoman/embd"
	"github.com/pkg/errors"

	"github.com/stratux/goflying-ekf/icm20948"
)

// Reading is one (possibly averaged) reading of an IMU, in sensor axes.
type Reading struct {
	T     time.Time  // Gyro/accel sample time
	TM    time.Time  // Magnetometer sample time
	Gyro  [3]float64 // rad/s
	Accel [3]float64 // g
	Mag   [3]float64 // µT

	GAError, MagError error
}

// IMUReader provides an interface to various Inertial Measurement Unit
// sensors.  It is a light abstraction on top of the drivers so that
// recorded data can stand in for a live sensor.
type IMUReader interface {
	// Read returns the average reading since the last call.
	Read() (*Reading, error)
	// Close stops reading the IMU.
	Close()
}

// ICM20948 is an InvenSense ICM-20948 attached to the I2C bus, satisfying IMUReader.
type ICM20948 struct {
	mpu *icm20948.ICM20948
}

// ICM20948Settings selects the sensor ranges and rate.
type ICM20948Settings struct {
	GyroRange       int // °/s
	AccelRange      int // g
	SampleRate      int // Hz
	EnableMag       bool
	CalibrationFile string
}

// NewICM20948 returns an IMUReader connected to an ICM-20948 on i2cbus.
func NewICM20948(i2cbus embd.I2CBus, s ICM20948Settings) (*ICM20948, error) {
	mpu, err := icm20948.NewICM20948(i2cbus, s.GyroRange, s.AccelRange, s.SampleRate, s.EnableMag, s.CalibrationFile)
	if err != nil {
		return nil, errors.Wrap(err, "sensors: starting ICM20948")
	}
	return &ICM20948{mpu: mpu}, nil
}

// Read returns the average reading since the last call.  It waits for a
// few averaging periods if no gyro/accel value has been taken yet.
func (m *ICM20948) Read() (*Reading, error) {
	var data *icm20948.MPUData
	for i := 0; i < 5; i++ {
		var ok bool
		if data, ok = <-m.mpu.CAvg; !ok {
			return nil, errors.New("sensors: ICM20948 closed")
		}
		if data.N > 0 {
			break
		}
	}
	return fromMPUData(data), nil
}

func fromMPUData(d *icm20948.MPUData) *Reading {
	return &Reading{
		T:        d.T,
		TM:       d.TM,
		Gyro:     [3]float64{d.G1, d.G2, d.G3},
		Accel:    [3]float64{d.A1, d.A2, d.A3},
		Mag:      [3]float64{d.M1, d.M2, d.M3},
		GAError:  d.GAError,
		MagError: d.MagError,
	}
}

// Close stops reading the IMU.
func (m *ICM20948) Close() {
	m.mpu.CloseMPU()
}

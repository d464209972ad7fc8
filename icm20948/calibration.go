package icm20948

import (
	"encoding/json"
	"io/ioutil"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// DefaultCalibrationFile is where the sensor calibration is kept on a device.
const DefaultCalibrationFile = "/etc/icm20948cal.json"

// Calibration holds offsets and scaling applied to the converted readings.
type Calibration struct {
	A01, A02, A03    float64 // Accelerometer bias, g
	G01, G02, G03    float64 // Gyro bias, rad/s
	M01, M02, M03    float64 // Magnetometer hard iron offset, µT
	Ms11, Ms12, Ms13 float64 // Magnetometer soft iron matrix
	Ms21, Ms22, Ms23 float64
	Ms31, Ms32, Ms33 float64
}

// DefaultCalibration applies no correction.
func DefaultCalibration() Calibration {
	return Calibration{Ms11: 1, Ms22: 1, Ms33: 1}
}

// LoadCalibration reads a calibration saved by Save.
func LoadCalibration(fn string) (Calibration, error) {
	c := DefaultCalibration()
	buf, err := ioutil.ReadFile(fn)
	if err != nil {
		return c, errors.Wrap(err, "icm20948: reading calibration")
	}
	if err := json.Unmarshal(buf, &c); err != nil {
		return DefaultCalibration(), errors.Wrapf(err, "icm20948: parsing calibration %s", fn)
	}
	return c, nil
}

// Save writes the calibration to fn.
func (c *Calibration) Save(fn string) error {
	buf, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "icm20948: marshaling calibration")
	}
	if err := ioutil.WriteFile(fn, buf, 0644); err != nil {
		return errors.Wrap(err, "icm20948: saving calibration")
	}
	glog.Infof("ICM20948: saved calibration to %s", fn)
	return nil
}

func (c *Calibration) gyro(g [3]float64) [3]float64 {
	return [3]float64{g[0] - c.G01, g[1] - c.G02, g[2] - c.G03}
}

func (c *Calibration) accel(a [3]float64) [3]float64 {
	return [3]float64{a[0] - c.A01, a[1] - c.A02, a[2] - c.A03}
}

func (c *Calibration) mag(m [3]float64) [3]float64 {
	m1, m2, m3 := m[0]-c.M01, m[1]-c.M02, m[2]-c.M03
	return [3]float64{
		c.Ms11*m1 + c.Ms12*m2 + c.Ms13*m3,
		c.Ms21*m1 + c.Ms22*m2 + c.Ms23*m3,
		c.Ms31*m1 + c.Ms32*m2 + c.Ms33*m3,
	}
}

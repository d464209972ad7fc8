// Package settings reads the YAML configuration of the attitude daemon.
package settings

import (
	"bytes"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stratux/goflying-ekf/ekf"
	"github.com/stratux/goflying-ekf/icm20948"
	"github.com/stratux/goflying-ekf/sensors"
)

const DefaultFile = "/etc/goflying-ekf.yaml"

// Settings configures the sensor, the filter and what is published.
type Settings struct {
	I2CBus          byte   `yaml:"i2c_bus"`
	GyroRange       int    `yaml:"gyro_range"`  // °/s
	AccelRange      int    `yaml:"accel_range"` // g
	SampleRate      int    `yaml:"sample_rate"` // Hz
	EnableMag       bool   `yaml:"enable_mag"`
	CalibrationFile string `yaml:"calibration_file"`
	Orientation     string `yaml:"orientation"` // Sensor axis along each body axis, e.g. "x,-y,-z"

	MagTimeout    time.Duration `yaml:"mag_timeout"` // Correct without the magnetometer after this long; 0 waits
	MaxReadErrors int           `yaml:"max_read_errors"`

	Listen    string `yaml:"listen"`     // Address for the websocket and metrics server; empty disables it
	SampleLog string `yaml:"sample_log"` // CSV file recording every measurement; empty disables it

	Filter Filter `yaml:"filter"`
}

// Filter holds the tunable parts of ekf.Config.
type Filter struct {
	InitialEuler      [3]float64 `yaml:"initial_euler"` // Yaw, pitch, roll, °
	InitialCovariance float64    `yaml:"initial_covariance"`
	ProcessNoise      [4]float64 `yaml:"process_noise"`
	MeasurementNoise  [6]float64 `yaml:"measurement_noise"`
	ReferenceGravity  [3]float64 `yaml:"reference_gravity"`
	ReferenceMagnetic [3]float64 `yaml:"reference_magnetic"`
	MaxDt             float64    `yaml:"max_dt"`
	HistorySize       int        `yaml:"history_size"`
}

// Default returns the settings used for anything a file leaves out.
func Default() Settings {
	c := ekf.DefaultConfig()
	return Settings{
		I2CBus:          1,
		GyroRange:       250,
		AccelRange:      4,
		SampleRate:      50,
		EnableMag:       true,
		CalibrationFile: icm20948.DefaultCalibrationFile,
		Orientation:     sensors.IdentityOrientation.String(),
		MagTimeout:      250 * time.Millisecond,
		MaxReadErrors:   10,
		Listen:          ":8000",
		Filter: Filter{
			InitialCovariance: c.InitialCovariance,
			ProcessNoise:      c.ProcessNoise,
			MeasurementNoise:  c.MeasurementNoise,
			ReferenceGravity:  c.ReferenceGravity,
			ReferenceMagnetic: c.ReferenceMagnetic,
			MaxDt:             c.MaxDt,
			HistorySize:       c.HistorySize,
		},
	}
}

// Load reads the settings in fn over the defaults.  Unknown keys are an error.
func Load(fn string) (Settings, error) {
	s := Default()
	b, err := ioutil.ReadFile(fn)
	if err != nil {
		return s, errors.Wrap(err, "settings: reading")
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Default(), errors.Wrapf(err, "settings: parsing %s", fn)
	}
	if err := s.Validate(); err != nil {
		return Default(), errors.Wrapf(err, "settings: %s", fn)
	}
	return s, nil
}

// Save writes s to fn as YAML.
func (s *Settings) Save(fn string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "settings: encoding")
	}
	return errors.Wrap(ioutil.WriteFile(fn, b, 0644), "settings: writing")
}

// Validate reports the first problem with s.  Sensor ranges are left to the driver.
func (s *Settings) Validate() error {
	if s.SampleRate <= 0 {
		return errors.Errorf("sample_rate must be positive, got %d", s.SampleRate)
	}
	if s.MagTimeout < 0 {
		return errors.Errorf("mag_timeout must not be negative, got %v", s.MagTimeout)
	}
	if s.MaxReadErrors < 1 {
		return errors.Errorf("max_read_errors must be at least 1, got %d", s.MaxReadErrors)
	}
	if _, err := s.SensorOrientation(); err != nil {
		return err
	}
	_, err := s.EKFConfig()
	return err
}

// SensorOrientation parses Orientation.
func (s *Settings) SensorOrientation() (sensors.Orientation, error) {
	return sensors.ParseOrientation(s.Orientation)
}

// EKFConfig returns the validated filter configuration.
func (s *Settings) EKFConfig() (ekf.Config, error) {
	c := ekf.DefaultConfig()
	f := s.Filter
	c.InitialAttitude = ekf.FromEuler(f.InitialEuler[0]*ekf.Deg, f.InitialEuler[1]*ekf.Deg, f.InitialEuler[2]*ekf.Deg)
	c.InitialCovariance = f.InitialCovariance
	c.ProcessNoise = f.ProcessNoise
	c.MeasurementNoise = f.MeasurementNoise
	c.ReferenceGravity = f.ReferenceGravity
	c.ReferenceMagnetic = f.ReferenceMagnetic
	c.MaxDt = f.MaxDt
	c.HistorySize = f.HistorySize
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// ICM20948 returns the sensor settings.
func (s *Settings) ICM20948() sensors.ICM20948Settings {
	return sensors.ICM20948Settings{
		GyroRange:       s.GyroRange,
		AccelRange:      s.AccelRange,
		SampleRate:      s.SampleRate,
		EnableMag:       s.EnableMag,
		CalibrationFile: s.CalibrationFile,
	}
}

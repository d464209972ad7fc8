package sensors

import (
	"time"

	"github.com/golang/glog"

	"github.com/stratux/goflying-ekf/ekf"
)

// Synchronizer pairs independently arriving gyro/accel and magnetometer
// samples into one measurement per filter cycle.
//
// A measurement is released only once both a gyro/accel sample and a
// magnetometer sample newer than the previous release are held.  The first
// complete pair only sets the time origin.  With MaxMagAge set, a
// gyro/accel sample is released without magnetometer data once the last
// magnetometer sample is older than that, so the filter falls back to an
// accelerometer-only correction instead of stalling.
type Synchronizer struct {
	Orientation Orientation   // Sensor to body axes
	MaxMagAge   time.Duration // Zero waits for the magnetometer indefinitely

	gyro, accel, mag [3]float64
	tIMU, tMag       time.Time
	haveIMU, haveMag bool
	last             time.Time // Gyro/accel time of the last release
	primed           bool

	Dropped uint64 // Samples discarded for being out of order
}

// NewSynchronizer returns a Synchronizer remapping axes with o.
func NewSynchronizer(o Orientation) *Synchronizer {
	return &Synchronizer{Orientation: o}
}

// AddIMU offers a gyro (rad/s) and accelerometer sample taken at t.
func (s *Synchronizer) AddIMU(t time.Time, gyro, accel [3]float64) {
	if (s.haveIMU && !t.After(s.tIMU)) || (s.primed && !t.After(s.last)) {
		s.Dropped++
		glog.V(2).Infof("sensors: dropping gyro/accel sample at %v", t)
		return
	}
	s.gyro, s.accel, s.tIMU, s.haveIMU = gyro, accel, t, true
}

// AddMag offers a magnetometer sample taken at t.
func (s *Synchronizer) AddMag(t time.Time, mag [3]float64) {
	if !s.tMag.IsZero() && !t.After(s.tMag) {
		s.Dropped++
		return
	}
	s.mag, s.tMag, s.haveMag = mag, t, true
}

// Add offers the parts of r that were read without error.
func (s *Synchronizer) Add(r *Reading) {
	if r.GAError == nil {
		s.AddIMU(r.T, r.Gyro, r.Accel)
	}
	if r.MagError == nil {
		s.AddMag(r.TM, r.Mag)
	}
}

// Next releases a measurement in body axes and the seconds since the
// previous one, or false if there is not yet a complete fresh pair.
func (s *Synchronizer) Next() (m ekf.Measurement, dt float64, ok bool) {
	if !s.haveIMU {
		return m, 0, false
	}
	useMag := s.haveMag
	if !useMag && (s.MaxMagAge <= 0 || s.tIMU.Sub(s.tMag) <= s.MaxMagAge) {
		return m, 0, false
	}

	o := s.orientation()
	m.Gyro = o.Apply(s.gyro)
	m.Accel = o.Apply(s.accel)
	if useMag {
		m.Mag = o.Apply(s.mag)
	}
	dt = s.tIMU.Sub(s.last).Seconds()
	s.last = s.tIMU
	s.haveIMU, s.haveMag = false, false

	if !s.primed {
		s.primed = true
		return m, 0, false
	}
	return m, dt, true
}

// Reset forgets held samples and the time origin.
func (s *Synchronizer) Reset() {
	o, age := s.Orientation, s.MaxMagAge
	*s = Synchronizer{Orientation: o, MaxMagAge: age}
}

func (s *Synchronizer) orientation() Orientation {
	if s.Orientation == (Orientation{}) {
		return IdentityOrientation
	}
	return s.Orientation
}

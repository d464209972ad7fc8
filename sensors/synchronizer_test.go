package sensors

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
)

var t0 = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func TestSynchronizerPrimes(t *testing.T) {
	s := NewSynchronizer(IdentityOrientation)
	if _, _, ok := s.Next(); ok {
		t.Fatal("released with no samples")
	}

	s.AddIMU(ms(0), [3]float64{0.1, 0, 0}, [3]float64{0, 0, -1})
	if _, _, ok := s.Next(); ok {
		t.Fatal("released without a magnetometer sample")
	}
	s.AddMag(ms(0), [3]float64{20, 0, 40})
	if _, _, ok := s.Next(); ok {
		t.Fatal("first complete pair should only set the time origin")
	}

	s.AddIMU(ms(10), [3]float64{0.2, 0, 0}, [3]float64{0, 0, -1})
	s.AddMag(ms(12), [3]float64{21, 0, 40})
	m, dt, ok := s.Next()
	if !ok {
		t.Fatal("no release for a complete pair")
	}
	if math.Abs(dt-0.01) > 1e-12 {
		t.Errorf("dt = %g, want 0.01", dt)
	}
	if m.Gyro[0] != 0.2 || m.Mag[0] != 21 || m.Accel[2] != -1 {
		t.Errorf("unexpected measurement %+v", m)
	}
	if _, _, ok := s.Next(); ok {
		t.Error("released the same samples twice")
	}
}

func TestSynchronizerWaitsForFreshMag(t *testing.T) {
	s := NewSynchronizer(IdentityOrientation)
	s.AddIMU(ms(0), [3]float64{}, [3]float64{0, 0, -1})
	s.AddMag(ms(0), [3]float64{20, 0, 40})
	s.Next()

	s.AddIMU(ms(10), [3]float64{}, [3]float64{0, 0, -1})
	s.AddIMU(ms(20), [3]float64{0, 0, 0.3}, [3]float64{0, 0, -1})
	if _, _, ok := s.Next(); ok {
		t.Fatal("released without a new magnetometer sample")
	}
	s.AddMag(ms(21), [3]float64{20, 0, 40})
	m, dt, ok := s.Next()
	if !ok || math.Abs(dt-0.02) > 1e-12 || m.Gyro[2] != 0.3 {
		t.Errorf("got %+v, %g, %v; want the latest gyro sample after 0.02s", m, dt, ok)
	}
}

func TestSynchronizerMagTimeout(t *testing.T) {
	s := NewSynchronizer(IdentityOrientation)
	s.MaxMagAge = 50 * time.Millisecond
	s.AddIMU(ms(0), [3]float64{}, [3]float64{0, 0, -1})
	s.AddMag(ms(0), [3]float64{20, 0, 40})
	s.Next()

	s.AddIMU(ms(30), [3]float64{}, [3]float64{0, 0, -1})
	if _, _, ok := s.Next(); ok {
		t.Fatal("released before the magnetometer timed out")
	}
	s.AddIMU(ms(100), [3]float64{}, [3]float64{0, 0, -1})
	m, dt, ok := s.Next()
	if !ok {
		t.Fatal("no release after the magnetometer timed out")
	}
	if m.Mag != [3]float64{} {
		t.Errorf("stale magnetometer data released: %v", m.Mag)
	}
	if math.Abs(dt-0.1) > 1e-12 {
		t.Errorf("dt = %g, want 0.1", dt)
	}
}

func TestSynchronizerDropsOutOfOrder(t *testing.T) {
	s := NewSynchronizer(IdentityOrientation)
	s.AddIMU(ms(10), [3]float64{}, [3]float64{0, 0, -1})
	s.AddMag(ms(10), [3]float64{20, 0, 40})
	s.Next()

	s.AddIMU(ms(5), [3]float64{}, [3]float64{0, 0, -1})
	s.AddIMU(ms(10), [3]float64{}, [3]float64{0, 0, -1})
	s.AddMag(ms(8), [3]float64{20, 0, 40})
	if s.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", s.Dropped)
	}
	if _, _, ok := s.Next(); ok {
		t.Error("released out of order samples")
	}

	s.AddIMU(ms(20), [3]float64{}, [3]float64{0, 0, -1})
	s.AddIMU(ms(15), [3]float64{}, [3]float64{0, 0, -1})
	if s.Dropped != 4 {
		t.Errorf("Dropped = %d, want 4", s.Dropped)
	}
}

func TestSynchronizerRemapsAxes(t *testing.T) {
	o, err := ParseOrientation("y,x,-z")
	if err != nil {
		t.Fatal(err)
	}
	s := NewSynchronizer(o)
	s.AddIMU(ms(0), [3]float64{}, [3]float64{})
	s.AddMag(ms(0), [3]float64{})
	s.Next()

	s.AddIMU(ms(10), [3]float64{1, 2, 3}, [3]float64{4, 5, 6})
	s.AddMag(ms(10), [3]float64{7, 8, 9})
	m, _, ok := s.Next()
	if !ok {
		t.Fatal("no release")
	}
	if m.Gyro != [3]float64{2, 1, -3} || m.Accel != [3]float64{5, 4, -6} || m.Mag != [3]float64{8, 7, -9} {
		t.Errorf("axes not remapped: %+v", m)
	}
}

func TestSynchronizerZeroOrientation(t *testing.T) {
	var s Synchronizer
	s.AddIMU(ms(0), [3]float64{}, [3]float64{})
	s.AddMag(ms(0), [3]float64{})
	s.Next()
	s.AddIMU(ms(10), [3]float64{1, 2, 3}, [3]float64{})
	s.AddMag(ms(10), [3]float64{})
	if m, _, ok := s.Next(); !ok || m.Gyro != [3]float64{1, 2, 3} {
		t.Errorf("zero orientation should act as identity, got %+v", m)
	}
}

func TestSynchronizerAddSkipsErrors(t *testing.T) {
	s := NewSynchronizer(IdentityOrientation)
	s.Add(&Reading{T: ms(0), TM: ms(0), Accel: [3]float64{0, 0, -1}})
	s.Next()

	s.Add(&Reading{T: ms(10), TM: ms(10), Gyro: [3]float64{1, 0, 0}, MagError: errors.New("not ready")})
	if _, _, ok := s.Next(); ok {
		t.Fatal("released with a failed magnetometer read")
	}
	s.Add(&Reading{T: ms(20), TM: ms(20), Gyro: [3]float64{2, 0, 0}, GAError: errors.New("bus")})
	m, dt, ok := s.Next()
	if !ok || m.Gyro[0] != 1 || math.Abs(dt-0.01) > 1e-12 {
		t.Errorf("got %+v, %g, %v; want the gyro sample from 10ms", m, dt, ok)
	}
}

func TestSynchronizerReset(t *testing.T) {
	s := NewSynchronizer(IdentityOrientation)
	s.MaxMagAge = time.Second
	s.AddIMU(ms(0), [3]float64{}, [3]float64{})
	s.AddMag(ms(0), [3]float64{})
	s.Next()
	s.AddIMU(ms(5), [3]float64{}, [3]float64{})
	s.Reset()

	if s.MaxMagAge != time.Second || s.Orientation != IdentityOrientation {
		t.Error("Reset dropped the configuration")
	}
	s.AddIMU(ms(1), [3]float64{}, [3]float64{})
	s.AddMag(ms(1), [3]float64{})
	if _, _, ok := s.Next(); ok {
		t.Error("Reset should require priming again")
	}
	if s.Dropped != 0 {
		t.Errorf("Dropped = %d after Reset", s.Dropped)
	}
}

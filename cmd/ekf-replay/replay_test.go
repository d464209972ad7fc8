package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/westphae/quaternion"

	"github.com/stratux/goflying-ekf/ekf"
	"github.com/stratux/goflying-ekf/sensors"
)

const yawRate = 0.5 // rad/s

// turnLog records n samples 20ms apart of a level body turning at yawRate.
func turnLog(t *testing.T, n int) *bytes.Buffer {
	var buf bytes.Buffer
	w, err := sensors.NewSampleLogWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	cfg := ekf.DefaultConfig()
	for i := 1; i <= n; i++ {
		ts := 0.02 * float64(i)
		q := turnAttitude(ts)
		m := ekf.Measurement{Gyro: [3]float64{0, 0, yawRate}}
		g := ekf.RotateInverse(q, cfg.ReferenceGravity)
		b := ekf.RotateInverse(q, cfg.ReferenceMagnetic)
		for j := 0; j < 3; j++ {
			m.Accel[j] = 9.8 * g[j]
			m.Mag[j] = 45 * b[j]
		}
		if err := w.Write(ts, &m); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func turnAttitude(t float64) quaternion.Quaternion {
	half := yawRate * t / 2
	return quaternion.Quaternion{W: math.Cos(half), Z: math.Sin(half)}
}

func TestReplayTracksTurn(t *testing.T) {
	lr, err := sensors.NewSampleLogReader(turnLog(t, 200))
	if err != nil {
		t.Fatal(err)
	}
	est, err := ekf.New(ekf.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	ew, err := newEstimateWriter(&out)
	if err != nil {
		t.Fatal(err)
	}
	var tr track
	worst := 0.0
	n, err := replay(est, lr, func(ts float64, a ekf.Attitude, m *ekf.Measurement) error {
		worst = math.Max(worst, ekf.AngleBetween(a.Q, turnAttitude(ts)))
		tr.add(ts, a)
		return ew.write(ts, a)
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 200 {
		t.Errorf("replayed %d samples, want 200", n)
	}
	if worst > 1e-4 {
		t.Errorf("estimate strayed %g rad from the turn", worst)
	}
	if st := est.Stats(); st.Held != 0 || st.SkippedCorrection != 0 {
		t.Errorf("stats %+v", st)
	}

	if err := ew.flush(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 201 || lines[0] != strings.Join(estimateHeader, ",") {
		t.Fatalf("unexpected estimate output, %d lines starting %q", len(lines), lines[0])
	}
	if !strings.HasPrefix(lines[200], "4.000000,200,") || !strings.HasSuffix(lines[200], ",true,true") {
		t.Errorf("last estimate %q", lines[200])
	}
	if yaw := tr.yaw[len(tr.yaw)-1].Y; math.Abs(yaw-2/ekf.Deg) > 1e-4 {
		t.Errorf("final yaw %g°, want %g°", yaw, 2/ekf.Deg)
	}

	fn := filepath.Join(t.TempDir(), "attitude.png")
	if err := tr.save(fn); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(fn); err != nil || fi.Size() == 0 {
		t.Errorf("plot not written: %v", err)
	}
}

func TestReplayBadRow(t *testing.T) {
	log := "t,gx,gy,gz,ax,ay,az,mx,my,mz\n0.02,0,0,0,0,0,1,1,0,0\n0.04,0,0,0,0,0,1,one,0,0\n"
	lr, err := sensors.NewSampleLogReader(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	est, err := ekf.New(ekf.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	n, err := replay(est, lr, nil)
	if err == nil || n != 1 {
		t.Errorf("expected an error after 1 sample, got %d, %v", n, err)
	}
}

package sensors

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stratux/goflying-ekf/ekf"
)

func TestSampleLogRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewSampleLogWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	in := []ekf.Measurement{
		{Gyro: [3]float64{0.01, -0.02, 0.5}, Accel: [3]float64{0.1, 0, -9.79}, Mag: [3]float64{20.5, -1.25, 43}},
		{Gyro: [3]float64{1e-7, 0, 0}, Accel: [3]float64{0, 0.3333333333333333, -9.8}},
	}
	for i := range in {
		if err := w.Write(0.01*float64(i+1), &in[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "t,gx,gy,gz,ax,ay,az,mx,my,mz\n") {
		t.Errorf("unexpected header in %q", buf.String())
	}

	r, err := NewSampleLogReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		ts, m, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		if ts != 0.01*float64(i+1) {
			t.Errorf("row %d: t = %g", i, ts)
		}
		if m != in[i] {
			t.Errorf("row %d: got %+v, want %+v", i, m, in[i])
		}
	}
	if _, _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestSampleLogReaderErrors(t *testing.T) {
	if _, err := NewSampleLogReader(strings.NewReader("")); err == nil {
		t.Error("expected an error for an empty log")
	}
	if _, err := NewSampleLogReader(strings.NewReader("t,gx,gy,gz,ax,ay,az,mz,my,mx\n")); err == nil {
		t.Error("expected an error for misnamed columns")
	}

	r, err := NewSampleLogReader(strings.NewReader("t,gx,gy,gz,ax,ay,az,mx,my,mz\n# comment\n0.1,0,0,0,0,0,-1,x,0,0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Next(); err == nil || !strings.Contains(err.Error(), "column mx") {
		t.Errorf("expected a parse error naming the column, got %v", err)
	}

	r, err = NewSampleLogReader(strings.NewReader("t,gx,gy,gz,ax,ay,az,mx,my,mz\n0.1,0,0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Next(); err == nil || err == io.EOF {
		t.Errorf("expected an error for a short row, got %v", err)
	}
}

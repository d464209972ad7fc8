package main

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/stratux/goflying-ekf/ekf"
	"github.com/stratux/goflying-ekf/sensors"
)

// replay runs every measurement in lr through est, calling each with the
// result.  Times in the log are seconds from the sample before the first row.
func replay(est *ekf.Estimator, lr *sensors.SampleLogReader, each func(t float64, a ekf.Attitude, m *ekf.Measurement) error) (n int, err error) {
	var prev float64
	for {
		t, m, err := lr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		a := est.Ingest(m, t-prev)
		prev = t
		n++
		if each != nil {
			if err := each(t, a, &m); err != nil {
				return n, err
			}
		}
	}
}

var estimateHeader = []string{"t", "seq", "q0", "q1", "q2", "q3", "yaw", "pitch", "roll", "predicted", "corrected"}

// estimateWriter writes estimates as CSV, angles in degrees.
type estimateWriter struct {
	w *csv.Writer
}

func newEstimateWriter(w io.Writer) (*estimateWriter, error) {
	ew := &estimateWriter{w: csv.NewWriter(w)}
	if err := ew.w.Write(estimateHeader); err != nil {
		return nil, errors.Wrap(err, "writing estimate header")
	}
	return ew, nil
}

func (ew *estimateWriter) write(t float64, a ekf.Attitude) error {
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', 9, 64) }
	yaw, pitch, roll := a.EulerDegrees()
	return errors.Wrap(ew.w.Write([]string{
		strconv.FormatFloat(t, 'f', 6, 64),
		strconv.FormatUint(a.Seq, 10),
		f(a.Q.W), f(a.Q.X), f(a.Q.Y), f(a.Q.Z),
		f(yaw), f(pitch), f(roll),
		strconv.FormatBool(a.Predicted),
		strconv.FormatBool(a.Corrected),
	}), "writing estimate")
}

func (ew *estimateWriter) flush() error {
	ew.w.Flush()
	return errors.Wrap(ew.w.Error(), "flushing estimates")
}

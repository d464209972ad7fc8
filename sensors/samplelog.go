package sensors

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/stratux/goflying-ekf/ekf"
)

// SampleLogHeader names the columns of a sample log: time in seconds, then
// gyro, accelerometer and magnetometer in body axes.
var SampleLogHeader = []string{"t", "gx", "gy", "gz", "ax", "ay", "az", "mx", "my", "mz"}

// SampleLogWriter records measurements as CSV for later replay.
type SampleLogWriter struct {
	w *csv.Writer
}

// NewSampleLogWriter writes the header to w and returns a writer for the rows.
func NewSampleLogWriter(w io.Writer) (*SampleLogWriter, error) {
	lw := &SampleLogWriter{w: csv.NewWriter(w)}
	if err := lw.w.Write(SampleLogHeader); err != nil {
		return nil, errors.Wrap(err, "sensors: writing sample log header")
	}
	return lw, nil
}

// Write appends one measurement taken at t seconds.
func (lw *SampleLogWriter) Write(t float64, m *ekf.Measurement) error {
	row := make([]string, 0, len(SampleLogHeader))
	row = append(row, strconv.FormatFloat(t, 'f', 6, 64))
	for _, v := range [][3]float64{m.Gyro, m.Accel, m.Mag} {
		for _, x := range v {
			row = append(row, strconv.FormatFloat(x, 'g', -1, 64))
		}
	}
	if err := lw.w.Write(row); err != nil {
		return errors.Wrap(err, "sensors: writing sample log")
	}
	return nil
}

// Flush writes any buffered rows.
func (lw *SampleLogWriter) Flush() error {
	lw.w.Flush()
	return errors.Wrap(lw.w.Error(), "sensors: flushing sample log")
}

// SampleLogReader reads a sample log written by SampleLogWriter.
type SampleLogReader struct {
	r    *csv.Reader
	line int
}

// NewSampleLogReader checks the header of r and returns a reader for the rows.
func NewSampleLogReader(r io.Reader) (*SampleLogReader, error) {
	lr := &SampleLogReader{r: csv.NewReader(r)}
	lr.r.FieldsPerRecord = len(SampleLogHeader)
	lr.r.Comment = '#'
	lr.r.TrimLeadingSpace = true

	header, err := lr.r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "sensors: reading sample log header")
	}
	lr.line = 1
	for i, h := range header {
		if h != SampleLogHeader[i] {
			return nil, errors.Errorf("sensors: sample log column %d is %q, expected %q", i+1, h, SampleLogHeader[i])
		}
	}
	return lr, nil
}

// Next returns the next measurement and its time in seconds, or io.EOF after the last row.
func (lr *SampleLogReader) Next() (t float64, m ekf.Measurement, err error) {
	rec, err := lr.r.Read()
	if err == io.EOF {
		return 0, m, io.EOF
	}
	lr.line++
	if err != nil {
		return 0, m, errors.Wrapf(err, "sensors: sample log line %d", lr.line)
	}

	var v [10]float64
	for i, s := range rec {
		if v[i], err = strconv.ParseFloat(s, 64); err != nil {
			return 0, m, errors.Wrapf(err, "sensors: sample log line %d, column %s", lr.line, SampleLogHeader[i])
		}
	}
	m.Gyro = [3]float64{v[1], v[2], v[3]}
	m.Accel = [3]float64{v[4], v[5], v[6]}
	m.Mag = [3]float64{v[7], v[8], v[9]}
	return v[0], m, nil
}

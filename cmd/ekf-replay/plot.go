package main

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/stratux/goflying-ekf/ekf"
)

// track collects Euler angles over time for plotting.
type track struct {
	yaw, pitch, roll plotter.XYs
}

func (tr *track) add(t float64, a ekf.Attitude) {
	yaw, pitch, roll := a.EulerDegrees()
	tr.yaw = append(tr.yaw, plotter.XY{X: t, Y: yaw})
	tr.pitch = append(tr.pitch, plotter.XY{X: t, Y: pitch})
	tr.roll = append(tr.roll, plotter.XY{X: t, Y: roll})
}

// save writes the track as an image; the format follows the extension of fn.
func (tr *track) save(fn string) error {
	p := plot.New()
	p.Title.Text = "Attitude"
	p.X.Label.Text = "t, s"
	p.Y.Label.Text = "°"
	p.Legend.Top = true

	if err := plotutil.AddLines(p, "yaw", tr.yaw, "pitch", tr.pitch, "roll", tr.roll); err != nil {
		return errors.Wrap(err, "adding lines")
	}
	return errors.Wrapf(p.Save(10*vg.Inch, 6*vg.Inch, fn), "saving %s", fn)
}

// Command ekf-replay runs a recorded sample log through the estimator,
// writing the estimates as CSV and optionally plotting or streaming them.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/stratux/goflying-ekf/ekf"
	"github.com/stratux/goflying-ekf/ekfweb"
	"github.com/stratux/goflying-ekf/sensors"
	"github.com/stratux/goflying-ekf/settings"
)

func main() {
	var (
		configFile = flag.String("config", "", "YAML settings file for the filter; defaults if empty")
		outFile    = flag.String("out", "", "CSV file for the estimates; stdout if empty")
		plotFile   = flag.String("plot", "", "Image file for a plot of yaw, pitch and roll")
		wsHost     = flag.String("ws", "", "Host:port of an ekfweb room to stream the estimates to")
		realtime   = flag.Bool("realtime", false, "Pace the replay at the logged sample times")
	)
	flag.Parse()
	defer glog.Flush()
	if flag.NArg() != 1 {
		glog.Fatalf("usage: ekf-replay [flags] samples.csv")
	}

	s := settings.Default()
	if *configFile != "" {
		var err error
		if s, err = settings.Load(*configFile); err != nil {
			glog.Fatalf("%v", err)
		}
	}
	cfg, err := s.EKFConfig()
	if err != nil {
		glog.Fatalf("%v", err)
	}
	est, err := ekf.New(cfg)
	if err != nil {
		glog.Fatalf("%v", err)
	}

	in, err := os.Open(flag.Arg(0))
	if err != nil {
		glog.Fatalf("%v", err)
	}
	defer in.Close()
	lr, err := sensors.NewSampleLogReader(in)
	if err != nil {
		glog.Fatalf("%v", err)
	}

	out := os.Stdout
	if *outFile != "" {
		if out, err = os.Create(*outFile); err != nil {
			glog.Fatalf("%v", err)
		}
		defer out.Close()
	}
	ew, err := newEstimateWriter(out)
	if err != nil {
		glog.Fatalf("%v", err)
	}

	var l *ekfweb.Listener
	if *wsHost != "" {
		if l, err = ekfweb.NewListener(*wsHost); err != nil {
			glog.Fatalf("%v", err)
		}
		defer l.Close()
	}

	var tr track
	t0 := time.Now()
	n, err := replay(est, lr, func(t float64, a ekf.Attitude, m *ekf.Measurement) error {
		if *plotFile != "" {
			tr.add(t, a)
		}
		if l != nil {
			ts := t0.Add(time.Duration(t * float64(time.Second)))
			if *realtime {
				time.Sleep(time.Until(ts))
			}
			if err := l.Send(ekfweb.NewAttitudeData(ts, a, est.Covariance(), m, 0)); err != nil {
				glog.Warningf("%v", err)
			}
		}
		return ew.write(t, a)
	})
	if err != nil {
		glog.Errorf("after %d samples: %v", n, err)
	}
	if err := ew.flush(); err != nil {
		glog.Fatalf("%v", err)
	}

	st := est.Stats()
	glog.Infof("%d samples: %d held, %d without correction, %d accelerometer only, %d resets",
		st.Cycles, st.Held, st.SkippedCorrection, st.AccelOnly, st.Resets)

	if *plotFile != "" {
		if err := tr.save(*plotFile); err != nil {
			glog.Fatalf("%v", err)
		}
	}
}

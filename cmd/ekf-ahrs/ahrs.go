package main

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/stratux/goflying-ekf/ekf"
	"github.com/stratux/goflying-ekf/ekfweb"
	"github.com/stratux/goflying-ekf/sensors"
)

// ahrs feeds IMU readings through the synchronizer into the estimator and
// publishes every estimate.  A single goroutine runs it.
type ahrs struct {
	est       *ekf.Estimator
	sync      *sensors.Synchronizer
	room      *ekfweb.Room             // nil when not serving
	samples   *sensors.SampleLogWriter // nil when not logging
	enableMag bool
	maxErrors int
	cage      chan bool

	t0    time.Time // Origin of sample log times
	stats ekf.Stats
}

func newAHRS(est *ekf.Estimator, o sensors.Orientation, enableMag bool, magTimeout time.Duration, maxErrors int) *ahrs {
	a := &ahrs{
		est:       est,
		sync:      sensors.NewSynchronizer(o),
		enableMag: enableMag,
		maxErrors: maxErrors,
		cage:      make(chan bool, 1),
	}
	a.sync.MaxMagAge = magTimeout
	if !enableMag {
		// Release every gyro/accel sample on its own.
		a.sync.MaxMagAge = time.Nanosecond
	}
	return a
}

// Cage asks the loop to reset the estimator before the next reading.
func (a *ahrs) Cage() {
	select {
	case a.cage <- true:
	default:
	}
}

// run reads imu on every tick until ctx is done or maxErrors consecutive reads fail.
func (a *ahrs) run(ctx context.Context, imu sensors.IMUReader, tick <-chan time.Time) error {
	failures := 0
	fail := func(sensor string, err error) error {
		sensorErrors.WithLabelValues(sensor).Inc()
		failures++
		glog.Warningf("AHRS: %v", err)
		if failures >= a.maxErrors {
			return errors.Wrapf(err, "%d consecutive failed reads", failures)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}

		select {
		case <-a.cage:
			glog.Infof("AHRS: resetting estimator")
			a.est.Reset()
			a.stats = ekf.Stats{}
		default:
		}

		r, err := imu.Read()
		if err != nil {
			if err := fail("read", err); err != nil {
				return err
			}
			continue
		}
		if r.GAError != nil {
			if err := fail("imu", r.GAError); err != nil {
				return err
			}
		} else {
			failures = 0
		}
		if a.enableMag && r.MagError != nil {
			sensorErrors.WithLabelValues("mag").Inc()
			glog.V(1).Infof("AHRS: %v", r.MagError)
		}

		a.sync.Add(r)
		samplesDropped.Set(float64(a.sync.Dropped))
		if m, dt, ok := a.sync.Next(); ok {
			a.cycle(r.T, m, dt)
		}
	}
}

// cycle runs the estimator on one measurement taken at t, dt after the previous one.
func (a *ahrs) cycle(t time.Time, m ekf.Measurement, dt float64) {
	start := time.Now()
	att := a.est.Ingest(m, dt)
	runtime := time.Since(start)

	cur := a.est.Stats()
	observeCycle(att, a.stats, cur)
	cycleRuntime.Observe(runtime.Seconds())
	a.stats = cur

	if glog.V(2) {
		yaw, pitch, roll := att.EulerDegrees()
		glog.Infof("AHRS: %d dt %.4f yaw %.2f pitch %.2f roll %.2f corrected %t", att.Seq, dt, yaw, pitch, roll, att.Corrected)
	}

	if a.samples != nil {
		if a.t0.IsZero() {
			a.t0 = t.Add(-time.Duration(dt * float64(time.Second)))
		}
		if err := a.samples.Write(t.Sub(a.t0).Seconds(), &m); err != nil {
			glog.Warningf("AHRS: %v", err)
		}
	}

	if a.room != nil && a.room.Clients() > 0 {
		if err := a.room.Publish(ekfweb.NewAttitudeData(t, att, a.est.Covariance(), &m, runtime)); err != nil {
			glog.V(1).Infof("AHRS: %v", err)
		}
	}
}

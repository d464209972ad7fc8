package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stratux/goflying-ekf/ekf"
)

// Initialize Prometheus metrics.
var (
	attitudeDegrees = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ekf_attitude_degrees",
			Help: "Latest attitude estimate.",
		},
		[]string{"axis"},
	)

	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekf_cycles_total",
			Help: "Filter cycles by outcome.",
		},
		[]string{"outcome"},
	)

	cycleRuntime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ekf_cycle_runtime_seconds",
		Help:    "Time spent in one predict/correct cycle.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	})

	sensorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekf_sensor_errors_total",
			Help: "Failed sensor reads.",
		},
		[]string{"sensor"},
	)

	sensorRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ekf_sensor_restarts_total",
		Help: "Times the IMU was closed and opened again.",
	})

	samplesDropped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ekf_samples_dropped",
		Help: "Out of order samples discarded since the sensor was opened.",
	})
)

func registerMetrics(reg prometheus.Registerer, clients func() float64) {
	reg.MustRegister(attitudeDegrees, cycles, cycleRuntime, sensorErrors, sensorRestarts, samplesDropped)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ekfweb_clients",
		Help: "Connected websocket clients.",
	}, clients))
}

// observeCycle updates the metrics for one Ingest, given the counters before and after it.
func observeCycle(a ekf.Attitude, prev, cur ekf.Stats) {
	yaw, pitch, roll := a.EulerDegrees()
	attitudeDegrees.WithLabelValues("yaw").Set(yaw)
	attitudeDegrees.WithLabelValues("pitch").Set(pitch)
	attitudeDegrees.WithLabelValues("roll").Set(roll)

	if a.Corrected {
		cycles.WithLabelValues("corrected").Inc()
	}
	cycles.WithLabelValues("held").Add(float64(cur.Held - prev.Held))
	cycles.WithLabelValues("skipped_correction").Add(float64(cur.SkippedCorrection - prev.SkippedCorrection))
	cycles.WithLabelValues("accel_only").Add(float64(cur.AccelOnly - prev.AccelOnly))
	cycles.WithLabelValues("reset").Add(float64(cur.Resets - prev.Resets))
}

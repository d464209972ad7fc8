// Command ekf-ahrs estimates attitude from an ICM-20948 on the I2C bus and
// publishes it over websockets and Prometheus.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stratux/goflying-ekf/ekf"
	"github.com/stratux/goflying-ekf/ekfweb"
	"github.com/stratux/goflying-ekf/sensors"
	"github.com/stratux/goflying-ekf/settings"
)

const retryDelay = 4 * time.Second

func main() {
	configFile := flag.String("config", settings.DefaultFile, "YAML settings file")
	flag.Parse()
	defer glog.Flush()

	s, err := settings.Load(*configFile)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			glog.Fatalf("AHRS: %v", err)
		}
		glog.Infof("AHRS: %s not found, using default settings", *configFile)
	}
	cfg, err := s.EKFConfig()
	if err != nil {
		glog.Fatalf("AHRS: %v", err)
	}
	o, err := s.SensorOrientation()
	if err != nil {
		glog.Fatalf("AHRS: %v", err)
	}
	est, err := ekf.New(cfg)
	if err != nil {
		glog.Fatalf("AHRS: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newAHRS(est, o, s.EnableMag, s.MagTimeout, s.MaxReadErrors)

	// SIGUSR1 re-levels the estimator, like caging an attitude indicator.
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			a.Cage()
		}
	}()

	if s.Listen != "" {
		a.room = ekfweb.NewRoom()
		go a.room.Run(ctx)
		registerMetrics(prometheus.DefaultRegisterer, func() float64 { return float64(a.room.Clients()) })
		go serve(ctx, s.Listen, a.room)
	}

	if s.SampleLog != "" {
		f, err := os.Create(s.SampleLog)
		if err != nil {
			glog.Fatalf("AHRS: %v", err)
		}
		defer f.Close()
		if a.samples, err = sensors.NewSampleLogWriter(f); err != nil {
			glog.Fatalf("AHRS: %v", err)
		}
		defer a.samples.Flush()
		glog.Infof("AHRS: logging samples to %s", s.SampleLog)
	}

	bus := embd.NewI2CBus(s.I2CBus)
	defer bus.Close()

	tick := time.NewTicker(time.Second / time.Duration(s.SampleRate))
	defer tick.Stop()

	for ctx.Err() == nil {
		imu, err := sensors.NewICM20948(bus, s.ICM20948())
		if err != nil {
			glog.Warningf("AHRS: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}
		glog.Infof("AHRS: ICM20948 running at %d Hz", s.SampleRate)

		err = a.run(ctx, imu, tick.C)
		imu.Close()
		a.sync.Reset()
		if ctx.Err() == nil {
			sensorRestarts.Inc()
			glog.Warningf("AHRS: restarting sensor: %v", err)
		}
	}
	glog.Infof("AHRS: shutting down after %d cycles", est.Stats().Cycles)
}

// serve runs the websocket room and metrics endpoint until ctx is done.
func serve(ctx context.Context, addr string, room *ekfweb.Room) {
	mux := http.NewServeMux()
	mux.Handle(ekfweb.Path, room)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	glog.Infof("AHRS: serving %s and /metrics on %s", ekfweb.Path, addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Errorf("AHRS: %v", err)
	}
}

// Command icm20948-check dumps the ICM-20948 configuration, prints live
// readings, and can measure the gyro bias of a stationary sensor.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/stratux/goflying-ekf/ekf"
	"github.com/stratux/goflying-ekf/icm20948"
)

func main() {
	var (
		busNum     = flag.Int("bus", 1, "I2C bus number")
		gyroRange  = flag.Int("gyro", 250, "Gyro range, °/s")
		accelRange = flag.Int("accel", 4, "Accelerometer range, g")
		rate       = flag.Int("rate", 50, "Sample rate, Hz")
		enableMag  = flag.Bool("mag", true, "Read the magnetometer")
		calFile    = flag.String("cal", icm20948.DefaultCalibrationFile, "Calibration file")
		dump       = flag.Bool("dump", false, "Print the registers after starting the sensor")
		count      = flag.Int("n", 0, "Number of one second readings to print; 0 runs until interrupted")
		calibrate  = flag.Duration("calibrate", 0, "Hold the sensor still this long to measure the gyro bias and save it")
	)
	flag.Parse()
	defer glog.Flush()

	bus := embd.NewI2CBus(byte(*busNum))
	defer bus.Close()

	// Calibrate against raw readings.
	useCal := *calFile
	if *calibrate > 0 {
		useCal = ""
	}
	mpu, err := icm20948.NewICM20948(bus, *gyroRange, *accelRange, *rate, *enableMag, useCal)
	if err != nil {
		glog.Fatalf("%v", err)
	}
	defer mpu.CloseMPU()

	if *dump {
		if err := dumpRegisters(os.Stdout, bus); err != nil {
			glog.Fatalf("%v", err)
		}
	}

	if *calibrate > 0 {
		if err := calibrateGyro(mpu, *calibrate, *calFile); err != nil {
			glog.Fatalf("%v", err)
		}
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for i := 1; *count == 0 || i <= *count; i++ {
		<-ticker.C
		d := <-mpu.CAvg
		if d.GAError != nil {
			glog.Warningf("[%04d] %v", i, d.GAError)
		} else {
			glog.Infof("[%04d] Gyro: X=%7.2f Y=%7.2f Z=%7.2f °/s | Accel: X=%6.3f Y=%6.3f Z=%6.3f g | %5.1f °C | N=%d",
				i, d.G1/ekf.Deg, d.G2/ekf.Deg, d.G3/ekf.Deg, d.A1, d.A2, d.A3, d.Temp, d.N)
		}
		if !*enableMag {
			continue
		}
		if d.MagError != nil {
			glog.Warningf("[%04d] %v", i, d.MagError)
		} else {
			glog.Infof("[%04d] Mag: X=%7.2f Y=%7.2f Z=%7.2f µT | N=%d", i, d.M1, d.M2, d.M3, d.NM)
			if d.M1 == 0 && d.M2 == 0 && d.M3 == 0 {
				glog.Warningf("[%04d] magnetometer returns all zeros", i)
			}
		}
	}
}

// calibrateGyro averages the gyro over d and stores the result as the bias in calFile,
// keeping the rest of any calibration already there.
func calibrateGyro(mpu *icm20948.ICM20948, d time.Duration, calFile string) error {
	glog.Infof("Keep the sensor still for %v", d)
	<-mpu.CAvg
	time.Sleep(d)
	avg := <-mpu.CAvg
	if avg.GAError != nil {
		return avg.GAError
	}

	cal, err := icm20948.LoadCalibration(calFile)
	if err != nil {
		glog.Infof("Starting a new calibration: %v", err)
	}
	cal.G01, cal.G02, cal.G03 = avg.G1, avg.G2, avg.G3
	glog.Infof("Gyro bias from %d samples: %.4f %.4f %.4f °/s", avg.N, avg.G1/ekf.Deg, avg.G2/ekf.Deg, avg.G3/ekf.Deg)
	return cal.Save(calFile)
}

// Package icm20948 drives an InvenSense ICM-20948 9DoF IMU over I2C, reading
// the AK09916 magnetometer through the chip's own I2C master.
package icm20948

// Register sequence follows the InvenSense DMP drivers and
// https://github.com/brianc118/ICM20948/blob/master/ICM20948.cpp

import (
	"math"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/kidoman/embd"
	"github.com/pkg/errors"
)

const (
	scaleMagAK09916 = 4912.0 / 32752 // µT per LSB, 16-bit output
	baseRate        = 1125           // Hz, internal sample rate before the divider
	maxMagRate      = 100            // Hz, fastest AK09916 continuous mode
	tempScale       = 333.87         // LSB per °C
	tempOffset      = 21.0           // °C at zero reading
)

// sleep is replaced in tests to skip the settling delays.
var sleep = time.Sleep

// MPUData contains all the values measured by an ICM20948, in body units:
// gyro rad/s, accel g, magnetometer µT, temperature °C.
type MPUData struct {
	G1, G2, G3        float64
	A1, A2, A3        float64
	M1, M2, M3        float64
	Temp              float64
	GAError, MagError error
	N, NM             int // Number of gyro/accel and mag readings averaged
	T, TM             time.Time
	DT, DTM           time.Duration
}

/*
ICM20948 represents an InvenSense ICM20948 9DoF chip.
All communication is via channels.
*/
type ICM20948 struct {
	bus                   embd.I2CBus
	scaleGyro, scaleAccel float64 // rad/s and g per LSB
	sampleRate            int
	enableMag             bool
	cal                   Calibration
	C                     <-chan *MPUData // Current instantaneous sensor values
	CAvg                  <-chan *MPUData // Average sensor values (since CAvg last read)
	cClose                chan struct{}   // Turn off MPU polling
	closeOnce             sync.Once
	done                  chan struct{}
}

/*
NewICM20948 creates a new ICM20948 object according to the supplied parameters.
sensitivityGyro is in °/s (250, 500, 1000, 2000), sensitivityAccel in g
(2, 4, 8, 16), sampleRate in Hz.  The calibration in calFile is applied when
it can be read; an empty name skips it.
*/
func NewICM20948(bus embd.I2CBus, sensitivityGyro, sensitivityAccel, sampleRate int, enableMag bool, calFile string) (*ICM20948, error) {
	if sampleRate < 5 || sampleRate > baseRate {
		return nil, errors.Errorf("ICM20948: sample rate %d Hz out of range", sampleRate)
	}
	mpu := &ICM20948{
		bus:        bus,
		sampleRate: sampleRate,
		enableMag:  enableMag,
		cal:        DefaultCalibration(),
	}
	if calFile != "" {
		if cal, err := LoadCalibration(calFile); err != nil {
			glog.Warningf("ICM20948: using no calibration: %v", err)
		} else {
			mpu.cal = cal
		}
	}

	if err := mpu.setRegBank(0); err != nil {
		return nil, err
	}
	if who, err := mpu.i2cRead(ICMREG_WHO_AM_I); err != nil {
		return nil, err
	} else if who != ICM20948_WHOAMI {
		return nil, errors.Errorf("ICM20948: WHO_AM_I is 0x%02X, expected 0x%02X", who, ICM20948_WHOAMI)
	}

	if err := mpu.i2cWrite(ICMREG_PWR_MGMT_1, BIT_H_RESET); err != nil {
		return nil, errors.Wrap(err, "ICM20948: resetting")
	}
	sleep(100 * time.Millisecond)
	// CLKSEL should be 1-5 for full gyro performance.
	if err := mpu.i2cWrite(ICMREG_PWR_MGMT_1, BIT_CLKSEL_AUTO); err != nil {
		return nil, errors.Wrap(err, "ICM20948: waking")
	}
	// Gyro and accel must be powered before the I2C master will run.
	if err := mpu.i2cWrite(ICMREG_PWR_MGMT_2, 0x00); err != nil {
		return nil, errors.Wrap(err, "ICM20948: enabling gyro and accel")
	}
	sleep(50 * time.Millisecond)

	if err := mpu.SetGyroSensitivity(sensitivityGyro); err != nil {
		return nil, err
	}
	if err := mpu.SetAccelSensitivity(sensitivityAccel); err != nil {
		return nil, err
	}

	// Low pass filters at half the sample rate.
	if err := mpu.SetGyroLPF(sampleRate / 2); err != nil {
		return nil, err
	}
	if err := mpu.SetAccelLPF(sampleRate / 2); err != nil {
		return nil, err
	}
	if err := mpu.SetSampleRate(sampleRate); err != nil {
		return nil, err
	}

	if enableMag {
		if err := mpu.initMagnetometer(); err != nil {
			return nil, err
		}
	}

	cC := make(chan *MPUData)
	cAvg := make(chan *MPUData)
	mpu.C, mpu.CAvg = cC, cAvg
	mpu.cClose = make(chan struct{})
	mpu.done = make(chan struct{})
	go mpu.readSensors(cC, cAvg)

	// Let the filters settle, then drop what was averaged meanwhile.
	sleep(500 * time.Millisecond)
	<-mpu.CAvg

	glog.Infof("ICM20948: running at %d Hz, gyro ±%d°/s, accel ±%dg, magnetometer %v",
		sampleRate, sensitivityGyro, sensitivityAccel, enableMag)
	return mpu, nil
}

// initMagnetometer starts the AK09916 in continuous mode and points I2C
// slave 0 at its data registers, so that each master cycle copies
// ST1, the three axes and ST2 into EXT_SLV_SENS_DATA.
func (mpu *ICM20948) initMagnetometer() error {
	// Bypass mode would route the auxiliary bus to the pins instead of the master.
	if err := mpu.i2cWrite(ICMREG_INT_PIN_CFG, 0x00); err != nil {
		return errors.Wrap(err, "ICM20948: disabling I2C bypass")
	}
	lp, err := mpu.i2cRead(ICMREG_LP_CONFIG)
	if err != nil {
		return err
	}
	if lp&BIT_I2C_MST_CYCLE != 0 {
		if err := mpu.i2cWrite(ICMREG_LP_CONFIG, lp&^BIT_I2C_MST_CYCLE); err != nil {
			return err
		}
	}

	if err := mpu.setRegBank(3); err != nil {
		return err
	}
	if err := mpu.i2cWrite(ICMREG_I2C_MST_ODR_CONFIG, 0x04); err != nil { // 1.1kHz/2^4, about 69 Hz
		return errors.Wrap(err, "ICM20948: setting I2C master rate")
	}
	if err := mpu.i2cWrite(ICMREG_I2C_MST_CTRL, BIT_I2C_MST_400K|BIT_I2C_MST_P_NSR); err != nil {
		return errors.Wrap(err, "ICM20948: setting I2C master clock")
	}
	if err := mpu.setRegBank(0); err != nil {
		return err
	}
	if err := mpu.i2cWrite(ICMREG_USER_CTRL, BIT_I2C_MST_EN); err != nil {
		return errors.Wrap(err, "ICM20948: enabling I2C master")
	}
	sleep(100 * time.Millisecond)

	wia, err := mpu.magRead(AK09916_WIA1, 2)
	if err != nil {
		return err
	}
	if wia[0] != AK09916_WIA1_VALUE || wia[1] != AK09916_WIA2_VALUE {
		return errors.Errorf("ICM20948: AK09916 not responding, WIA 0x%02X 0x%02X", wia[0], wia[1])
	}

	if err := mpu.magWrite(AK09916_CNTL3, AK09916_SRST); err != nil {
		return errors.Wrap(err, "ICM20948: resetting AK09916")
	}
	sleep(100 * time.Millisecond)

	var mode byte
	switch {
	case mpu.sampleRate >= 100:
		mode = AK09916_MODE_CONT4
	case mpu.sampleRate >= 50:
		mode = AK09916_MODE_CONT3
	case mpu.sampleRate >= 20:
		mode = AK09916_MODE_CONT2
	default:
		mode = AK09916_MODE_CONT1
	}
	if err := mpu.magWrite(AK09916_CNTL2, mode); err != nil {
		return errors.Wrap(err, "ICM20948: setting AK09916 mode")
	}
	sleep(20 * time.Millisecond)
	if got, err := mpu.magRead(AK09916_CNTL2, 1); err != nil {
		return err
	} else if got[0] != mode {
		glog.Warningf("ICM20948: AK09916 CNTL2 reads 0x%02X, wrote 0x%02X", got[0], mode)
	}

	// ST1 through ST2: reading ST2 releases the data registers for the next sample.
	if err := mpu.magSlave0(AK09916_ST1, AK09916_ST2-AK09916_ST1+1); err != nil {
		return err
	}
	glog.Infof("ICM20948: AK09916 in continuous mode 0x%02X", mode)
	return nil
}

// magWrite writes one AK09916 register with a single slave 4 transaction.
func (mpu *ICM20948) magWrite(reg, value byte) error {
	if err := mpu.setRegBank(3); err != nil {
		return err
	}
	defer mpu.setRegBank(0)
	for _, w := range [][2]byte{
		{ICMREG_I2C_SLV4_ADDR, AK09916_I2C_ADDR},
		{ICMREG_I2C_SLV4_REG, reg},
		{ICMREG_I2C_SLV4_DO, value},
		{ICMREG_I2C_SLV4_CTRL, BIT_SLAVE_EN},
	} {
		if err := mpu.i2cWrite(w[0], w[1]); err != nil {
			return err
		}
	}
	sleep(10 * time.Millisecond)
	return nil
}

// magRead reads n AK09916 registers from reg through slave 0.
func (mpu *ICM20948) magRead(reg byte, n int) ([]byte, error) {
	if err := mpu.magSlave0(reg, n); err != nil {
		return nil, err
	}
	sleep(20 * time.Millisecond)
	buf := make([]byte, n)
	if err := mpu.bus.ReadFromReg(MPU_ADDRESS, ICMREG_EXT_SLV_SENS_DATA_00, buf); err != nil {
		return nil, errors.Wrap(err, "ICM20948: reading external sensor data")
	}
	return buf, nil
}

func (mpu *ICM20948) magSlave0(reg byte, n int) error {
	if err := mpu.setRegBank(3); err != nil {
		return err
	}
	defer mpu.setRegBank(0)
	for _, w := range [][2]byte{
		{ICMREG_I2C_SLV0_ADDR, BIT_I2C_READ | AK09916_I2C_ADDR},
		{ICMREG_I2C_SLV0_REG, reg},
		{ICMREG_I2C_SLV0_CTRL, BIT_SLAVE_EN | byte(n)},
	} {
		if err := mpu.i2cWrite(w[0], w[1]); err != nil {
			return err
		}
	}
	return nil
}

// readSensors polls the gyro, accelerometer and magnetometer sensors as well as the die temperature.
// Communication is via channels.
func (mpu *ICM20948) readSensors(cC, cAvg chan *MPUData) {
	defer close(mpu.done)
	defer close(cC)
	defer close(cAvg)

	var (
		g, a, m, avg, ava, avm [3]float64
		tmp, avtmp             float64
		n, nm                  int
		gaError, magError      error
		t0, t, t0m, tm         time.Time
		curdata                *MPUData
		notReady               int
	)

	magRate := mpu.sampleRate
	if magRate > maxMagRate {
		magRate = maxMagRate
	}
	clock := time.NewTicker(time.Second / time.Duration(mpu.sampleRate))
	defer clock.Stop()
	clockMag := time.NewTicker(time.Second / time.Duration(magRate))
	defer clockMag.Stop()
	t0 = time.Now()
	t0m = t0

	makeMPUData := func() *MPUData {
		gg, aa, mm := mpu.cal.gyro(g), mpu.cal.accel(a), mpu.cal.mag(m)
		d := MPUData{
			G1: gg[0], G2: gg[1], G3: gg[2],
			A1: aa[0], A2: aa[1], A3: aa[2],
			M1: mm[0], M2: mm[1], M3: mm[2],
			Temp:    tmp,
			GAError: gaError, MagError: magError,
			N: 1, NM: 1,
			T: t, TM: tm,
		}
		if gaError != nil {
			d.N = 0
		}
		if magError != nil || !mpu.enableMag {
			d.NM = 0
		}
		return &d
	}

	makeAvgMPUData := func() *MPUData {
		d := MPUData{}
		if n > 0 {
			f := 1 / float64(n)
			gg := mpu.cal.gyro([3]float64{avg[0] * f, avg[1] * f, avg[2] * f})
			aa := mpu.cal.accel([3]float64{ava[0] * f, ava[1] * f, ava[2] * f})
			d.G1, d.G2, d.G3 = gg[0], gg[1], gg[2]
			d.A1, d.A2, d.A3 = aa[0], aa[1], aa[2]
			d.Temp = avtmp * f
			d.N = n
			d.T = t
			d.DT = t.Sub(t0)
		} else {
			d.GAError = errors.New("ICM20948: no new accel/gyro values")
		}
		if nm > 0 {
			f := 1 / float64(nm)
			mm := mpu.cal.mag([3]float64{avm[0] * f, avm[1] * f, avm[2] * f})
			d.M1, d.M2, d.M3 = mm[0], mm[1], mm[2]
			d.NM = nm
			d.TM = tm
			d.DTM = tm.Sub(t0m)
		} else {
			d.MagError = errors.New("ICM20948: no new magnetometer values")
		}
		return &d
	}

	for {
		// Nothing to hand out on C until the first reading.
		var cOut chan *MPUData
		if curdata != nil {
			cOut = cC
		}

		select {
		case t = <-clock.C:
			if g, a, tmp, gaError = mpu.readGyroAccel(); gaError != nil {
				glog.Warningf("ICM20948: %v", gaError)
				continue
			}
			curdata = makeMPUData()
			for i := 0; i < 3; i++ {
				avg[i] += g[i]
				ava[i] += a[i]
			}
			avtmp += tmp
			n++
		case tick := <-clockMag.C:
			if !mpu.enableMag {
				continue
			}
			var ready bool
			if m, ready, magError = mpu.readMag(m); magError != nil {
				glog.Warningf("ICM20948: %v", magError)
				continue
			}
			if !ready {
				notReady++
				if glog.V(2) || notReady%100 == 1 {
					glog.Infof("ICM20948: magnetometer data not ready (%d times)", notReady)
				}
				continue
			}
			tm = tick
			for i := 0; i < 3; i++ {
				avm[i] += m[i]
			}
			nm++
		case cOut <- curdata:
		case cAvg <- makeAvgMPUData():
			avg, ava, avm = [3]float64{}, [3]float64{}, [3]float64{}
			avtmp = 0
			n, nm = 0, 0
			t0, t0m = t, tm
		case <-mpu.cClose:
			return
		}
	}
}

// readGyroAccel reads accel, gyro and temperature in one burst and converts them.
func (mpu *ICM20948) readGyroAccel() (g, a [3]float64, temp float64, err error) {
	buf := make([]byte, 14)
	if err = mpu.bus.ReadFromReg(MPU_ADDRESS, ICMREG_ACCEL_XOUT_H, buf); err != nil {
		err = errors.Wrap(err, "reading gyro/accel")
		return
	}
	for i := 0; i < 3; i++ {
		a[i] = float64(bigEndian(buf[2*i:])) * mpu.scaleAccel
		g[i] = float64(bigEndian(buf[6+2*i:])) * mpu.scaleGyro
	}
	temp = float64(bigEndian(buf[12:]))/tempScale + tempOffset
	return
}

// readMag reads the magnetometer block copied by slave 0.  The previous
// value is returned with ready false if no new sample was available.
func (mpu *ICM20948) readMag(prev [3]float64) (m [3]float64, ready bool, err error) {
	buf := make([]byte, AK09916_ST2-AK09916_ST1+1)
	if err = mpu.bus.ReadFromReg(MPU_ADDRESS, ICMREG_EXT_SLV_SENS_DATA_00, buf); err != nil {
		return prev, false, errors.Wrap(err, "reading magnetometer")
	}
	if buf[0]&AK09916_ST1_DRDY == 0 {
		return prev, false, nil
	}
	if buf[len(buf)-1]&AK09916_ST2_HOFL != 0 {
		return prev, false, errors.New("magnetometer overflow")
	}
	// AK09916 output is little-endian, and its y and z axes point opposite
	// to the gyro and accelerometer ones.
	d := buf[AK09916_HXL-AK09916_ST1:]
	m[0] = float64(littleEndian(d[0:])) * scaleMagAK09916
	m[1] = -float64(littleEndian(d[2:])) * scaleMagAK09916
	m[2] = -float64(littleEndian(d[4:])) * scaleMagAK09916
	return m, true, nil
}

func bigEndian(b []byte) int16 {
	return int16(uint16(b[0])<<8 | uint16(b[1]))
}

func littleEndian(b []byte) int16 {
	return int16(uint16(b[1])<<8 | uint16(b[0]))
}

// CloseMPU stops the driver from reading the MPU and waits for the polling
// goroutine to finish.  C and CAvg are closed afterwards.
func (mpu *ICM20948) CloseMPU() {
	mpu.closeOnce.Do(func() { close(mpu.cClose) })
	<-mpu.done
}

// SampleRate returns the current sample rate of the ICM20948, in Hz.
func (mpu *ICM20948) SampleRate() int {
	return mpu.sampleRate
}

// MagEnabled returns whether or not the magnetometer is being read.
func (mpu *ICM20948) MagEnabled() bool {
	return mpu.enableMag
}

// Calibration returns the calibration being applied.
func (mpu *ICM20948) Calibration() Calibration {
	return mpu.cal
}

// SetSampleRate sets the gyro and accel output data rate, in Hz.
func (mpu *ICM20948) SetSampleRate(rate int) error {
	if err := mpu.setRegBank(2); err != nil {
		return err
	}
	defer mpu.setRegBank(0)

	div := baseRate/rate - 1
	if err := mpu.i2cWrite(ICMREG_GYRO_SMPLRT_DIV, byte(div)); err != nil {
		return errors.Wrap(err, "ICM20948: setting gyro sample rate")
	}
	if err := mpu.i2cWrite(ICMREG_ACCEL_SMPLRT_DIV_1, byte(div>>8)); err != nil {
		return errors.Wrap(err, "ICM20948: setting accel sample rate")
	}
	if err := mpu.i2cWrite(ICMREG_ACCEL_SMPLRT_DIV_2, byte(div)); err != nil {
		return errors.Wrap(err, "ICM20948: setting accel sample rate")
	}
	return nil
}

// SetGyroLPF sets the low pass filter for the gyro to the nearest setting at or below rate Hz.
func (mpu *ICM20948) SetGyroLPF(rate int) error {
	var r byte
	switch {
	case rate >= 197:
		r = BITS_DLPF_GYRO_CFG_197HZ
	case rate >= 152:
		r = BITS_DLPF_GYRO_CFG_152HZ
	case rate >= 120:
		r = BITS_DLPF_GYRO_CFG_120HZ
	case rate >= 51:
		r = BITS_DLPF_GYRO_CFG_51HZ
	case rate >= 24:
		r = BITS_DLPF_GYRO_CFG_24HZ
	case rate >= 12:
		r = BITS_DLPF_GYRO_CFG_12HZ
	default:
		r = BITS_DLPF_GYRO_CFG_6HZ
	}
	return mpu.updateConfig(ICMREG_GYRO_CONFIG_1, BITS_DLPF_MASK|BIT_FCHOICE, r|BIT_FCHOICE)
}

// SetAccelLPF sets the low pass filter for the accelerometer to the nearest setting at or below rate Hz.
func (mpu *ICM20948) SetAccelLPF(rate int) error {
	var r byte
	switch {
	case rate >= 246:
		r = BITS_DLPF_ACCEL_CFG_246HZ
	case rate >= 111:
		r = BITS_DLPF_ACCEL_CFG_111HZ
	case rate >= 50:
		r = BITS_DLPF_ACCEL_CFG_50HZ
	case rate >= 24:
		r = BITS_DLPF_ACCEL_CFG_24HZ
	case rate >= 12:
		r = BITS_DLPF_ACCEL_CFG_12HZ
	default:
		r = BITS_DLPF_ACCEL_CFG_5HZ
	}
	return mpu.updateConfig(ICMREG_ACCEL_CONFIG, BITS_DLPF_MASK|BIT_FCHOICE, r|BIT_FCHOICE)
}

// SetGyroSensitivity sets the gyro full scale; it must be one of the following values:
// 250, 500, 1000, 2000 (all in deg/s).
func (mpu *ICM20948) SetGyroSensitivity(sensitivityGyro int) error {
	var bits byte
	switch sensitivityGyro {
	case 2000:
		bits = BITS_FS_2000DPS
	case 1000:
		bits = BITS_FS_1000DPS
	case 500:
		bits = BITS_FS_500DPS
	case 250:
		bits = BITS_FS_250DPS
	default:
		return errors.Errorf("ICM20948: %d is not a valid gyro sensitivity", sensitivityGyro)
	}
	if err := mpu.updateConfig(ICMREG_GYRO_CONFIG_1, BITS_FS_MASK, bits); err != nil {
		return err
	}
	mpu.scaleGyro = float64(sensitivityGyro) / float64(math.MaxInt16) * math.Pi / 180
	return nil
}

// SetAccelSensitivity sets the accelerometer full scale; it must be one of the following values:
// 2, 4, 8, 16, all in G (gravity).
func (mpu *ICM20948) SetAccelSensitivity(sensitivityAccel int) error {
	var bits byte
	switch sensitivityAccel {
	case 16:
		bits = BITS_FS_16G
	case 8:
		bits = BITS_FS_8G
	case 4:
		bits = BITS_FS_4G
	case 2:
		bits = BITS_FS_2G
	default:
		return errors.Errorf("ICM20948: %d is not a valid accel sensitivity", sensitivityAccel)
	}
	if err := mpu.updateConfig(ICMREG_ACCEL_CONFIG, BITS_FS_MASK, bits); err != nil {
		return err
	}
	mpu.scaleAccel = float64(sensitivityAccel) / float64(math.MaxInt16)
	return nil
}

// updateConfig replaces the masked bits of a bank 2 configuration register.
func (mpu *ICM20948) updateConfig(reg, mask, bits byte) error {
	if err := mpu.setRegBank(2); err != nil {
		return err
	}
	defer mpu.setRegBank(0)

	cfg, err := mpu.i2cRead(reg)
	if err != nil {
		return err
	}
	return mpu.i2cWrite(reg, cfg&^mask|bits&mask)
}

func (mpu *ICM20948) setRegBank(bank byte) error {
	return mpu.i2cWrite(ICMREG_BANK_SEL, bank<<4)
}

func (mpu *ICM20948) i2cWrite(register, value byte) error {
	if err := mpu.bus.WriteByteToReg(MPU_ADDRESS, register, value); err != nil {
		return errors.Wrapf(err, "ICM20948: writing 0x%02X to 0x%02X", value, register)
	}
	return nil
}

func (mpu *ICM20948) i2cRead(register byte) (byte, error) {
	v, err := mpu.bus.ReadByteFromReg(MPU_ADDRESS, register)
	if err != nil {
		return 0, errors.Wrapf(err, "ICM20948: reading 0x%02X", register)
	}
	return v, nil
}

package icm20948

import (
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kidoman/embd"
	"github.com/pkg/errors"
)

// fakeBus emulates the ICM-20948 register banks and enough of its I2C
// master to reach an AK09916 behind it.  Methods the driver does not use
// are left to the embedded nil interface.
type fakeBus struct {
	embd.I2CBus

	mu   sync.Mutex
	bank byte
	regs [4][128]byte
	ak   [0x40]byte
}

func newFakeBus() *fakeBus {
	b := &fakeBus{}
	b.regs[0][ICMREG_WHO_AM_I] = ICM20948_WHOAMI
	b.regs[0][ICMREG_LP_CONFIG] = BIT_I2C_MST_CYCLE
	b.ak[AK09916_WIA1] = AK09916_WIA1_VALUE
	b.ak[AK09916_WIA2] = AK09916_WIA2_VALUE
	b.ak[AK09916_ST1] = AK09916_ST1_DRDY
	return b
}

func (b *fakeBus) WriteByteToReg(addr, reg, value byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if addr != MPU_ADDRESS {
		return errors.Errorf("no device at 0x%02X", addr)
	}
	if reg == ICMREG_BANK_SEL {
		b.bank = value >> 4
		return nil
	}
	b.regs[b.bank][reg] = value
	if b.bank == 3 && reg == ICMREG_I2C_SLV4_CTRL && value&BIT_SLAVE_EN != 0 {
		b.ak[b.regs[3][ICMREG_I2C_SLV4_REG]] = b.regs[3][ICMREG_I2C_SLV4_DO]
	}
	return nil
}

func (b *fakeBus) ReadByteFromReg(addr, reg byte) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if addr != MPU_ADDRESS {
		return 0, errors.Errorf("no device at 0x%02X", addr)
	}
	return b.regs[b.bank][reg], nil
}

func (b *fakeBus) ReadFromReg(addr, reg byte, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if addr != MPU_ADDRESS {
		return errors.Errorf("no device at 0x%02X", addr)
	}
	if b.bank == 0 && reg == ICMREG_EXT_SLV_SENS_DATA_00 {
		copy(value, b.ak[b.regs[3][ICMREG_I2C_SLV0_REG]:])
		return nil
	}
	copy(value, b.regs[b.bank][reg:])
	return nil
}

func (b *fakeBus) setWord(reg byte, v int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[0][reg] = byte(uint16(v) >> 8)
	b.regs[0][reg+1] = byte(v)
}

func (b *fakeBus) setMag(x, y, z int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range []int16{x, y, z} {
		b.ak[AK09916_HXL+2*i] = byte(v)
		b.ak[AK09916_HXL+2*i+1] = byte(uint16(v) >> 8)
	}
}

func noSleep(t *testing.T) {
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = time.Sleep })
}

// waitAvg reads averages until one has both gyro/accel and magnetometer values.
func waitAvg(t *testing.T, mpu *ICM20948) *MPUData {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(30 * time.Millisecond)
		if d := <-mpu.CAvg; d.N > 0 && d.NM > 0 {
			return d
		}
	}
	t.Fatal("no complete reading from the driver")
	return nil
}

func close9(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewICM20948Configures(t *testing.T) {
	noSleep(t)
	bus := newFakeBus()
	mpu, err := NewICM20948(bus, 250, 4, 100, true, "")
	if err != nil {
		t.Fatal(err)
	}
	defer mpu.CloseMPU()

	bus.mu.Lock()
	defer bus.mu.Unlock()
	checks := []struct {
		name      string
		got, want byte
	}{
		{"gyro config", bus.regs[2][ICMREG_GYRO_CONFIG_1], BITS_FS_250DPS | BITS_DLPF_GYRO_CFG_24HZ | BIT_FCHOICE},
		{"accel config", bus.regs[2][ICMREG_ACCEL_CONFIG], BITS_FS_4G | BITS_DLPF_ACCEL_CFG_50HZ | BIT_FCHOICE},
		{"gyro divider", bus.regs[2][ICMREG_GYRO_SMPLRT_DIV], 10},
		{"accel divider", bus.regs[2][ICMREG_ACCEL_SMPLRT_DIV_2], 10},
		{"I2C master", bus.regs[0][ICMREG_USER_CTRL], BIT_I2C_MST_EN},
		{"duty cycle", bus.regs[0][ICMREG_LP_CONFIG], 0},
		{"slave 0 register", bus.regs[3][ICMREG_I2C_SLV0_REG], AK09916_ST1},
		{"slave 0 control", bus.regs[3][ICMREG_I2C_SLV0_CTRL], BIT_SLAVE_EN | 9},
		{"magnetometer mode", bus.ak[AK09916_CNTL2], AK09916_MODE_CONT4},
		{"bank", bus.bank, 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: 0x%02X, want 0x%02X", c.name, c.got, c.want)
		}
	}
}

func TestReadSensorsConverts(t *testing.T) {
	noSleep(t)
	bus := newFakeBus()
	bus.setWord(ICMREG_ACCEL_XOUT_H, 0)
	bus.setWord(ICMREG_ACCEL_XOUT_H+2, -8192)
	bus.setWord(ICMREG_ACCEL_XOUT_H+4, 8192)
	bus.setWord(ICMREG_GYRO_XOUT_H, 131)
	bus.setWord(ICMREG_GYRO_XOUT_H+2, 0)
	bus.setWord(ICMREG_GYRO_XOUT_H+4, -262)
	bus.setWord(ICMREG_TEMP_OUT_H, 0)
	bus.setMag(100, -200, 300)

	mpu, err := NewICM20948(bus, 250, 4, 100, true, "")
	if err != nil {
		t.Fatal(err)
	}
	defer mpu.CloseMPU()

	d := waitAvg(t, mpu)
	ga := 4.0 / math.MaxInt16
	gg := 250.0 / math.MaxInt16 * math.Pi / 180
	want := []struct {
		name      string
		got, want float64
	}{
		{"A1", d.A1, 0}, {"A2", d.A2, -8192 * ga}, {"A3", d.A3, 8192 * ga},
		{"G1", d.G1, 131 * gg}, {"G2", d.G2, 0}, {"G3", d.G3, -262 * gg},
		{"M1", d.M1, 100 * scaleMagAK09916}, {"M2", d.M2, 200 * scaleMagAK09916}, {"M3", d.M3, -300 * scaleMagAK09916},
		{"Temp", d.Temp, tempOffset},
	}
	for _, w := range want {
		if !close9(w.got, w.want) {
			t.Errorf("%s = %g, want %g", w.name, w.got, w.want)
		}
	}
	if d.GAError != nil || d.MagError != nil {
		t.Errorf("unexpected errors %v, %v", d.GAError, d.MagError)
	}

	c := <-mpu.C
	if c == nil || !close9(c.G1, 131*gg) {
		t.Errorf("instantaneous reading %+v", c)
	}
}

func TestMagnetometerNotReady(t *testing.T) {
	noSleep(t)
	bus := newFakeBus()
	bus.ak[AK09916_ST1] = 0

	mpu, err := NewICM20948(bus, 500, 8, 50, true, "")
	if err != nil {
		t.Fatal(err)
	}
	defer mpu.CloseMPU()

	time.Sleep(100 * time.Millisecond)
	d := <-mpu.CAvg
	if d.N == 0 || d.NM != 0 {
		t.Errorf("expected gyro/accel values and no magnetometer values, got N %d NM %d", d.N, d.NM)
	}
	if d.MagError == nil || !strings.Contains(d.MagError.Error(), "magnetometer") {
		t.Errorf("expected a magnetometer error, got %v", d.MagError)
	}
	if c := <-mpu.C; c == nil || !c.TM.IsZero() {
		t.Errorf("magnetometer time should stay unset until a sample is read, got %+v", c)
	}
}

func TestCalibrationApplied(t *testing.T) {
	noSleep(t)
	fn := filepath.Join(t.TempDir(), "cal.json")
	cal := DefaultCalibration()
	cal.G03 = 0.01
	cal.A01 = 0.02
	cal.M01 = 5
	cal.Ms22 = 2
	if err := cal.Save(fn); err != nil {
		t.Fatal(err)
	}

	bus := newFakeBus()
	bus.setMag(100, -200, 300)
	mpu, err := NewICM20948(bus, 250, 2, 100, true, fn)
	if err != nil {
		t.Fatal(err)
	}
	defer mpu.CloseMPU()
	if mpu.Calibration() != cal {
		t.Errorf("calibration %+v not loaded", mpu.Calibration())
	}

	d := waitAvg(t, mpu)
	if !close9(d.G3, -0.01) || !close9(d.A1, -0.02) {
		t.Errorf("biases not removed: G3 %g A1 %g", d.G3, d.A1)
	}
	if !close9(d.M1, 100*scaleMagAK09916-5) || !close9(d.M2, 400*scaleMagAK09916) {
		t.Errorf("magnetometer calibration not applied: %g %g", d.M1, d.M2)
	}
}

func TestLoadCalibrationMissing(t *testing.T) {
	c, err := LoadCalibration(filepath.Join(t.TempDir(), "none.json"))
	if err == nil {
		t.Error("expected an error for a missing file")
	}
	if c != DefaultCalibration() {
		t.Errorf("expected the default calibration, got %+v", c)
	}
}

func TestNewICM20948Errors(t *testing.T) {
	noSleep(t)
	bus := newFakeBus()
	bus.regs[0][ICMREG_WHO_AM_I] = 0x71
	if _, err := NewICM20948(bus, 250, 4, 100, false, ""); err == nil || !strings.Contains(err.Error(), "WHO_AM_I") {
		t.Errorf("expected a WHO_AM_I error, got %v", err)
	}

	bus = newFakeBus()
	if _, err := NewICM20948(bus, 300, 4, 100, false, ""); err == nil {
		t.Error("expected an error for a bad gyro sensitivity")
	}
	if _, err := NewICM20948(bus, 250, 4, 2000, false, ""); err == nil {
		t.Error("expected an error for a bad sample rate")
	}

	bus = newFakeBus()
	bus.ak[AK09916_WIA1] = 0
	if _, err := NewICM20948(bus, 250, 4, 100, true, ""); err == nil || !strings.Contains(err.Error(), "AK09916") {
		t.Errorf("expected a magnetometer error, got %v", err)
	}
}

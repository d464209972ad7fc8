package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/kidoman/embd"
	"github.com/pkg/errors"

	"github.com/stratux/goflying-ekf/icm20948"
)

type register struct {
	name string
	reg  byte
	note func(byte) string
}

var banks = []struct {
	bank byte
	regs []register
}{
	{0, []register{
		{"WHO_AM_I", icm20948.ICMREG_WHO_AM_I, func(v byte) string {
			return fmt.Sprintf("expect 0x%02X", icm20948.ICM20948_WHOAMI)
		}},
		{"USER_CTRL", icm20948.ICMREG_USER_CTRL, func(v byte) string {
			return fmt.Sprintf("I2C_MST_EN=%t", v&icm20948.BIT_I2C_MST_EN != 0)
		}},
		{"LP_CONFIG", icm20948.ICMREG_LP_CONFIG, func(v byte) string {
			return fmt.Sprintf("I2C_MST_CYCLE=%t", v&icm20948.BIT_I2C_MST_CYCLE != 0)
		}},
		{"PWR_MGMT_1", icm20948.ICMREG_PWR_MGMT_1, nil},
		{"PWR_MGMT_2", icm20948.ICMREG_PWR_MGMT_2, nil},
		{"INT_PIN_CFG", icm20948.ICMREG_INT_PIN_CFG, func(v byte) string {
			return fmt.Sprintf("BYPASS=%t", v&icm20948.BIT_BYPASS_EN != 0)
		}},
		{"I2C_MST_STATUS", icm20948.ICMREG_I2C_MST_STATUS, decodeStatus},
	}},
	{2, []register{
		{"GYRO_SMPLRT_DIV", icm20948.ICMREG_GYRO_SMPLRT_DIV, nil},
		{"GYRO_CONFIG_1", icm20948.ICMREG_GYRO_CONFIG_1, nil},
		{"ACCEL_SMPLRT_DIV_2", icm20948.ICMREG_ACCEL_SMPLRT_DIV_2, nil},
		{"ACCEL_CONFIG", icm20948.ICMREG_ACCEL_CONFIG, nil},
	}},
	{3, []register{
		{"I2C_MST_ODR_CONFIG", icm20948.ICMREG_I2C_MST_ODR_CONFIG, nil},
		{"I2C_MST_CTRL", icm20948.ICMREG_I2C_MST_CTRL, nil},
		{"I2C_SLV0_ADDR", icm20948.ICMREG_I2C_SLV0_ADDR, nil},
		{"I2C_SLV0_REG", icm20948.ICMREG_I2C_SLV0_REG, nil},
		{"I2C_SLV0_CTRL", icm20948.ICMREG_I2C_SLV0_CTRL, nil},
		{"I2C_SLV4_ADDR", icm20948.ICMREG_I2C_SLV4_ADDR, nil},
		{"I2C_SLV4_REG", icm20948.ICMREG_I2C_SLV4_REG, nil},
		{"I2C_SLV4_CTRL", icm20948.ICMREG_I2C_SLV4_CTRL, nil},
		{"I2C_SLV4_DI", icm20948.ICMREG_I2C_SLV4_DI, nil},
	}},
}

// dumpRegisters prints the configuration registers of each bank and leaves bank 0 selected.
func dumpRegisters(w io.Writer, bus embd.I2CBus) error {
	for _, b := range banks {
		if err := bus.WriteByteToReg(icm20948.MPU_ADDRESS, icm20948.ICMREG_BANK_SEL, b.bank<<4); err != nil {
			return errors.Wrapf(err, "selecting bank %d", b.bank)
		}
		fmt.Fprintf(w, "Bank %d:\n", b.bank)
		for _, r := range b.regs {
			v, err := bus.ReadByteFromReg(icm20948.MPU_ADDRESS, r.reg)
			if err != nil {
				return errors.Wrapf(err, "reading %s", r.name)
			}
			fmt.Fprintf(w, "  %-18s (0x%02X) = 0x%02X", r.name, r.reg, v)
			if r.note != nil {
				fmt.Fprintf(w, " [%s]", r.note(v))
			}
			fmt.Fprintln(w)
		}
	}
	return errors.Wrap(bus.WriteByteToReg(icm20948.MPU_ADDRESS, icm20948.ICMREG_BANK_SEL, 0), "selecting bank 0")
}

// decodeStatus names the bits set in I2C_MST_STATUS.
func decodeStatus(status byte) string {
	names := []struct {
		bit  byte
		name string
	}{
		{icm20948.BIT_PASS_THROUGH, "PASS_THROUGH"},
		{icm20948.BIT_I2C_SLV4_DONE, "SLV4_DONE"},
		{icm20948.BIT_I2C_LOST_ARB, "LOST_ARB"},
		{icm20948.BIT_I2C_SLV4_NACK, "SLV4_NACK"},
		{icm20948.BIT_I2C_SLV3_NACK, "SLV3_NACK"},
		{icm20948.BIT_I2C_SLV2_NACK, "SLV2_NACK"},
		{icm20948.BIT_I2C_SLV1_NACK, "SLV1_NACK"},
		{icm20948.BIT_I2C_SLV0_NACK, "SLV0_NACK"},
	}
	var set []string
	for _, n := range names {
		if status&n.bit != 0 {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "NONE"
	}
	return strings.Join(set, " | ")
}

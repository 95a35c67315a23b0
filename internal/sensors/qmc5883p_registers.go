// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"github.com/relabs-tech/compass/internal/qmc5883p"
)

// BitField describes a field inside a register for the debug UI.
type BitField struct {
	Bits        string `json:"bits"` // "7" or "3:2"
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo describes one register for the debug UI.
type RegisterInfo struct {
	Address     byte       `json:"-"`
	Hex         string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// Writable reports whether the register accepts writes.
func (r RegisterInfo) Writable() bool {
	return r.Access == "RW" || r.Access == "W"
}

// QMC5883PRegisterMap returns metadata for all QMC5883P registers.
func QMC5883PRegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: qmc5883p.RegChipID, Hex: "0x00", Name: "CHIPID", Description: "Chip identification", Access: "R", Default: "0x80",
			BitFields: []BitField{
				{Bits: "7:0", Name: "CHIPID", Description: "Fixed chip id", Values: "0x80"},
			}},

		// Output data (read-only, burst readable from 0x01)
		{Address: qmc5883p.RegXOutLSB, Hex: "0x01", Name: "XOUT_LSB", Description: "X-Axis Low Byte", Access: "R"},
		{Address: qmc5883p.RegXOutMSB, Hex: "0x02", Name: "XOUT_MSB", Description: "X-Axis High Byte", Access: "R"},
		{Address: qmc5883p.RegYOutLSB, Hex: "0x03", Name: "YOUT_LSB", Description: "Y-Axis Low Byte", Access: "R"},
		{Address: qmc5883p.RegYOutMSB, Hex: "0x04", Name: "YOUT_MSB", Description: "Y-Axis High Byte", Access: "R"},
		{Address: qmc5883p.RegZOutLSB, Hex: "0x05", Name: "ZOUT_LSB", Description: "Z-Axis Low Byte", Access: "R"},
		{Address: qmc5883p.RegZOutMSB, Hex: "0x06", Name: "ZOUT_MSB", Description: "Z-Axis High Byte", Access: "R"},

		{Address: qmc5883p.RegStatus, Hex: "0x09", Name: "STATUS", Description: "Data status", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "0", Name: "DRDY", Description: "Data ready", Values: "0=No new data, 1=New data available"},
				{Bits: "1", Name: "OVFL", Description: "Overflow", Values: "0=Normal, 1=Field exceeds the selected range"},
			}},

		// Control Registers
		{Address: qmc5883p.RegControl1, Hex: "0x0A", Name: "CONTROL1", Description: "Mode and sampling", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "1:0", Name: "MODE", Description: "Operating mode", Values: "0=Suspend, 1=Normal, 2=Single, 3=Continuous"},
				{Bits: "3:2", Name: "ODR", Description: "Output data rate", Values: "0=10Hz, 1=50Hz, 2=100Hz, 3=200Hz"},
				{Bits: "5:4", Name: "OSR", Description: "Oversample ratio", Values: "0=8, 1=4, 2=2, 3=1"},
				{Bits: "7:6", Name: "DSR", Description: "Downsample ratio", Values: "0=1, 1=2, 2=4, 3=8"},
			}},
		{Address: qmc5883p.RegControl2, Hex: "0x0B", Name: "CONTROL2", Description: "Range, set/reset, self-test, soft reset", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "1:0", Name: "SET_RESET", Description: "Set/reset mode", Values: "0=Set and reset on, 1=Set only, 2=Off"},
				{Bits: "3:2", Name: "RNG", Description: "Field range", Values: "0=±30G (1000 LSB/G), 1=±12G (2500), 2=±8G (3750), 3=±2G (15000)"},
				{Bits: "6", Name: "SELF_TEST", Description: "Self-test", Values: "1=Start, cleared by the chip when done"},
				{Bits: "7", Name: "SOFT_RST", Description: "Soft reset", Values: "1=Reset all registers"},
			}},
	}
}

// lookupRegister returns the metadata for addr.
func lookupRegister(addr byte) (RegisterInfo, bool) {
	for _, r := range QMC5883PRegisterMap() {
		if r.Address == addr {
			return r, true
		}
	}
	return RegisterInfo{}, false
}

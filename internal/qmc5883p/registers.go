// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package qmc5883p

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
)

// I2C register map for QMC5883P.
const (
	RegChipID   = 0x00
	RegXOutLSB  = 0x01 // X LSB, X MSB, Y LSB, Y MSB, Z LSB, Z MSB
	RegXOutMSB  = 0x02
	RegYOutLSB  = 0x03
	RegYOutMSB  = 0x04
	RegZOutLSB  = 0x05
	RegZOutMSB  = 0x06
	RegStatus   = 0x09
	RegControl1 = 0x0A
	RegControl2 = 0x0B
)

// ChipID is the value held by RegChipID on a genuine part.
const ChipID = 0x80

// DefaultAddr is the factory I2C address.
const DefaultAddr = 0x2C

// Register addresses one byte (or the start of a burst) in the chip's memory map.
// Nothing is cached; every call goes to the bus.
type Register struct {
	c    conn.Conn
	Addr byte
}

// NewRegister binds addr to the connection c.
func NewRegister(c conn.Conn, addr byte) Register {
	return Register{c: c, Addr: addr}
}

// Read fills b with len(b) consecutive bytes starting at the register address.
// The chip auto-increments the address during the burst.
func (r Register) Read(b []byte) error {
	if len(b) == 0 {
		return errors.New("qmc5883p: read: empty buffer")
	}
	if err := r.c.Tx([]byte{r.Addr}, b); err != nil {
		return fmt.Errorf("qmc5883p: read 0x%02X: %w", r.Addr, err)
	}
	return nil
}

// ReadUint8 reads the single register byte.
func (r Register) ReadUint8() (byte, error) {
	var b [1]byte
	if err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteUint8 overwrites the register byte.
func (r Register) WriteUint8(v byte) error {
	if err := r.c.Tx([]byte{r.Addr, v}, nil); err != nil {
		return fmt.Errorf("qmc5883p: write 0x%02X: %w", r.Addr, err)
	}
	return nil
}

// BitField is a Width-bit value stored at bit Shift of a register byte.
// Fields never cross a byte boundary, so Width+Shift must not exceed 8.
type BitField struct {
	Reg   Register
	Width uint8
	Shift uint8
}

// NewBitField returns the field view. It panics on a geometry that does not fit
// in one byte; field layouts are compile-time constants of the register map.
func NewBitField(reg Register, width, shift uint8) BitField {
	if width == 0 || width+shift > 8 {
		panic(fmt.Sprintf("qmc5883p: invalid bit field width=%d shift=%d", width, shift))
	}
	return BitField{Reg: reg, Width: width, Shift: shift}
}

func (f BitField) mask() byte {
	return byte(1<<f.Width - 1)
}

// Read returns the field value, right aligned.
func (f BitField) Read() (byte, error) {
	b, err := f.Reg.ReadUint8()
	if err != nil {
		return 0, err
	}
	return (b >> f.Shift) & f.mask(), nil
}

// Write replaces the field bits with v and leaves every other bit of the
// register as the chip reported it. Bits of v above Width are discarded.
//
// This is a read-modify-write with no rollback: if the write fails the register
// may or may not hold the new value.
func (f BitField) Write(v byte) error {
	b, err := f.Reg.ReadUint8()
	if err != nil {
		return err
	}
	m := f.mask() << f.Shift
	b = b&^m | (v<<f.Shift)&m
	return f.Reg.WriteUint8(b)
}

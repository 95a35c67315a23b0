// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package qmc5883p controls a QMC5883P 3-axis magnetometer over I²C.
//
// The driver keeps no copy of the chip configuration: every getter reads the
// chip and every conversion re-reads the range, so a range change made between
// two samples is always honoured.
//
// A Dev is not safe for concurrent use.
package qmc5883p

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
)

var (
	// ErrChipID matches any *ChipIDError.
	ErrChipID = errors.New("qmc5883p: unexpected chip id")
	// ErrUnknownRange is returned by conversions when CONTROL2 holds a range
	// code outside the four documented ones.
	ErrUnknownRange = errors.New("qmc5883p: unknown range code")
	// ErrSelfTest is returned when the self-test bit is still set after the wait.
	ErrSelfTest = errors.New("qmc5883p: self-test did not complete")
)

// ChipIDError reports a device that answered but is not a QMC5883P.
type ChipIDError struct {
	Got byte
}

func (e *ChipIDError) Error() string {
	return fmt.Sprintf("qmc5883p: chip id 0x%02X, want 0x%02X", e.Got, ChipID)
}

// Is makes errors.Is(err, ErrChipID) true.
func (e *ChipIDError) Is(target error) bool {
	return target == ErrChipID
}

// Opts holds initialization options.
//
// ResetDelay and SelfTestDelay are lower bounded by the DefaultOpts values,
// which are the shortest waits known to work.
type Opts struct {
	Addr          uint16
	ResetDelay    time.Duration
	SelfTestDelay time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Addr:          DefaultAddr,
	ResetDelay:    50 * time.Millisecond,
	SelfTestDelay: 5 * time.Millisecond,
}

// Raw is one sample in chip counts.
type Raw struct {
	X, Y, Z int16
}

// Gauss is one sample converted to Gauss.
type Gauss struct {
	X, Y, Z float64
}

// MicroTesla converts to µT (1 G = 100 µT).
func (g Gauss) MicroTesla() Gauss {
	return Gauss{X: g.X * 100, Y: g.Y * 100, Z: g.Z * 100}
}

// Dev is a handle to a QMC5883P.
type Dev struct {
	c     conn.Conn
	opts  Opts
	sleep func(time.Duration)
}

// NewI2C returns a Dev on bus b and checks the chip identity.
//
// A failed bus transaction and a wrong chip ID are reported differently: the
// latter satisfies errors.Is(err, ErrChipID).
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Addr == 0 {
		o.Addr = DefaultAddr
	}
	if o.ResetDelay < DefaultOpts.ResetDelay {
		o.ResetDelay = DefaultOpts.ResetDelay
	}
	if o.SelfTestDelay < DefaultOpts.SelfTestDelay {
		o.SelfTestDelay = DefaultOpts.SelfTestDelay
	}
	d := &Dev{
		c:     &i2c.Dev{Bus: b, Addr: o.Addr},
		opts:  o,
		sleep: time.Sleep,
	}
	if err := d.checkID(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("QMC5883P{%s}", d.c)
}

// Register returns a view of the register at addr.
func (d *Dev) Register(addr byte) Register {
	return NewRegister(d.c, addr)
}

func (d *Dev) field(addr byte, width, shift uint8) BitField {
	return NewBitField(d.Register(addr), width, shift)
}

// ChipID reads the identification register.
func (d *Dev) ChipID() (byte, error) {
	return d.Register(RegChipID).ReadUint8()
}

func (d *Dev) checkID() error {
	id, err := d.ChipID()
	if err != nil {
		return err
	}
	if id != ChipID {
		return &ChipIDError{Got: id}
	}
	return nil
}

// SenseRaw reads X, Y and Z in a single 6 byte burst. Either all three axes
// are returned or an error is.
func (d *Dev) SenseRaw() (Raw, error) {
	var buf [6]byte
	if err := d.Register(RegXOutLSB).Read(buf[:]); err != nil {
		return Raw{}, err
	}
	return Raw{
		X: int16(uint16(buf[1])<<8 | uint16(buf[0])),
		Y: int16(uint16(buf[3])<<8 | uint16(buf[2])),
		Z: int16(uint16(buf[5])<<8 | uint16(buf[4])),
	}, nil
}

// Sensitivity returns the LSB per Gauss for range r.
func Sensitivity(r Range) (int, error) {
	switch r {
	case Range30G:
		return 1000, nil
	case Range12G:
		return 2500, nil
	case Range8G:
		return 3750, nil
	case Range2G:
		return 15000, nil
	}
	return 0, fmt.Errorf("%w %d", ErrUnknownRange, uint8(r))
}

// ToGauss converts raw counts taken at range r.
func ToGauss(raw Raw, r Range) (Gauss, error) {
	lsb, err := Sensitivity(r)
	if err != nil {
		return Gauss{}, err
	}
	div := float64(lsb)
	return Gauss{
		X: float64(raw.X) / div,
		Y: float64(raw.Y) / div,
		Z: float64(raw.Z) / div,
	}, nil
}

// SenseGauss reads a sample and converts it with the range currently
// programmed in the chip.
func (d *Dev) SenseGauss() (Gauss, error) {
	raw, err := d.SenseRaw()
	if err != nil {
		return Gauss{}, err
	}
	r, err := d.Range()
	if err != nil {
		return Gauss{}, err
	}
	return ToGauss(raw, r)
}

// DataReady reports the DRDY bit of the status register.
func (d *Dev) DataReady() (bool, error) {
	v, err := d.field(RegStatus, 1, 0).Read()
	return v == 1, err
}

// Overflow reports the OVFL bit of the status register.
func (d *Dev) Overflow() (bool, error) {
	v, err := d.field(RegStatus, 1, 1).Read()
	return v == 1, err
}

// Mode reads bits 1:0 of CONTROL1.
func (d *Dev) Mode() (Mode, error) {
	v, err := d.field(RegControl1, 2, 0).Read()
	return Mode(v), err
}

// SetMode writes bits 1:0 of CONTROL1.
func (d *Dev) SetMode(m Mode) error {
	return d.field(RegControl1, 2, 0).Write(byte(m))
}

// ODR reads bits 3:2 of CONTROL1.
func (d *Dev) ODR() (ODR, error) {
	v, err := d.field(RegControl1, 2, 2).Read()
	return ODR(v), err
}

// SetODR writes bits 3:2 of CONTROL1.
func (d *Dev) SetODR(o ODR) error {
	return d.field(RegControl1, 2, 2).Write(byte(o))
}

// OSR reads bits 5:4 of CONTROL1.
func (d *Dev) OSR() (OSR, error) {
	v, err := d.field(RegControl1, 2, 4).Read()
	return OSR(v), err
}

// SetOSR writes bits 5:4 of CONTROL1.
func (d *Dev) SetOSR(o OSR) error {
	return d.field(RegControl1, 2, 4).Write(byte(o))
}

// DSR reads bits 7:6 of CONTROL1.
func (d *Dev) DSR() (DSR, error) {
	v, err := d.field(RegControl1, 2, 6).Read()
	return DSR(v), err
}

// SetDSR writes bits 7:6 of CONTROL1.
func (d *Dev) SetDSR(s DSR) error {
	return d.field(RegControl1, 2, 6).Write(byte(s))
}

// Range returns the raw range code; it is not validated here.
func (d *Dev) Range() (Range, error) {
	v, err := d.field(RegControl2, 2, 2).Read()
	return Range(v), err
}

// SetRange writes bits 3:2 of CONTROL2.
func (d *Dev) SetRange(r Range) error {
	return d.field(RegControl2, 2, 2).Write(byte(r))
}

// SetResetMode reads bits 1:0 of CONTROL2.
func (d *Dev) SetResetMode() (SetResetMode, error) {
	v, err := d.field(RegControl2, 2, 0).Read()
	return SetResetMode(v), err
}

// SetSetResetMode writes bits 1:0 of CONTROL2.
func (d *Dev) SetSetResetMode(s SetResetMode) error {
	return d.field(RegControl2, 2, 0).Write(byte(s))
}

// Configure writes every setting of c. The mode goes last so the chip starts
// measuring with the final rate and range.
func (d *Dev) Configure(c Config) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"range", func() error { return d.SetRange(c.Range) }},
		{"set/reset", func() error { return d.SetSetResetMode(c.SetReset) }},
		{"odr", func() error { return d.SetODR(c.ODR) }},
		{"osr", func() error { return d.SetOSR(c.OSR) }},
		{"dsr", func() error { return d.SetDSR(c.DSR) }},
		{"mode", func() error { return d.SetMode(c.Mode) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("qmc5883p: configure %s: %w", s.name, err)
		}
	}
	return nil
}

// ReadConfig reads back every setting.
func (d *Dev) ReadConfig() (Config, error) {
	var c Config
	var err error
	if c.Mode, err = d.Mode(); err != nil {
		return Config{}, err
	}
	if c.ODR, err = d.ODR(); err != nil {
		return Config{}, err
	}
	if c.OSR, err = d.OSR(); err != nil {
		return Config{}, err
	}
	if c.DSR, err = d.DSR(); err != nil {
		return Config{}, err
	}
	if c.Range, err = d.Range(); err != nil {
		return Config{}, err
	}
	if c.SetReset, err = d.SetResetMode(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// SoftReset sets the reset bit, waits for the chip to restart and confirms it
// still identifies as a QMC5883P.
func (d *Dev) SoftReset() error {
	if err := d.field(RegControl2, 1, 7).Write(1); err != nil {
		return err
	}
	d.sleep(d.opts.ResetDelay)
	return d.checkID()
}

// SelfTest starts the built-in self test. The chip clears the bit when done;
// a bit still set after the wait is ErrSelfTest, not a bus error.
func (d *Dev) SelfTest() error {
	f := d.field(RegControl2, 1, 6)
	if err := f.Write(1); err != nil {
		return err
	}
	d.sleep(d.opts.SelfTestDelay)
	v, err := f.Read()
	if err != nil {
		return err
	}
	if v != 0 {
		return ErrSelfTest
	}
	return nil
}

// Halt puts the chip in suspend mode.
func (d *Dev) Halt() error {
	return d.SetMode(Suspend)
}

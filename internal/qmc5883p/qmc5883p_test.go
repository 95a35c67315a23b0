// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package qmc5883p

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestNewI2C(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegChipID}, R: []byte{ChipID}},
		},
		DontPanic: true,
	}
	d, err := NewI2C(bus, nil)
	if err != nil {
		t.Fatalf("NewI2C: %v", err)
	}
	if d.String() == "" {
		t.Fatal("empty String()")
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewI2CCustomAddr(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x2D, W: []byte{RegChipID}, R: []byte{ChipID}},
		},
		DontPanic: true,
	}
	if _, err := NewI2C(bus, &Opts{Addr: 0x2D}); err != nil {
		t.Fatalf("NewI2C: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewI2CWrongChip(t *testing.T) {
	for _, id := range []byte{0x00, 0x7F, 0x81, 0xFF} {
		bus := &i2ctest.Playback{
			Ops: []i2ctest.IO{
				{Addr: DefaultAddr, W: []byte{RegChipID}, R: []byte{id}},
			},
			DontPanic: true,
		}
		_, err := NewI2C(bus, nil)
		if !errors.Is(err, ErrChipID) {
			t.Fatalf("id 0x%02X: err = %v, want ErrChipID", id, err)
		}
		var idErr *ChipIDError
		if !errors.As(err, &idErr) || idErr.Got != id {
			t.Fatalf("id 0x%02X: err = %#v, want ChipIDError{Got: 0x%02X}", id, err, id)
		}
	}
}

func TestNewI2CBusError(t *testing.T) {
	b := newRegBus()
	busErr := errors.New("no ack")
	b.failRead = busErr
	_, err := NewI2C(b, nil)
	if !errors.Is(err, busErr) {
		t.Fatalf("err = %v, want wrapped bus error", err)
	}
	if errors.Is(err, ErrChipID) {
		t.Fatal("a bus error must not look like a chip id mismatch")
	}
}

func TestOptsDelaysAreLowerBounded(t *testing.T) {
	d, err := NewI2C(newRegBus(), &Opts{ResetDelay: time.Millisecond, SelfTestDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if d.opts.Addr != DefaultAddr {
		t.Fatalf("addr = 0x%02X", d.opts.Addr)
	}
	if d.opts.ResetDelay != 50*time.Millisecond {
		t.Fatalf("reset delay = %s, want 50ms", d.opts.ResetDelay)
	}
	if d.opts.SelfTestDelay != 20*time.Millisecond {
		t.Fatalf("self-test delay = %s, want 20ms", d.opts.SelfTestDelay)
	}
}

func TestSenseRaw(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegChipID}, R: []byte{ChipID}},
			{Addr: DefaultAddr, W: []byte{RegXOutLSB}, R: []byte{0x00, 0x80, 0xFF, 0x7F, 0x00, 0x00}},
		},
		DontPanic: true,
	}
	d, err := NewI2C(bus, nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := d.SenseRaw()
	if err != nil {
		t.Fatal(err)
	}
	if raw != (Raw{X: -32768, Y: 32767, Z: 0}) {
		t.Fatalf("raw = %+v", raw)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSenseRawBusError(t *testing.T) {
	b := newRegBus()
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	b.failRead = errors.New("timeout")
	if raw, err := d.SenseRaw(); err == nil || raw != (Raw{}) {
		t.Fatalf("SenseRaw = %+v, %v; want zero sample and error", raw, err)
	}
}

func TestSenseGauss(t *testing.T) {
	data := []byte{0xE8, 0x03, 0x18, 0xFC, 0x98, 0x3A} // 1000, -1000, 15000
	tests := []struct {
		r   Range
		lsb float64
	}{
		{Range30G, 1000},
		{Range12G, 2500},
		{Range8G, 3750},
		{Range2G, 15000},
	}
	for _, tt := range tests {
		b := newRegBus()
		copy(b.regs[RegXOutLSB:], data)
		b.regs[RegControl2] = byte(tt.r)<<2 | 0xC3 // unrelated bits set
		d, _, err := newTestDev(b)
		if err != nil {
			t.Fatal(err)
		}
		g, err := d.SenseGauss()
		if err != nil {
			t.Fatalf("%s: %v", tt.r, err)
		}
		want := Gauss{X: 1000 / tt.lsb, Y: -1000 / tt.lsb, Z: 15000 / tt.lsb}
		if g != want {
			t.Fatalf("%s: got %+v, want %+v", tt.r, g, want)
		}
	}
}

func TestSenseGaussFollowsRangeChange(t *testing.T) {
	b := newRegBus()
	copy(b.regs[RegXOutLSB:], []byte{0x98, 0x3A, 0, 0, 0, 0}) // x = 15000
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetRange(Range30G); err != nil {
		t.Fatal(err)
	}
	g, err := d.SenseGauss()
	if err != nil || g.X != 15 {
		t.Fatalf("30G: %+v, %v", g, err)
	}
	if err := d.SetRange(Range2G); err != nil {
		t.Fatal(err)
	}
	g, err = d.SenseGauss()
	if err != nil || g.X != 1 {
		t.Fatalf("2G: %+v, %v", g, err)
	}
}

func TestUnknownRange(t *testing.T) {
	for _, r := range []Range{4, 7, 255} {
		if _, err := Sensitivity(r); !errors.Is(err, ErrUnknownRange) {
			t.Fatalf("Sensitivity(%d) err = %v", r, err)
		}
		if _, err := ToGauss(Raw{X: 1}, r); !errors.Is(err, ErrUnknownRange) {
			t.Fatalf("ToGauss(%d) err = %v", r, err)
		}
	}
}

func TestStatusBits(t *testing.T) {
	tests := []struct {
		status          byte
		ready, overflow bool
	}{
		{0b00000011, true, true},
		{0b00000000, false, false},
		{0b11111101, true, false},
		{0b11111110, false, true},
		{0b00000001, true, false},
		{0b00000010, false, true},
	}
	for _, tt := range tests {
		b := newRegBus()
		b.regs[RegStatus] = tt.status
		d, _, err := newTestDev(b)
		if err != nil {
			t.Fatal(err)
		}
		ready, err := d.DataReady()
		if err != nil {
			t.Fatal(err)
		}
		overflow, err := d.Overflow()
		if err != nil {
			t.Fatal(err)
		}
		if ready != tt.ready || overflow != tt.overflow {
			t.Fatalf("status 0b%08b: ready=%t overflow=%t, want %t %t", tt.status, ready, overflow, tt.ready, tt.overflow)
		}
	}
}

func TestControlFieldLayout(t *testing.T) {
	b := newRegBus()
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Configure(Config{
		Mode:     Continuous, // 11
		ODR:      ODR10Hz,    // 00
		OSR:      OSR2,       // 10
		DSR:      DSR2,       // 01
		Range:    Range8G,    // 10
		SetReset: SetOnly,    // 01
	}); err != nil {
		t.Fatal(err)
	}
	if got := b.regs[RegControl1]; got != 0b01_10_00_11 {
		t.Fatalf("CONTROL1 = 0b%08b", got)
	}
	if got := b.regs[RegControl2]; got != 0b0000_10_01 {
		t.Fatalf("CONTROL2 = 0b%08b", got)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	b := newRegBus()
	b.regs[RegControl2] = 0x30 // reserved bits must survive
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{Mode: Single, ODR: ODR200Hz, OSR: OSR1, DSR: DSR8, Range: Range2G, SetReset: SetResetOff}
	if err := d.Configure(want); err != nil {
		t.Fatal(err)
	}
	got, err := d.ReadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("ReadConfig = %+v, want %+v", got, want)
	}
	if b.regs[RegControl2]&0x30 != 0x30 {
		t.Fatalf("CONTROL2 reserved bits cleared: 0x%02X", b.regs[RegControl2])
	}
}

func TestGetterReturnsWhatChipReports(t *testing.T) {
	b := newRegBus()
	b.regs[RegControl2] = 0b0000_11_11
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	s, err := d.SetResetMode()
	if err != nil {
		t.Fatal(err)
	}
	if s != SetResetMode(3) {
		t.Fatalf("SetResetMode = %d, want raw code 3", s)
	}
}

func TestSoftReset(t *testing.T) {
	b := newRegBus()
	b.regs[RegControl2] = 0x0C
	b.onWrite = func(b *regBus, reg byte) {
		if reg == RegControl2 && b.regs[reg]&0x80 != 0 {
			b.regs[reg] = 0x00
		}
	}
	d, waits, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SoftReset(); err != nil {
		t.Fatalf("SoftReset: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 50*time.Millisecond {
		t.Fatalf("waits = %v, want [50ms]", *waits)
	}
}

func TestSoftResetWrongChipAfterReset(t *testing.T) {
	b := newRegBus()
	b.onWrite = func(b *regBus, reg byte) {
		if reg == RegControl2 && b.regs[reg]&0x80 != 0 {
			b.regs[RegChipID] = 0x00
		}
	}
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SoftReset(); !errors.Is(err, ErrChipID) {
		t.Fatalf("SoftReset err = %v, want ErrChipID", err)
	}
}

func TestSelfTest(t *testing.T) {
	b := newRegBus()
	b.onWrite = func(b *regBus, reg byte) {
		if reg == RegControl2 {
			b.regs[reg] &^= 0x40
		}
	}
	d, waits, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SelfTest(); err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 5*time.Millisecond {
		t.Fatalf("waits = %v, want [5ms]", *waits)
	}
}

func TestSelfTestNotCleared(t *testing.T) {
	b := newRegBus()
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SelfTest(); !errors.Is(err, ErrSelfTest) {
		t.Fatalf("SelfTest err = %v, want ErrSelfTest", err)
	}
}

func TestSelfTestBusError(t *testing.T) {
	b := newRegBus()
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	b.failWrite = errors.New("bus busy")
	err = d.SelfTest()
	if err == nil || errors.Is(err, ErrSelfTest) {
		t.Fatalf("SelfTest err = %v, want a bus error", err)
	}
}

func TestHalt(t *testing.T) {
	b := newRegBus()
	b.regs[RegControl1] = 0xFF
	d, _, err := newTestDev(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if b.regs[RegControl1] != 0xFC {
		t.Fatalf("CONTROL1 = 0x%02X, want 0xFC", b.regs[RegControl1])
	}
}

func TestGaussMicroTesla(t *testing.T) {
	g := Gauss{X: 0.5, Y: -0.25, Z: 1}.MicroTesla()
	if g != (Gauss{X: 50, Y: -25, Z: 100}) {
		t.Fatalf("MicroTesla = %+v", g)
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package qmc5883p

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// regBus is an in-memory register file standing in for the chip.
type regBus struct {
	addr      uint16
	regs      [256]byte
	failRead  error
	failWrite error
	// onWrite runs after each byte written, so tests can mimic bits the chip
	// clears by itself.
	onWrite func(b *regBus, reg byte)
}

func newRegBus() *regBus {
	b := &regBus{addr: DefaultAddr}
	b.regs[RegChipID] = ChipID
	return b
}

func (b *regBus) String() string { return "regBus" }

func (b *regBus) SetSpeed(f physic.Frequency) error { return nil }

func (b *regBus) Tx(addr uint16, w, r []byte) error {
	if addr != b.addr {
		return fmt.Errorf("regBus: no device at 0x%02X", addr)
	}
	if len(w) == 0 {
		return errors.New("regBus: missing register address")
	}
	reg := w[0]
	if len(w) > 1 {
		if b.failWrite != nil {
			return b.failWrite
		}
		for i, v := range w[1:] {
			b.regs[reg+byte(i)] = v
			if b.onWrite != nil {
				b.onWrite(b, reg+byte(i))
			}
		}
	}
	if len(r) > 0 {
		if b.failRead != nil {
			return b.failRead
		}
		for i := range r {
			r[i] = b.regs[reg+byte(i)]
		}
	}
	return nil
}

// newTestDev opens a Dev on b without sleeping and records requested waits.
func newTestDev(b *regBus) (*Dev, *[]time.Duration, error) {
	d, err := NewI2C(b, nil)
	if err != nil {
		return nil, nil, err
	}
	waits := &[]time.Duration{}
	d.sleep = func(w time.Duration) { *waits = append(*waits, w) }
	return d, waits, nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package qmc5883p

import (
	"fmt"
	"strings"
)

// Mode is the operating mode, bits 1:0 of CONTROL1.
type Mode uint8

const (
	Suspend Mode = iota
	Normal
	Single
	Continuous
)

func (m Mode) String() string {
	switch m {
	case Suspend:
		return "suspend"
	case Normal:
		return "normal"
	case Single:
		return "single"
	case Continuous:
		return "continuous"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	for m := Suspend; m <= Continuous; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("qmc5883p: unknown mode %q (want suspend, normal, single or continuous)", s)
}

// ODR is the output data rate, bits 3:2 of CONTROL1.
type ODR uint8

const (
	ODR10Hz ODR = iota
	ODR50Hz
	ODR100Hz
	ODR200Hz
)

var odrHz = [...]int{10, 50, 100, 200}

// Hz returns the rate in Hertz, or 0 for an unknown code.
func (o ODR) Hz() int {
	if int(o) < len(odrHz) {
		return odrHz[o]
	}
	return 0
}

func (o ODR) String() string {
	if hz := o.Hz(); hz != 0 {
		return fmt.Sprintf("%dHz", hz)
	}
	return fmt.Sprintf("ODR(%d)", uint8(o))
}

// ODRFromHz maps 10, 50, 100 or 200 to its code.
func ODRFromHz(hz int) (ODR, error) {
	for i, v := range odrHz {
		if v == hz {
			return ODR(i), nil
		}
	}
	return 0, fmt.Errorf("qmc5883p: unsupported output data rate %dHz (want 10, 50, 100 or 200)", hz)
}

// OSR is the oversample ratio, bits 5:4 of CONTROL1.
type OSR uint8

const (
	OSR8 OSR = iota
	OSR4
	OSR2
	OSR1
)

var osrRatio = [...]int{8, 4, 2, 1}

// Ratio returns the oversample count, or 0 for an unknown code.
func (o OSR) Ratio() int {
	if int(o) < len(osrRatio) {
		return osrRatio[o]
	}
	return 0
}

func (o OSR) String() string {
	if r := o.Ratio(); r != 0 {
		return fmt.Sprintf("OSR%d", r)
	}
	return fmt.Sprintf("OSR(%d)", uint8(o))
}

// OSRFromRatio maps 8, 4, 2 or 1 to its code.
func OSRFromRatio(r int) (OSR, error) {
	for i, v := range osrRatio {
		if v == r {
			return OSR(i), nil
		}
	}
	return 0, fmt.Errorf("qmc5883p: unsupported oversample ratio %d (want 8, 4, 2 or 1)", r)
}

// DSR is the downsample ratio, bits 7:6 of CONTROL1.
type DSR uint8

const (
	DSR1 DSR = iota
	DSR2
	DSR4
	DSR8
)

var dsrRatio = [...]int{1, 2, 4, 8}

// Ratio returns the downsample count, or 0 for an unknown code.
func (d DSR) Ratio() int {
	if int(d) < len(dsrRatio) {
		return dsrRatio[d]
	}
	return 0
}

func (d DSR) String() string {
	if r := d.Ratio(); r != 0 {
		return fmt.Sprintf("DSR%d", r)
	}
	return fmt.Sprintf("DSR(%d)", uint8(d))
}

// DSRFromRatio maps 1, 2, 4 or 8 to its code.
func DSRFromRatio(r int) (DSR, error) {
	for i, v := range dsrRatio {
		if v == r {
			return DSR(i), nil
		}
	}
	return 0, fmt.Errorf("qmc5883p: unsupported downsample ratio %d (want 1, 2, 4 or 8)", r)
}

// Range is the full scale field range, bits 3:2 of CONTROL2.
type Range uint8

const (
	Range30G Range = iota
	Range12G
	Range8G
	Range2G
)

var rangeGauss = [...]int{30, 12, 8, 2}

// Gauss returns the full scale in Gauss, or 0 for an unknown code.
func (r Range) Gauss() int {
	if int(r) < len(rangeGauss) {
		return rangeGauss[r]
	}
	return 0
}

func (r Range) String() string {
	if g := r.Gauss(); g != 0 {
		return fmt.Sprintf("±%dG", g)
	}
	return fmt.Sprintf("Range(%d)", uint8(r))
}

// RangeFromGauss maps 30, 12, 8 or 2 to its code.
func RangeFromGauss(g int) (Range, error) {
	for i, v := range rangeGauss {
		if v == g {
			return Range(i), nil
		}
	}
	return 0, fmt.Errorf("qmc5883p: unsupported range ±%dG (want 30, 12, 8 or 2)", g)
}

// SetResetMode controls the set/reset pulses, bits 1:0 of CONTROL2.
type SetResetMode uint8

const (
	SetResetOn SetResetMode = iota
	SetOnly
	SetResetOff
)

func (s SetResetMode) String() string {
	switch s {
	case SetResetOn:
		return "on"
	case SetOnly:
		return "set_only"
	case SetResetOff:
		return "off"
	}
	return fmt.Sprintf("SetResetMode(%d)", uint8(s))
}

// ParseSetResetMode accepts the names returned by SetResetMode.String.
func ParseSetResetMode(s string) (SetResetMode, error) {
	for m := SetResetOn; m <= SetResetOff; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("qmc5883p: unknown set/reset mode %q (want on, set_only or off)", s)
}

// Config groups every writable measurement setting.
type Config struct {
	Mode     Mode
	ODR      ODR
	OSR      OSR
	DSR      DSR
	Range    Range
	SetReset SetResetMode
}

// DefaultConfig is a sensible starting point for a handheld compass.
var DefaultConfig = Config{
	Mode:     Normal,
	ODR:      ODR50Hz,
	OSR:      OSR8,
	DSR:      DSR1,
	Range:    Range8G,
	SetReset: SetResetOn,
}

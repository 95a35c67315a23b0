// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/mag"
	"github.com/relabs-tech/compass/internal/qmc5883p"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// ErrBusOpen marks failures to bring up the I²C bus, as opposed to failures
// talking to the chip once the bus is open.
var ErrBusOpen = errors.New("sensors: i2c bus unavailable")

// OpenBus initializes periph and opens the named I²C bus ("" picks the first one).
// speedKHz > 0 also sets the bus clock.
func OpenBus(name string, speedKHz int) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: periph host init: %w", ErrBusOpen, err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrBusOpen, name, err)
	}
	if speedKHz > 0 {
		if err := bus.SetSpeed(physic.Frequency(speedKHz) * physic.KiloHertz); err != nil {
			bus.Close()
			return nil, fmt.Errorf("%w: set speed %dkHz: %w", ErrBusOpen, speedKHz, err)
		}
	}
	return bus, nil
}

// MagSource owns a QMC5883P and, when opened through NewMagSource, its bus.
// Calls are serialized so the producer loop and debug tools can share it.
type MagSource struct {
	name string
	mu   sync.Mutex
	bus  i2c.BusCloser // nil when the caller owns the bus
	dev  *qmc5883p.Dev
	cal  *mag.Calibration
}

// NewMagSource opens the configured bus and initializes the magnetometer on it.
func NewMagSource(cfg *config.Config) (*MagSource, error) {
	bus, err := OpenBus(cfg.QMCI2CBus, cfg.QMCI2CSpeedKHz)
	if err != nil {
		return nil, err
	}
	s, err := NewMagSourceOnBus(bus, cfg)
	if err != nil {
		bus.Close()
		return nil, err
	}
	s.bus = bus
	return s, nil
}

// NewMagSourceOnBus initializes the magnetometer on a bus owned by the caller.
func NewMagSourceOnBus(bus i2c.Bus, cfg *config.Config) (*MagSource, error) {
	opts := cfg.QMCOpts()
	name := fmt.Sprintf("%s@0x%02X", bus, opts.Addr)

	dev, err := qmc5883p.NewI2C(bus, &opts)
	if err != nil {
		return nil, fmt.Errorf("mag %s: init: %w", name, err)
	}
	log.Printf("mag %s: QMC5883P detected (chip id 0x%02X)", name, qmc5883p.ChipID)

	if cfg.QMCSelfTestOnStart {
		if err := dev.SelfTest(); err != nil {
			log.Printf("Warning: mag %s self-test failed: %v", name, err)
		} else {
			log.Printf("mag %s self-test passed", name)
		}
	}

	if err := dev.Configure(cfg.QMC); err != nil {
		return nil, fmt.Errorf("mag %s: %w", name, err)
	}
	got, err := dev.ReadConfig()
	if err != nil {
		return nil, fmt.Errorf("mag %s: read back config: %w", name, err)
	}
	if got != cfg.QMC {
		log.Printf("Warning: mag %s config read back %+v, wrote %+v", name, got, cfg.QMC)
	}
	log.Printf("mag %s: mode=%s odr=%s osr=%s dsr=%s range=%s set/reset=%s",
		name, got.Mode, got.ODR, got.OSR, got.DSR, got.Range, got.SetReset)

	s := &MagSource{name: name, dev: dev}
	if cfg.MagCalibrationFile != "" {
		cal, err := mag.LoadCalibration(cfg.MagCalibrationFile)
		if err != nil {
			return nil, fmt.Errorf("mag %s: %w", name, err)
		}
		s.cal = cal
		log.Printf("mag %s: calibration loaded from %s (offset %+v, confidence %.2f)",
			name, cfg.MagCalibrationFile, cal.Offset, cal.Confidence)
	}
	return s, nil
}

// Name identifies the bus and address.
func (s *MagSource) Name() string {
	return s.name
}

// Next reads one sample. The range is read back for every sample so a range
// changed from the debug tool is honoured immediately.
func (s *MagSource) Next() (mag.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.dev.SenseRaw()
	if err != nil {
		return mag.Sample{}, fmt.Errorf("mag %s: read: %w", s.name, err)
	}
	rng, err := s.dev.Range()
	if err != nil {
		return mag.Sample{}, fmt.Errorf("mag %s: range: %w", s.name, err)
	}
	g, err := qmc5883p.ToGauss(raw, rng)
	if err != nil {
		return mag.Sample{}, fmt.Errorf("mag %s: %w", s.name, err)
	}
	overflow, err := s.dev.Overflow()
	if err != nil {
		return mag.Sample{}, fmt.Errorf("mag %s: status: %w", s.name, err)
	}

	b := s.cal.Apply(mag.Vec3{X: g.X, Y: g.Y, Z: g.Z})
	return mag.Sample{
		Source:   s.name,
		X:        raw.X,
		Y:        raw.Y,
		Z:        raw.Z,
		Bx:       b.X,
		By:       b.Y,
		Bz:       b.Z,
		Norm:     b.Norm(),
		Range:    rng.String(),
		Overflow: overflow,
		Time:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// SetCalibration replaces the correction applied by Next; nil disables it.
func (s *MagSource) SetCalibration(c *mag.Calibration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal = c
}

// Calibration returns the correction currently applied by Next.
func (s *MagSource) Calibration() *mag.Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal
}

// ReadRegister reads one register byte.
func (s *MagSource) ReadRegister(addr byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Register(addr).ReadUint8()
}

// WriteRegister writes one register byte. Only registers documented as
// writable are accepted.
func (s *MagSource) WriteRegister(addr, value byte) error {
	info, ok := lookupRegister(addr)
	if !ok || !info.Writable() {
		return fmt.Errorf("mag %s: register 0x%02X is not writable", s.name, addr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Register(addr).WriteUint8(value)
}

// ReadAllRegisters reads every register of the register map.
func (s *MagSource) ReadAllRegisters() (map[byte]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[byte]byte)
	for _, r := range QMC5883PRegisterMap() {
		v, err := s.dev.Register(r.Address).ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("mag %s: %w", s.name, err)
		}
		out[r.Address] = v
	}
	return out, nil
}

// ExportRegisterConfig returns the current value of every writable register.
func (s *MagSource) ExportRegisterConfig() (map[byte]byte, error) {
	all, err := s.ReadAllRegisters()
	if err != nil {
		return nil, err
	}
	out := make(map[byte]byte)
	for _, r := range QMC5883PRegisterMap() {
		if r.Writable() {
			out[r.Address] = all[r.Address]
		}
	}
	return out, nil
}

// Config reads back the current measurement settings.
func (s *MagSource) Config() (qmc5883p.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.ReadConfig()
}

// Configure applies new measurement settings.
func (s *MagSource) Configure(c qmc5883p.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Configure(c)
}

// SoftReset resets the chip and re-applies c, since the reset clears the
// control registers.
func (s *MagSource) SoftReset(c qmc5883p.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dev.SoftReset(); err != nil {
		return fmt.Errorf("mag %s: soft reset: %w", s.name, err)
	}
	if err := s.dev.Configure(c); err != nil {
		return fmt.Errorf("mag %s: reconfigure after reset: %w", s.name, err)
	}
	return nil
}

// SelfTest runs the chip self-test.
func (s *MagSource) SelfTest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.SelfTest()
}

// Close suspends the chip and releases the bus when this source owns it.
func (s *MagSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.dev.Halt()
	if s.bus != nil {
		if cerr := s.bus.Close(); err == nil {
			err = cerr
		}
		s.bus = nil
	}
	return err
}

package sensors

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/mag"
	"github.com/relabs-tech/compass/internal/qmc5883p"
	"periph.io/x/conn/v3/physic"
)

// chipBus emulates a QMC5883P register file.
type chipBus struct {
	regs   [256]byte
	closed bool
}

func newChipBus() *chipBus {
	b := &chipBus{}
	b.regs[qmc5883p.RegChipID] = qmc5883p.ChipID
	return b
}

func (b *chipBus) String() string                    { return "chipBus" }
func (b *chipBus) SetSpeed(f physic.Frequency) error { return nil }
func (b *chipBus) Close() error                      { b.closed = true; return nil }

func (b *chipBus) Tx(addr uint16, w, r []byte) error {
	if addr != qmc5883p.DefaultAddr {
		return errors.New("chipBus: nack")
	}
	reg := w[0]
	for i, v := range w[1:] {
		a := reg + byte(i)
		b.regs[a] = v
		if a == qmc5883p.RegControl2 {
			// self-test and reset bits clear themselves
			b.regs[a] &^= 0xC0
		}
	}
	for i := range r {
		r[i] = b.regs[reg+byte(i)]
	}
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MQTTBroker = "tcp://localhost:1883"
	cfg.QMCSelfTestOnStart = false
	return cfg
}

func TestNewMagSourceConfiguresChip(t *testing.T) {
	b := newChipBus()
	cfg := testConfig()
	cfg.QMCSelfTestOnStart = true
	cfg.QMC = qmc5883p.Config{Mode: qmc5883p.Continuous, ODR: qmc5883p.ODR100Hz, Range: qmc5883p.Range2G}
	s, err := NewMagSourceOnBus(b, cfg)
	if err != nil {
		t.Fatalf("NewMagSourceOnBus: %v", err)
	}
	got, err := s.Config()
	if err != nil {
		t.Fatal(err)
	}
	if got != cfg.QMC {
		t.Fatalf("Config = %+v, want %+v", got, cfg.QMC)
	}
	if s.Name() != "chipBus@0x2C" {
		t.Fatalf("Name = %q", s.Name())
	}
}

func TestNewMagSourceWrongChip(t *testing.T) {
	b := newChipBus()
	b.regs[qmc5883p.RegChipID] = 0x0D
	_, err := NewMagSourceOnBus(b, testConfig())
	if !errors.Is(err, qmc5883p.ErrChipID) {
		t.Fatalf("err = %v, want ErrChipID", err)
	}
	if errors.Is(err, ErrBusOpen) {
		t.Fatal("a chip id mismatch must not look like a bus open failure")
	}
}

func TestOpenBusUnknownBus(t *testing.T) {
	bus, err := OpenBus("no-such-bus-42", 0)
	if err == nil {
		bus.Close()
		t.Fatal("opened a bus that does not exist")
	}
	if !errors.Is(err, ErrBusOpen) {
		t.Fatalf("err = %v, want ErrBusOpen", err)
	}
	if errors.Is(err, qmc5883p.ErrChipID) {
		t.Fatal("a bus open failure must not look like a chip id mismatch")
	}
}

func TestMagSourceNext(t *testing.T) {
	b := newChipBus()
	cfg := testConfig()
	cfg.QMC.Range = qmc5883p.Range8G
	s, err := NewMagSourceOnBus(b, cfg)
	if err != nil {
		t.Fatal(err)
	}
	// x = 3750 (1 G), y = -1875 (-0.5 G), z = 0
	copy(b.regs[qmc5883p.RegXOutLSB:], []byte{0xA6, 0x0E, 0xAD, 0xF8, 0x00, 0x00})
	b.regs[qmc5883p.RegStatus] = 0x03

	sample, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if sample.X != 3750 || sample.Y != -1875 || sample.Z != 0 {
		t.Fatalf("raw = %d %d %d", sample.X, sample.Y, sample.Z)
	}
	if sample.Bx != 1 || sample.By != -0.5 || sample.Bz != 0 {
		t.Fatalf("gauss = %v %v %v", sample.Bx, sample.By, sample.Bz)
	}
	if math.Abs(sample.Norm-math.Sqrt(1.25)) > 1e-12 {
		t.Fatalf("norm = %v", sample.Norm)
	}
	if !sample.Overflow || sample.Range != "±8G" || sample.Time == "" {
		t.Fatalf("sample = %+v", sample)
	}

	// range changed behind the source's back
	if err := s.WriteRegister(qmc5883p.RegControl2, byte(qmc5883p.Range30G)<<2); err != nil {
		t.Fatal(err)
	}
	sample, err = s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if sample.Bx != 3.75 || sample.Range != "±30G" {
		t.Fatalf("after range change: bx=%v range=%s", sample.Bx, sample.Range)
	}

	s.SetCalibration(&mag.Calibration{Offset: mag.Vec3{X: 0.75}})
	sample, err = s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if sample.Bx != 3 || sample.X != 3750 {
		t.Fatalf("calibrated bx=%v raw x=%d", sample.Bx, sample.X)
	}
}

func TestMagSourceLoadsCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	if err := (&mag.Calibration{SchemaVersion: 1, Offset: mag.Vec3{Y: 0.5}}).Save(path); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.MagCalibrationFile = path
	s, err := NewMagSourceOnBus(newChipBus(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	sample, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if sample.By != -0.5 {
		t.Fatalf("by = %v, want -0.5", sample.By)
	}

	cfg.MagCalibrationFile = filepath.Join(t.TempDir(), "missing.json")
	if _, err := NewMagSourceOnBus(newChipBus(), cfg); err == nil {
		t.Fatal("expected error for a missing calibration file")
	}
}

func TestMagSourceRegisterAccess(t *testing.T) {
	b := newChipBus()
	s, err := NewMagSourceOnBus(b, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteRegister(qmc5883p.RegStatus, 0xFF); err == nil {
		t.Fatal("STATUS must not be writable")
	}
	if err := s.WriteRegister(0x42, 0xFF); err == nil {
		t.Fatal("unknown register must not be writable")
	}
	if err := s.WriteRegister(qmc5883p.RegControl1, 0x5A); err != nil {
		t.Fatal(err)
	}
	v, err := s.ReadRegister(qmc5883p.RegControl1)
	if err != nil || v != 0x5A {
		t.Fatalf("ReadRegister = 0x%02X, %v", v, err)
	}

	all, err := s.ReadAllRegisters()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(QMC5883PRegisterMap()) || all[qmc5883p.RegChipID] != qmc5883p.ChipID {
		t.Fatalf("ReadAllRegisters = %v", all)
	}
	exp, err := s.ExportRegisterConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(exp) != 2 || exp[qmc5883p.RegControl1] != 0x5A {
		t.Fatalf("ExportRegisterConfig = %v", exp)
	}
}

func TestMagSourceResetAndSelfTest(t *testing.T) {
	b := newChipBus()
	cfg := testConfig()
	s, err := NewMagSourceOnBus(b, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SelfTest(); err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
	b.regs[qmc5883p.RegControl1] = 0 // what a reset does to the chip
	if err := s.SoftReset(cfg.QMC); err != nil {
		t.Fatalf("SoftReset: %v", err)
	}
	got, err := s.Config()
	if err != nil || got != cfg.QMC {
		t.Fatalf("config after reset = %+v, %v", got, err)
	}
}

func TestMagSourceClose(t *testing.T) {
	b := newChipBus()
	s, err := NewMagSourceOnBus(b, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	s.bus = b
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !b.closed {
		t.Fatal("owned bus not closed")
	}
	if b.regs[qmc5883p.RegControl1]&0x03 != byte(qmc5883p.Suspend) {
		t.Fatalf("chip not suspended: CONTROL1 = 0x%02X", b.regs[qmc5883p.RegControl1])
	}
}

func TestRegisterMap(t *testing.T) {
	seen := map[byte]bool{}
	for _, r := range QMC5883PRegisterMap() {
		if seen[r.Address] {
			t.Fatalf("duplicate register 0x%02X", r.Address)
		}
		seen[r.Address] = true
	}
	for _, addr := range []byte{qmc5883p.RegChipID, qmc5883p.RegStatus, qmc5883p.RegControl1, qmc5883p.RegControl2} {
		if !seen[addr] {
			t.Fatalf("register 0x%02X missing", addr)
		}
	}
}

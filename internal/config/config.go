package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/compass/internal/qmc5883p"
)

// DefaultPath is where the tools look for their configuration.
const DefaultPath = "compass_config.txt"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicMag     string
	TopicHeading string

	// QMC5883P Hardware
	QMCI2CBus      string // periph bus name, "" = first available
	QMCI2CAddr     uint16
	QMCI2CSpeedKHz int // 0 = leave the bus speed alone

	// QMC5883P measurement settings
	QMC qmc5883p.Config

	// QMC5883P timing
	QMCResetDelayMS    int
	QMCSelfTestDelayMS int
	QMCSelfTestOnStart bool

	// Producer timing
	QMCSampleInterval int // milliseconds

	// Heading / calibration
	MagDeclinationDeg  float64
	MagCalibrationFile string

	// Web Server
	WebServerPort     int
	RegisterDebugPort int

	// Display
	DisplayUpdateInterval int    // milliseconds
	DisplayContent        string // what to show: "gauss", "heading", "raw"
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot modify it without locking.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value set.
func Default() *Config {
	return &Config{
		MQTTClientIDProducer:  "compass-mag-producer",
		MQTTClientIDConsole:   "compass-console-subscriber",
		MQTTClientIDWeb:       "compass-web-subscriber",
		MQTTClientIDDisplay:   "compass-display",
		TopicMag:              "compass/mag",
		TopicHeading:          "compass/heading",
		QMCI2CAddr:            qmc5883p.DefaultAddr,
		QMC:                   qmc5883p.DefaultConfig,
		QMCResetDelayMS:       int(qmc5883p.DefaultOpts.ResetDelay / time.Millisecond),
		QMCSelfTestDelayMS:    int(qmc5883p.DefaultOpts.SelfTestDelay / time.Millisecond),
		QMCSelfTestOnStart:    true,
		QMCSampleInterval:     100,
		WebServerPort:         8080,
		RegisterDebugPort:     8081,
		DisplayUpdateInterval: 250,
		DisplayContent:        "heading",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_MAG":
		c.TopicMag = value
	case "TOPIC_HEADING":
		c.TopicHeading = value

	// QMC5883P Hardware
	case "QMC_I2C_BUS":
		c.QMCI2CBus = value
	case "QMC_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid QMC_I2C_ADDR %q: %w", value, err)
		}
		if addr > 0x7F {
			return fmt.Errorf("QMC_I2C_ADDR must be a 7-bit address, got 0x%X", addr)
		}
		c.QMCI2CAddr = uint16(addr)
	case "QMC_I2C_SPEED_KHZ":
		khz, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_I2C_SPEED_KHZ %q: %w", value, err)
		}
		if khz < 0 || khz > 400 {
			return fmt.Errorf("QMC_I2C_SPEED_KHZ must be 0-400, got %d", khz)
		}
		c.QMCI2CSpeedKHz = khz

	// QMC5883P measurement settings
	case "QMC_MODE":
		m, err := qmc5883p.ParseMode(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_MODE: %w", err)
		}
		c.QMC.Mode = m
	case "QMC_ODR_HZ":
		hz, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_ODR_HZ %q: %w", value, err)
		}
		o, err := qmc5883p.ODRFromHz(hz)
		if err != nil {
			return fmt.Errorf("invalid QMC_ODR_HZ: %w", err)
		}
		c.QMC.ODR = o
	case "QMC_OSR":
		r, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_OSR %q: %w", value, err)
		}
		o, err := qmc5883p.OSRFromRatio(r)
		if err != nil {
			return fmt.Errorf("invalid QMC_OSR: %w", err)
		}
		c.QMC.OSR = o
	case "QMC_DSR":
		r, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_DSR %q: %w", value, err)
		}
		d, err := qmc5883p.DSRFromRatio(r)
		if err != nil {
			return fmt.Errorf("invalid QMC_DSR: %w", err)
		}
		c.QMC.DSR = d
	case "QMC_RANGE_GAUSS":
		g, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_RANGE_GAUSS %q: %w", value, err)
		}
		r, err := qmc5883p.RangeFromGauss(g)
		if err != nil {
			return fmt.Errorf("invalid QMC_RANGE_GAUSS: %w", err)
		}
		c.QMC.Range = r
	case "QMC_SET_RESET":
		s, err := qmc5883p.ParseSetResetMode(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_SET_RESET: %w", err)
		}
		c.QMC.SetReset = s

	// QMC5883P timing
	case "QMC_RESET_DELAY_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_RESET_DELAY_MS %q: %w", value, err)
		}
		c.QMCResetDelayMS = ms
	case "QMC_SELFTEST_DELAY_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_SELFTEST_DELAY_MS %q: %w", value, err)
		}
		c.QMCSelfTestDelayMS = ms
	case "QMC_SELFTEST_ON_START":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_SELFTEST_ON_START %q: %w", value, err)
		}
		c.QMCSelfTestOnStart = b
	case "QMC_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid QMC_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.QMCSampleInterval = interval

	// Heading / calibration
	case "MAG_DECLINATION_DEG":
		deg, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAG_DECLINATION_DEG %q: %w", value, err)
		}
		if deg < -180 || deg > 180 {
			return fmt.Errorf("MAG_DECLINATION_DEG must be -180..180, got %g", deg)
		}
		c.MagDeclinationDeg = deg
	case "MAG_CALIBRATION_FILE":
		c.MagCalibrationFile = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "REGISTER_DEBUG_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_PORT %q: %w", value, err)
		}
		c.RegisterDebugPort = port

	// Display
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval
	case "DISPLAY_CONTENT":
		switch value {
		case "gauss", "heading", "raw":
		default:
			return fmt.Errorf("DISPLAY_CONTENT must be gauss, heading or raw, got %q", value)
		}
		c.DisplayContent = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.QMCSampleInterval <= 0 {
		return fmt.Errorf("QMC_SAMPLE_INTERVAL must be positive")
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	if c.RegisterDebugPort <= 0 || c.RegisterDebugPort > 65535 {
		return fmt.Errorf("REGISTER_DEBUG_PORT out of range: %d", c.RegisterDebugPort)
	}
	return nil
}

// QMCOpts returns the driver options described by the configuration.
func (c *Config) QMCOpts() qmc5883p.Opts {
	return qmc5883p.Opts{
		Addr:          c.QMCI2CAddr,
		ResetDelay:    time.Duration(c.QMCResetDelayMS) * time.Millisecond,
		SelfTestDelay: time.Duration(c.QMCSelfTestDelayMS) * time.Millisecond,
	}
}

// SampleInterval is QMC_SAMPLE_INTERVAL as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.QMCSampleInterval) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

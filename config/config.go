// Package config loads the controller's YAML configuration: the engine
// tunables the scheduling core reads plus the host-side link, output and
// telemetry settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sparkcore/core"
)

// Config is one configuration file.
type Config struct {
	Engine    core.Config     `yaml:"engine"`
	Serial    SerialConfig    `yaml:"serial"`
	Outputs   OutputsConfig   `yaml:"outputs"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sim       SimConfig       `yaml:"sim"`
}

// SerialConfig is the host end of the link.
type SerialConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// OutputsConfig selects how the simulator or a Linux board drives outputs.
type OutputsConfig struct {
	// Driver is "recorder" or "gpiocdev".
	Driver    string `yaml:"driver"`
	Chip      string `yaml:"chip"`
	Injectors []int  `yaml:"injectors,omitempty"`
	Coils     []int  `yaml:"coils,omitempty"`
	Tacho     int    `yaml:"tacho"` // -1 disables
}

// TelemetryConfig controls status polling and republishing.
type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval"`
	Broker   string        `yaml:"broker"` // empty disables MQTT
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	QoS      byte          `yaml:"qos"`
	Database string        `yaml:"database"` // empty disables recording
}

// SimConfig drives the host simulator.
type SimConfig struct {
	RPM         uint16 `yaml:"rpm"`
	Revolutions int    `yaml:"revolutions"`
	PulseWidth  uint32 `yaml:"pulse_width"` // µs
	InjAngle    uint16 `yaml:"inj_angle"`
	Advance     int16  `yaml:"advance"`
	Dwell       uint32 `yaml:"dwell"` // µs
}

var (
	ErrUnknownDriver = errors.New("unknown output driver")
	ErrOutputLines   = errors.New("gpiocdev driver needs one line per channel")
	ErrQoS           = errors.New("qos must be 0, 1 or 2")
)

// Load parses YAML, rejecting unknown keys, then fills defaults and
// validates. An empty document yields the defaults.
func Load(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads and parses path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data)
}

// Validate checks the engine tunables and the host settings.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	switch c.Outputs.Driver {
	case "recorder":
	case "gpiocdev":
		if len(c.Outputs.Injectors) == 0 || len(c.Outputs.Coils) == 0 {
			return ErrOutputLines
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Outputs.Driver)
	}
	if c.Telemetry.QoS > 2 {
		return ErrQoS
	}
	return nil
}

// Marshal renders the configuration back to YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyDefaults fills zero values a file left out.
func applyDefaults(c *Config) {
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 115200
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = 100 * time.Millisecond
	}
	if c.Outputs.Driver == "" {
		c.Outputs.Driver = "recorder"
	}
	if c.Outputs.Chip == "" {
		c.Outputs.Chip = "gpiochip0"
	}
	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = 500 * time.Millisecond
	}
	if c.Telemetry.Topic == "" {
		c.Telemetry.Topic = "sparkcore/status"
	}
	if c.Sim.RPM == 0 {
		c.Sim.RPM = 3000
	}
	if c.Sim.Revolutions == 0 {
		c.Sim.Revolutions = 20
	}
	if c.Sim.PulseWidth == 0 {
		c.Sim.PulseWidth = 3000
	}
	if c.Sim.Dwell == 0 {
		c.Sim.Dwell = 3000
	}
	if c.Engine.StartupRevolutions == 0 {
		c.Engine.StartupRevolutions = 1
	}
}

// Default is a 4-cylinder four-stroke with paired injection and wasted
// spark, a 6000 RPM full cut and every optional protection off.
func Default() *Config {
	return &Config{
		Engine: core.Config{
			Cylinders:   4,
			Strokes:     core.FourStroke,
			EngineType:  core.EvenFire,
			InjLayout:   core.InjPaired,
			InjPairing:  core.InjPair13_24,
			InjTiming:   true,
			ReqFuel:     86,
			SparkMode:   core.SparkWasted,
			TachoDiv:    1,
			ProtectCut:  core.ProtectCutBoth,
			HardCutType: core.HardCutFull,
			HardRevMode: core.HardRevFixed,
			HardRevLim:  60,
			SoftRevLim:  58,
			SoftLimMax:  20,
			RollingCutTable: core.Table2D{
				Bins:   []int16{-30, -20, -10, 0},
				Values: []int16{0, 30, 60, 100},
			},
			EngineProtectMaxRPM: 30,
			StartupRevolutions:  1,
			UseDwellLimit:       true,
			DwellLimit:          8,
			IgnCrankLock:        true,
			CrankRPM:            4,
		},
		Outputs: OutputsConfig{Tacho: -1},
		Sim: SimConfig{
			InjAngle: 355,
			Advance:  15,
		},
	}
}

// Package config handles YAML configuration parsing for the car.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the file leaves a field unset.
const (
	DefaultListen         = "127.0.0.1:8502"
	DefaultPower          = 100
	DefaultPollInterval   = 200 * time.Millisecond
	DefaultMinDistance    = 20
	DefaultReverseTimeout = 2 * time.Second
)

// Config is the root configuration structure.
type Config struct {
	// Listen is the address of the HTTP status server; empty disables it.
	Listen string      `yaml:"listen"`
	Brick  BrickConfig `yaml:"brick"`
	// Power is the initial target power shared by all pollers (-100..100).
	Power int `yaml:"power"`
	// PollInterval is the upper bound of each poller's jittered sleep.
	PollInterval time.Duration `yaml:"poll_interval"`
	Motors       []MotorConfig `yaml:"motors"`
	TouchSensors []TouchConfig `yaml:"touch_sensors"`
	RangeSensors []RangeConfig `yaml:"range_sensors"`
}

// BrickConfig selects how to reach the brick. Exactly one of SerialPort
// and TCPAddr must be set unless the simulator is in use.
type BrickConfig struct {
	// SerialPort is the RFCOMM serial device, e.g. /dev/rfcomm0.
	SerialPort string `yaml:"serial_port"`
	// TCPAddr is a serial-over-TCP bridge address, e.g. host:2000.
	TCPAddr string `yaml:"tcp_addr"`
	// Name, when set, must match the brick's reported name.
	Name string `yaml:"name"`
}

type MotorConfig struct {
	Name string `yaml:"name"`
	// Port is the output port, A, B or C.
	Port string `yaml:"port"`
	// Brake selects active braking over coasting on stop.
	Brake bool `yaml:"brake"`
}

type TouchConfig struct {
	// Port is the input port, 1 through 4.
	Port int `yaml:"port"`
	// Motor names the motor this sensor starts and stops.
	Motor string `yaml:"motor"`
}

type RangeConfig struct {
	Port  int    `yaml:"port"`
	Motor string `yaml:"motor"`
	// MinDistance is the reversal threshold in centimeters.
	MinDistance int `yaml:"min_distance"`
	// ReverseTimeout is the cooldown after a reversal.
	ReverseTimeout time.Duration `yaml:"reverse_timeout"`
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Power == 0 {
		c.Power = DefaultPower
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	for i := range c.RangeSensors {
		if c.RangeSensors[i].MinDistance == 0 {
			c.RangeSensors[i].MinDistance = DefaultMinDistance
		}
		if c.RangeSensors[i].ReverseTimeout == 0 {
			c.RangeSensors[i].ReverseTimeout = DefaultReverseTimeout
		}
	}
}

func (c *Config) validate() error {
	if c.Power < -100 || c.Power > 100 {
		return fmt.Errorf("power %d out of range -100..100", c.Power)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if len(c.Motors) == 0 {
		return fmt.Errorf("at least one motor must be configured")
	}
	motors := make(map[string]bool, len(c.Motors))
	for _, m := range c.Motors {
		if m.Name == "" {
			return fmt.Errorf("motor on port %q has no name", m.Port)
		}
		if motors[m.Name] {
			return fmt.Errorf("duplicate motor name %q", m.Name)
		}
		motors[m.Name] = true
		switch m.Port {
		case "A", "B", "C":
		default:
			return fmt.Errorf("motor %q: invalid port %q", m.Name, m.Port)
		}
	}
	for _, s := range c.TouchSensors {
		if s.Port < 1 || s.Port > 4 {
			return fmt.Errorf("touch sensor: invalid port %d", s.Port)
		}
		if !motors[s.Motor] {
			return fmt.Errorf("touch sensor on port %d: unknown motor %q", s.Port, s.Motor)
		}
	}
	for _, s := range c.RangeSensors {
		if s.Port < 1 || s.Port > 4 {
			return fmt.Errorf("range sensor: invalid port %d", s.Port)
		}
		if !motors[s.Motor] {
			return fmt.Errorf("range sensor on port %d: unknown motor %q", s.Port, s.Motor)
		}
		if s.MinDistance < 0 {
			return fmt.Errorf("range sensor on port %d: negative min_distance", s.Port)
		}
	}
	return nil
}

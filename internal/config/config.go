package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cjeanneret/stepramp/internal/stepgen"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// Motion profiles.
const (
	ProfileRamp     = "ramp"
	ProfileConstant = "constant"
)

// AxisConfig holds the wiring and mechanics of the driven axis.
type AxisConfig struct {
	StepPin       int  `yaml:"step_pin" json:"step_pin"`
	DirPin        int  `yaml:"dir_pin" json:"dir_pin"`
	EnablePin     int  `yaml:"enable_pin" json:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	InvertDir     bool `yaml:"invert_dir" json:"invert_dir"`
	StepsPerRev   int  `yaml:"steps_per_rev" json:"steps_per_rev"`
	Microstepping int  `yaml:"microstepping" json:"microstepping"`
	PulseWidthUs  int  `yaml:"pulse_width_us" json:"pulse_width_us"` // STEP high time
}

// MotionConfig holds the speed profile. Limits are in pulses.
type MotionConfig struct {
	Profile      string  `yaml:"profile" json:"profile"`     // "ramp" or "constant"
	MaxSpeed     int32   `yaml:"max_speed" json:"max_speed"` // pulses/s
	Accel        *uint32 `yaml:"accel" json:"accel"`         // pulses/s², 0 = no ramp
	ForwardLimit *int32  `yaml:"forward_limit" json:"forward_limit"`
	ReverseLimit *int32  `yaml:"reverse_limit" json:"reverse_limit"`
}

// DefaultsConfig contains runtime switches.
type DefaultsConfig struct {
	DebugLevel  int    `yaml:"debug_level" json:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	GPIOBackend string `yaml:"gpio_backend" json:"gpio_backend"` // "rpio" or "periph"
	MockGPIO    bool   `yaml:"mock_gpio" json:"mock_gpio"`       // use mock GPIO (true=dev/test, false=real hardware)
}

// Config aggregates all application configuration.
type Config struct {
	Axis     AxisConfig     `yaml:"axis" json:"axis"`
	Motion   MotionConfig   `yaml:"motion" json:"motion"`
	Defaults DefaultsConfig `yaml:"defaults" json:"defaults"`
}

// ValidateConfigPath accepts only *.yaml files directly inside a configs/
// directory, with no parent references.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks required fields and fills defaults.
func (c *Config) validate() error {
	a := &c.Axis
	if a.StepPin <= 0 {
		return fmt.Errorf("axis.step_pin is required")
	}
	if a.DirPin <= 0 {
		return fmt.Errorf("axis.dir_pin is required")
	}
	if a.StepPin == a.DirPin || a.StepPin == a.EnablePin || a.DirPin == a.EnablePin {
		return fmt.Errorf("axis pins must be distinct (step=%d dir=%d enable=%d)", a.StepPin, a.DirPin, a.EnablePin)
	}
	if a.EnablePin < 0 {
		return fmt.Errorf("axis.enable_pin must be >= 0, got %d", a.EnablePin)
	}
	if a.StepsPerRev <= 0 {
		a.StepsPerRev = 200 // 1.8° motor
	}
	if a.Microstepping <= 0 {
		a.Microstepping = 1
	}
	if a.PulseWidthUs <= 0 {
		a.PulseWidthUs = 2
	}

	m := &c.Motion
	switch m.Profile {
	case "":
		m.Profile = ProfileRamp
	case ProfileRamp, ProfileConstant:
	default:
		return fmt.Errorf("motion.profile must be %q or %q, got %q", ProfileRamp, ProfileConstant, m.Profile)
	}
	if m.MaxSpeed < 0 {
		return fmt.Errorf("motion.max_speed must be > 0, got %d", m.MaxSpeed)
	}
	if m.MaxSpeed == 0 {
		m.MaxSpeed = stepgen.DefaultMaxSpeed
	}
	if m.Accel == nil {
		accel := stepgen.DefaultAccel
		m.Accel = &accel
	}
	if m.ForwardLimit == nil {
		fwd := stepgen.DefaultForwardLimit
		m.ForwardLimit = &fwd
	}
	if m.ReverseLimit == nil {
		rev := stepgen.DefaultReverseLimit
		m.ReverseLimit = &rev
	}
	if *m.ReverseLimit > *m.ForwardLimit {
		return fmt.Errorf("motion.reverse_limit (%d) must be <= forward_limit (%d)", *m.ReverseLimit, *m.ForwardLimit)
	}

	d := &c.Defaults
	if d.DebugLevel < 0 || d.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", d.DebugLevel)
	}
	switch d.GPIOBackend {
	case "":
		d.GPIOBackend = "rpio"
	case "rpio", "periph":
	default:
		return fmt.Errorf("defaults.gpio_backend must be \"rpio\" or \"periph\", got %q", d.GPIOBackend)
	}
	return nil
}

// Settings returns the motion settings for a stepgen engine.
func (c *Config) Settings() stepgen.Settings {
	s := stepgen.DefaultSettings()
	s.MaxSpeed = c.Motion.MaxSpeed
	if c.Motion.Accel != nil {
		s.Accel = *c.Motion.Accel
	}
	if c.Motion.ForwardLimit != nil {
		s.ForwardLimit = *c.Motion.ForwardLimit
	}
	if c.Motion.ReverseLimit != nil {
		s.ReverseLimit = *c.Motion.ReverseLimit
	}
	return s
}

// Ramped reports whether moves use the accelerating engine.
func (c *Config) Ramped() bool {
	return c.Motion.Profile != ProfileConstant
}

// PulseWidth returns the STEP high time.
func (c *Config) PulseWidth() time.Duration {
	return time.Duration(c.Axis.PulseWidthUs) * time.Microsecond
}

// StepsPerRev returns the number of pulses per output shaft revolution,
// microstepping included.
func (c *Config) StepsPerRev() int {
	return c.Axis.StepsPerRev * c.Axis.Microstepping
}

// GPIOBackend returns the GPIO backend name, "mock" when MockGPIO is set.
func (c *Config) GPIOBackend() string {
	if c.Defaults.MockGPIO {
		return "mock"
	}
	return c.Defaults.GPIOBackend
}

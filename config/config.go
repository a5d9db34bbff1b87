package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"lautenbacher.net/ppmswitch/ppm"
)

const CONFILE = "ppmswitch.yml"

// MaxSoftPWMFrequency is the highest PWM frequency accepted for the
// gpiocdev backend, which has no hardware PWM and toggles the line with
// sleeps.
const MaxSoftPWMFrequency = 500

const (
	GPIOPeriph   = "periph.io"
	GPIORpio     = "rpio"
	GPIOGpiocdev = "gpiocdev"
)

type Config struct {
	RealHW      bool              `yaml:"-"`
	ShowPulses  bool              `yaml:"-"`
	Configfile  string            `yaml:"-"`
	Switch      SwitchConfig      `yaml:"Switch"`
	Hardware    HardwareConfig    `yaml:"Hardware"`
	Simulation  SimulationConfig  `yaml:"Simulation"`
	Diagnostics DiagnosticsConfig `yaml:"Diagnostics"`
	Web         WebConfig         `yaml:"Web"`
	Logging     struct {
		TUI LogConfig `yaml:"TUI"`
		HW  LogConfig `yaml:"HW"`
	} `yaml:"Logging"`
}

type SwitchConfig struct {
	CalibrationSamples int           `yaml:"CalibrationSamples"`
	AveragingWindow    int           `yaml:"AveragingWindow"`
	DeflectionFraction ppm.Fraction  `yaml:"DeflectionFraction"`
	Sampler            string        `yaml:"Sampler"`
	PWMCompare         uint8         `yaml:"PWMCompare"`
	SettleDelay        time.Duration `yaml:"SettleDelay"`
}

type HardwareConfig struct {
	GPIOLibrary  string `yaml:"GPIOLibrary"`
	Chip         string `yaml:"Chip"`
	InputPin     int    `yaml:"InputPin"`
	ForwardPin   int    `yaml:"ForwardPin"`
	BackwardPin  int    `yaml:"BackwardPin"`
	PWMPin       int    `yaml:"PWMPin"`
	PWMFrequency int    `yaml:"PWMFrequency"`
	SamplerCPU   int    `yaml:"SamplerCPU"`
}

// SimulationConfig describes the PPM signal generated in TUI mode.
type SimulationConfig struct {
	FramePeriod  time.Duration `yaml:"FramePeriod"`
	MinPulse     time.Duration `yaml:"MinPulse"`
	NeutralPulse time.Duration `yaml:"NeutralPulse"`
	MaxPulse     time.Duration `yaml:"MaxPulse"`
	StickStep    float64       `yaml:"StickStep"`
}

type DiagnosticsConfig struct {
	MQTT   MQTTConfig   `yaml:"MQTT"`
	Serial SerialConfig `yaml:"Serial"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"Enabled"`
	Broker      string `yaml:"Broker"`
	ClientID    string `yaml:"ClientID"`
	Topic       string `yaml:"Topic"`
	SampleEvery int    `yaml:"SampleEvery"`
}

type SerialConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Port    string `yaml:"Port"`
	Baud    int    `yaml:"Baud"`
}

// WebConfig enables the HTTP API for status and runtime configuration.
type WebConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Addr    string `yaml:"Addr"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// Default returns the classic receiver setup: five
// calibration pulses, no averaging, toggling at 40% deflection and a
// fixed radar PWM compare value of 10.
func Default() Config {
	var conf Config
	conf.Switch = SwitchConfig{
		CalibrationSamples: 5,
		AveragingWindow:    1,
		DeflectionFraction: ppm.FortyPercent,
		Sampler:            string(ppm.StrategyEdge),
		PWMCompare:         10,
		SettleDelay:        time.Second,
	}
	conf.Hardware = HardwareConfig{
		GPIOLibrary:  GPIOPeriph,
		Chip:         "gpiochip0",
		InputPin:     17,
		ForwardPin:   22,
		BackwardPin:  23,
		PWMPin:       18,
		PWMFrequency: 17500,
		SamplerCPU:   -1,
	}
	conf.Simulation = SimulationConfig{
		FramePeriod:  20 * time.Millisecond,
		MinPulse:     1000 * time.Microsecond,
		NeutralPulse: 1500 * time.Microsecond,
		MaxPulse:     2000 * time.Microsecond,
		StickStep:    0.25,
	}
	conf.Diagnostics.MQTT = MQTTConfig{
		ClientID:    "ppmswitch",
		Topic:       "ppmswitch",
		SampleEvery: 50,
	}
	conf.Diagnostics.Serial = SerialConfig{Baud: 115200}
	conf.Web = WebConfig{Addr: ":8080"}
	conf.Logging.TUI = LogConfig{Level: "INFO", Format: "text"}
	conf.Logging.HW = LogConfig{Level: "INFO", Format: "text"}
	return conf
}

// ReadConfig reads the YAML file cfile on top of the defaults and
// validates the result.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return &conf, nil
}

// Validate checks the configuration for values the switch can't work
// with.
func (c *Config) Validate() error {
	sw := c.Switch
	if sw.CalibrationSamples < 1 {
		return fmt.Errorf("Switch.CalibrationSamples must be at least 1, got %d", sw.CalibrationSamples)
	}
	if sw.AveragingWindow < 1 {
		return fmt.Errorf("Switch.AveragingWindow must be at least 1, got %d", sw.AveragingWindow)
	}
	f := sw.DeflectionFraction
	if f.Denominator == 0 || f.Numerator == 0 || f.Numerator > f.Denominator {
		return fmt.Errorf("Switch.DeflectionFraction must be between 0 and 1 (exclusive of 0), got %s", f)
	}
	switch ppm.Strategy(sw.Sampler) {
	case ppm.StrategyEdge, ppm.StrategyPoll:
	default:
		return fmt.Errorf("Switch.Sampler must be %q or %q, got %q", ppm.StrategyEdge, ppm.StrategyPoll, sw.Sampler)
	}
	if sw.SettleDelay < 0 {
		return fmt.Errorf("Switch.SettleDelay must not be negative, got %s", sw.SettleDelay)
	}

	if err := c.Hardware.validate(); err != nil {
		return err
	}

	sim := c.Simulation
	if !(0 < sim.MinPulse && sim.MinPulse < sim.NeutralPulse && sim.NeutralPulse < sim.MaxPulse && sim.MaxPulse < sim.FramePeriod) {
		return fmt.Errorf("Simulation pulses must satisfy 0 < MinPulse < NeutralPulse < MaxPulse < FramePeriod")
	}
	if sim.StickStep <= 0 || sim.StickStep > 1 {
		return fmt.Errorf("Simulation.StickStep must be in (0, 1], got %v", sim.StickStep)
	}

	mqtt := c.Diagnostics.MQTT
	if mqtt.Enabled && (mqtt.Broker == "" || mqtt.Topic == "") {
		return fmt.Errorf("Diagnostics.MQTT needs a Broker and a Topic when enabled")
	}
	if mqtt.SampleEvery < 0 {
		return fmt.Errorf("Diagnostics.MQTT.SampleEvery must not be negative, got %d", mqtt.SampleEvery)
	}
	serial := c.Diagnostics.Serial
	if serial.Enabled && (serial.Port == "" || serial.Baud <= 0) {
		return fmt.Errorf("Diagnostics.Serial needs a Port and a positive Baud when enabled")
	}

	if c.Web.Enabled && c.Web.Addr == "" {
		return fmt.Errorf("Web.Addr is required when the web API is enabled")
	}

	for name, lc := range map[string]LogConfig{"TUI": c.Logging.TUI, "HW": c.Logging.HW} {
		switch strings.ToLower(lc.Format) {
		case "", "text", "json":
		default:
			return fmt.Errorf("Logging.%s.Format must be text or json, got %q", name, lc.Format)
		}
	}
	return nil
}

func (h HardwareConfig) validate() error {
	switch h.GPIOLibrary {
	case GPIOPeriph, GPIORpio:
	case GPIOGpiocdev:
		if h.Chip == "" {
			return fmt.Errorf("Hardware.Chip is required for %s", GPIOGpiocdev)
		}
	default:
		return fmt.Errorf("Hardware.GPIOLibrary must be one of %s, %s, %s, got %q", GPIOPeriph, GPIORpio, GPIOGpiocdev, h.GPIOLibrary)
	}
	pins := map[string]int{
		"InputPin":    h.InputPin,
		"ForwardPin":  h.ForwardPin,
		"BackwardPin": h.BackwardPin,
		"PWMPin":      h.PWMPin,
	}
	seen := make(map[int]string, len(pins))
	for _, name := range []string{"InputPin", "ForwardPin", "BackwardPin", "PWMPin"} {
		pin := pins[name]
		if pin < 0 {
			return fmt.Errorf("Hardware.%s must not be negative, got %d", name, pin)
		}
		if other, dup := seen[pin]; dup {
			return fmt.Errorf("Hardware.%s and Hardware.%s both use pin %d", other, name, pin)
		}
		seen[pin] = name
	}
	if h.PWMFrequency <= 0 {
		return fmt.Errorf("Hardware.PWMFrequency must be positive, got %d", h.PWMFrequency)
	}
	if h.GPIOLibrary == GPIOGpiocdev && h.PWMFrequency > MaxSoftPWMFrequency {
		return fmt.Errorf("Hardware.PWMFrequency must not exceed %d Hz with %s (software PWM), got %d",
			MaxSoftPWMFrequency, GPIOGpiocdev, h.PWMFrequency)
	}
	return nil
}

// SwitchConfig converts the Switch section into the parameters of the
// core switch.
func (c *Config) SwitchConfig() ppm.SwitchConfig {
	return ppm.SwitchConfig{
		CalibrationSamples: c.Switch.CalibrationSamples,
		AveragingWindow:    c.Switch.AveragingWindow,
		Fraction:           c.Switch.DeflectionFraction,
		Strategy:           ppm.Strategy(c.Switch.Sampler),
		SamplerCPU:         c.Hardware.SamplerCPU,
	}
}

// LogConfig returns the logging section for the current mode.
func (c *Config) LogConfig() LogConfig {
	if c.RealHW {
		return c.Logging.HW
	}
	return c.Logging.TUI
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/ppmswitch/ppm"
)

const validSwitch = `
Switch:
  CalibrationSamples: 10
  AveragingWindow: 10
  DeflectionFraction:
    Numerator: 5
    Denominator: 10
  Sampler: poll
  PWMCompare: 12
  SettleDelay: 500ms
`

const validHardware = `
Hardware:
  GPIOLibrary: rpio
  Chip: gpiochip0
  InputPin: 4
  ForwardPin: 5
  BackwardPin: 6
  PWMPin: 12
  PWMFrequency: 1000
  SamplerCPU: 3
`

const validLogging = `
Logging:
  TUI:
    Level: "DEBUG"
    Format: "text"
    File: "/tmp/ppmswitch-tui.log"
  HW:
    Level: "WARN"
    Format: "json"
    File: "/var/log/ppmswitch-hw.log"
`

func getBaseConfig() string {
	return validSwitch + validHardware + validLogging
}

func createConfigFile(t *testing.T, configData string) string {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "ppmswitch.yml")
	if err := os.WriteFile(configFile, []byte(configData), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configFile
}

func TestReadConfig(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())

	conf, err := ReadConfig(configFile)
	require.NoError(t, err, "ReadConfig should not return an error")

	assert.Equal(t, 10, conf.Switch.CalibrationSamples)
	assert.Equal(t, 10, conf.Switch.AveragingWindow)
	assert.Equal(t, ppm.Half, conf.Switch.DeflectionFraction)
	assert.Equal(t, "poll", conf.Switch.Sampler)
	assert.Equal(t, uint8(12), conf.Switch.PWMCompare)
	assert.Equal(t, 500*time.Millisecond, conf.Switch.SettleDelay)

	assert.Equal(t, GPIORpio, conf.Hardware.GPIOLibrary)
	assert.Equal(t, 4, conf.Hardware.InputPin)
	assert.Equal(t, 12, conf.Hardware.PWMPin)
	assert.Equal(t, configFile, conf.Configfile)

	assert.Equal(t, "WARN", conf.Logging.HW.Level)
	assert.Equal(t, "json", conf.Logging.HW.Format)
	assert.Equal(t, "/tmp/ppmswitch-tui.log", conf.Logging.TUI.File)

	sw := conf.SwitchConfig()
	assert.Equal(t, ppm.StrategyPoll, sw.Strategy)
	assert.Equal(t, ppm.Half, sw.Fraction)
	assert.Equal(t, 3, sw.SamplerCPU)
}

func TestReadConfig_Defaults(t *testing.T) {
	configFile := createConfigFile(t, "Logging:\n  TUI:\n    Level: INFO\n")

	conf, err := ReadConfig(configFile)
	require.NoError(t, err)

	assert.Equal(t, 5, conf.Switch.CalibrationSamples)
	assert.Equal(t, 1, conf.Switch.AveragingWindow)
	assert.Equal(t, ppm.FortyPercent, conf.Switch.DeflectionFraction)
	assert.Equal(t, "edge", conf.Switch.Sampler)
	assert.Equal(t, uint8(10), conf.Switch.PWMCompare)
	assert.Equal(t, time.Second, conf.Switch.SettleDelay)
	assert.Equal(t, GPIOPeriph, conf.Hardware.GPIOLibrary)
	assert.Equal(t, -1, conf.Hardware.SamplerCPU)
	assert.Equal(t, 20*time.Millisecond, conf.Simulation.FramePeriod)
	assert.Equal(t, 1500*time.Microsecond, conf.Simulation.NeutralPulse)
	assert.False(t, conf.Diagnostics.MQTT.Enabled)
}

func TestReadConfig_ShippedFile(t *testing.T) {
	conf, err := ReadConfig(filepath.Join("..", CONFILE))
	require.NoError(t, err)
	assert.Equal(t, ppm.FortyPercent, conf.Switch.DeflectionFraction)
	assert.Equal(t, "INFO", conf.Logging.TUI.Level, "debug output floods the simulation log pane")
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "can't open config file")
}

func TestReadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		old     string
		new     string
		message string
	}{
		{"no calibration samples", "CalibrationSamples: 10", "CalibrationSamples: 0", "CalibrationSamples must be at least 1"},
		{"no averaging window", "AveragingWindow: 10", "AveragingWindow: 0", "AveragingWindow must be at least 1"},
		{"fraction above one", "Numerator: 5", "Numerator: 11", "DeflectionFraction must be between 0 and 1"},
		{"zero denominator", "Denominator: 10", "Denominator: 0", "DeflectionFraction must be between 0 and 1"},
		{"unknown sampler", "Sampler: poll", "Sampler: sonar", "Switch.Sampler must be"},
		{"negative settle delay", "SettleDelay: 500ms", "SettleDelay: -1s", "SettleDelay must not be negative"},
		{"unknown gpio library", "GPIOLibrary: rpio", "GPIOLibrary: wiringpi", "GPIOLibrary must be one of"},
		{"shared pin", "BackwardPin: 6", "BackwardPin: 5", "both use pin 5"},
		{"negative pin", "PWMPin: 12", "PWMPin: -12", "PWMPin must not be negative"},
		{"no pwm frequency", "PWMFrequency: 1000", "PWMFrequency: 0", "PWMFrequency must be positive"},
		{"unknown log format", `Format: "json"`, `Format: "xml"`, "Logging.HW.Format must be text or json"},
		{"pwm compare out of range", "PWMCompare: 12", "PWMCompare: 300", "can't decode config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configData := strings.Replace(getBaseConfig(), tt.old, tt.new, 1)
			require.NotEqual(t, getBaseConfig(), configData, "replacement must change the config")

			_, err := ReadConfig(createConfigFile(t, configData))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidate_Diagnostics(t *testing.T) {
	conf := Default()
	conf.Diagnostics.MQTT.Enabled = true
	conf.Diagnostics.MQTT.Broker = ""
	assert.ErrorContains(t, conf.Validate(), "Diagnostics.MQTT needs a Broker")

	conf = Default()
	conf.Diagnostics.Serial.Enabled = true
	assert.ErrorContains(t, conf.Validate(), "Diagnostics.Serial needs a Port")

	conf.Diagnostics.Serial.Port = "/dev/ttyAMA0"
	assert.NoError(t, conf.Validate())
}

func TestValidate_Simulation(t *testing.T) {
	conf := Default()
	conf.Simulation.MaxPulse = conf.Simulation.NeutralPulse
	assert.ErrorContains(t, conf.Validate(), "Simulation pulses must satisfy")

	conf = Default()
	conf.Simulation.StickStep = 0
	assert.ErrorContains(t, conf.Validate(), "StickStep")
}

func TestValidate_GpiocdevNeedsChip(t *testing.T) {
	conf := Default()
	conf.Hardware.GPIOLibrary = GPIOGpiocdev
	conf.Hardware.Chip = ""
	assert.ErrorContains(t, conf.Validate(), "Hardware.Chip is required")
}

func TestLogConfig(t *testing.T) {
	conf := Default()
	conf.Logging.TUI.Level = "DEBUG"
	conf.Logging.HW.Level = "WARN"
	assert.Equal(t, "DEBUG", conf.LogConfig().Level)
	conf.RealHW = true
	assert.Equal(t, "WARN", conf.LogConfig().Level)
}

func TestValidate_Web(t *testing.T) {
	conf := Default()
	assert.Equal(t, ":8080", conf.Web.Addr)
	conf.Web.Enabled = true
	conf.Web.Addr = ""
	assert.ErrorContains(t, conf.Validate(), "Web.Addr is required")
}

func TestValidate_SoftPWMFrequency(t *testing.T) {
	conf := Default()
	conf.Hardware.GPIOLibrary = GPIOGpiocdev
	assert.ErrorContains(t, conf.Validate(), "must not exceed 500 Hz with gpiocdev")

	conf.Hardware.PWMFrequency = MaxSoftPWMFrequency
	assert.NoError(t, conf.Validate())

	conf.Hardware.GPIOLibrary = GPIORpio
	conf.Hardware.PWMFrequency = 17500
	assert.NoError(t, conf.Validate(), "hardware PWM backends are not limited")
}

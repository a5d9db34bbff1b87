package config

// RuntimeConfig is the part of the configuration that may be changed
// through the web API. Saving it rewrites the config file, which restarts
// the switch with a fresh calibration.
type RuntimeConfig struct {
	Switch      SwitchConfig      `yaml:"Switch" json:"Switch"`
	Diagnostics DiagnosticsConfig `yaml:"Diagnostics" json:"Diagnostics"`
}

func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{Switch: c.Switch, Diagnostics: c.Diagnostics}
}

// ApplyRuntime copies rc over the runtime part of c.
func (c *Config) ApplyRuntime(rc RuntimeConfig) {
	c.Switch = rc.Switch
	c.Diagnostics = rc.Diagnostics
}

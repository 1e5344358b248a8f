package pump

import "strings"

// Config is one device's immutable, load-time configuration. It is built by
// internal/config and never mutated after the supervisor starts.
type Config struct {
	DisplayName  string `yaml:"display_name" validate:"required"`
	ID           string `yaml:"id"`
	MAC          string `yaml:"mac" validate:"required"`
	FlowMin      uint8  `yaml:"flow_min" validate:"lte=100"`
	FlowMax      uint8  `yaml:"flow_max" validate:"lte=100,gtefield=FlowMin"`
	FrequencyMin uint8  `yaml:"frequency_min"`
	FrequencyMax uint8  `yaml:"frequency_max" validate:"gtefield=FrequencyMin"`

	// PumpIndex is assigned by the supervisor from configuration order, not
	// loaded from YAML.
	PumpIndex int `yaml:"-"`
}

const (
	defaultFlowMin      = 30
	defaultFlowMax      = 100
	defaultFrequencyMin = 5
	defaultFrequencyMax = 20
)

// ApplyDefaults fills in the bounds the original bridge treats as defaults
// and derives ID from DisplayName when the config omits it.
func (c *Config) ApplyDefaults() {
	if c.FlowMin == 0 && c.FlowMax == 0 {
		c.FlowMin = defaultFlowMin
		c.FlowMax = defaultFlowMax
	}
	if c.FrequencyMin == 0 && c.FrequencyMax == 0 {
		c.FrequencyMin = defaultFrequencyMin
		c.FrequencyMax = defaultFrequencyMax
	}
	if c.ID == "" {
		c.ID = SlugFromDisplayName(c.DisplayName)
	}
}

// SlugFromDisplayName lowercases a display name and replaces spaces and
// hyphens with underscores, producing a stable configuration id.
func SlugFromDisplayName(name string) string {
	lower := strings.ToLower(name)
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	return replacer.Replace(lower)
}

// ClampFlow clamps v into [FlowMin, FlowMax].
func (c *Config) ClampFlow(v int) uint8 {
	return clamp(v, int(c.FlowMin), int(c.FlowMax))
}

// ClampFrequency clamps v into [FrequencyMin, FrequencyMax].
func (c *Config) ClampFrequency(v int) uint8 {
	return clamp(v, int(c.FrequencyMin), int(c.FrequencyMax))
}

func clamp(v, min, max int) uint8 {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return uint8(v)
}

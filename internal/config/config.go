// Package config loads and validates the bridge's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wavepump/pumpbridge/internal/pump"
)

// ErrConfigMissing is returned by Load when no config file could be found.
// The caller (cmd/pumpbridge) is responsible for the exit-1 behavior; Load
// itself only writes the example file out.
var ErrConfigMissing = errors.New("config: no configuration file found, an example was written")

// defaultPaths are searched in order when no explicit path is given.
var defaultPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./pumpbridge.yaml",
	"./pumpbridge.yml",
	"/etc/pumpbridge/config.yaml",
}

// Config is the top-level document: the broker block plus the set of pump
// configurations.
type Config struct {
	Broker  BrokerConfig  `yaml:"mqtt"`
	Pumps   []pump.Config `yaml:"pumps" validate:"dive"`
	Logging LoggingConfig `yaml:"logging"`
	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BrokerConfig describes how to reach the MQTT broker and the topic
// namespace the adapter publishes/subscribes under.
type BrokerConfig struct {
	Host            string `yaml:"host" validate:"required"`
	Port            int    `yaml:"port" validate:"required,min=1,max=65535"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	TopicPrefix     string `yaml:"topic_prefix"`
}

// LoggingConfig mirrors the teacher's logger.Config shape.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// APIConfig controls the optional REST/WS status surface.
type APIConfig struct {
	Enabled bool       `yaml:"enabled"`
	Port    int        `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig gates the status API behind an API key or JWT.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	JWTSecret string   `yaml:"jwt_secret"`
	APIKeys   []string `yaml:"api_keys"`
}

// MetricsConfig is decoded from the metrics block. The status server
// registers /metrics whenever the API is enabled; Enabled does not change
// that.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load resolves path (or searches defaultPaths if empty), decodes the YAML
// document, applies defaults, and validates it. If no file is found, an
// example config is written (to path when one was given, otherwise to the
// first default path) and ErrConfigMissing is returned.
func Load(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, writeExample(path)
		}
		return loadFile(path)
	}

	for _, p := range defaultPaths {
		if _, err := os.Stat(p); err == nil {
			return loadFile(p)
		}
	}
	return nil, writeExample(defaultPaths[0])
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = 1883
	}
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = "pumpbridge"
	}
	if cfg.Broker.DiscoveryPrefix == "" {
		cfg.Broker.DiscoveryPrefix = "homeassistant"
	}
	if cfg.Broker.TopicPrefix == "" {
		cfg.Broker.TopicPrefix = "jebao"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	for i := range cfg.Pumps {
		cfg.Pumps[i].ApplyDefaults()
		cfg.Pumps[i].PumpIndex = i
	}
}

// Validate runs struct-tag validation plus the cross-element checks
// validator.v10 cannot express: unique, non-empty pump ids.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	seen := make(map[string]bool, len(cfg.Pumps))
	for _, p := range cfg.Pumps {
		if p.ID == "" {
			return fmt.Errorf("config: pump %q resolved to an empty id", p.DisplayName)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate pump id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

const exampleConfig = `# pumpbridge configuration

mqtt:
  host: localhost          # MQTT broker host
  port: 1883
  username:                # optional
  password:                # optional
  client_id: pumpbridge
  discovery_prefix: homeassistant  # Home Assistant discovery prefix
  topic_prefix: jebao               # topic namespace for pump state/commands

pumps:
  - display_name: "Wavemaker 1"
    mac: "XX:XX:XX:XX:XX:XX"
    # flow_min: 30
    # flow_max: 100
    # frequency_min: 5
    # frequency_max: 20

  # - display_name: "Wavemaker 2"
  #   mac: "YY:YY:YY:YY:YY:YY"

logging:
  level: info     # debug, info, warn, error
  format: text    # text, json

api:
  enabled: false
  port: 8080
`

func writeExample(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("config: write example to %s: %w", path, err)
	}
	return ErrConfigMissing
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wavepump/pumpbridge/internal/pump"
)

const minimalYAML = `
mqtt:
  host: broker.local
  port: 1883
pumps:
  - display_name: "Left Tank"
    mac: "AA:BB:CC:DD:EE:FF"
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Broker.ClientID != "pumpbridge" {
		t.Errorf("ClientID = %q, want pumpbridge", cfg.Broker.ClientID)
	}
	if cfg.Broker.DiscoveryPrefix != "homeassistant" {
		t.Errorf("DiscoveryPrefix = %q, want homeassistant", cfg.Broker.DiscoveryPrefix)
	}
	if cfg.Broker.TopicPrefix != "jebao" {
		t.Errorf("TopicPrefix = %q, want jebao", cfg.Broker.TopicPrefix)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("logging defaults = %+v, want info/text/stdout", cfg.Logging)
	}
	if len(cfg.Pumps) != 1 {
		t.Fatalf("Pumps = %d, want 1", len(cfg.Pumps))
	}
	if cfg.Pumps[0].ID != "left_tank" {
		t.Errorf("pump ID = %q, want left_tank", cfg.Pumps[0].ID)
	}
	if cfg.Pumps[0].PumpIndex != 0 {
		t.Errorf("PumpIndex = %d, want 0", cfg.Pumps[0].PumpIndex)
	}
}

func TestLoadMissingFileWritesExampleAndReturnsErrConfigMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	_, err := Load(path)
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("err = %v, want ErrConfigMissing", err)
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("expected example config to be written: %v", readErr)
	}
	if len(data) == 0 {
		t.Error("example config is empty")
	}
}

func TestValidateRejectsDuplicatePumpIDs(t *testing.T) {
	cfg := &Config{
		Broker: BrokerConfig{Host: "broker.local", Port: 1883},
		Pumps: []pump.Config{
			{DisplayName: "A", ID: "tank", MAC: "AA:AA:AA:AA:AA:AA"},
			{DisplayName: "B", ID: "tank", MAC: "BB:BB:BB:BB:BB:BB"},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Error("Validate() = nil, want error for duplicate pump ids")
	}
}

func TestValidateRejectsMissingBrokerHost(t *testing.T) {
	cfg := &Config{
		Broker: BrokerConfig{Port: 1883},
	}
	if err := Validate(cfg); err == nil {
		t.Error("Validate() = nil, want error for missing broker host")
	}
}

// Package config loads the gridsim configuration from a YAML or JSON file with
// K_-prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridsim/core/grid"
	"github.com/kilianp07/gridsim/core/metrics"
	"github.com/kilianp07/gridsim/infra/mqtt"
)

type Config struct {
	Simulation SimulationConfig `json:"simulation"`
	Grid       grid.Topology    `json:"grid"`
	Ledger     LedgerConfig     `json:"ledger"`
	Metrics    metrics.Config   `json:"metrics"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Sentry     SentryConfig     `json:"sentry"`
	API        APIConfig        `json:"api"`
}

// Load reads path, applies environment overrides such as
// K_SIMULATION__STEPS=5, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills defaults in every section.
func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	c.Grid.SetDefaults()
	c.Ledger.SetDefaults()
	if c.MQTTEnabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section and joins the errors.
func (c Config) Validate() error {
	errs := []error{
		c.Simulation.Validate(),
		c.Grid.Validate(),
		c.Ledger.Validate(),
		c.Metrics.Validate(),
		c.Sentry.Validate(),
		c.API.Validate(),
	}
	if c.MQTTEnabled() {
		errs = append(errs, c.MQTT.Validate())
	}
	if c.API.Addr != "" && !c.Ledger.Enabled {
		errs = append(errs, errors.New("api.addr requires ledger.enabled"))
	}
	return errors.Join(errs...)
}

// MQTTEnabled reports whether allocation telemetry should be published.
func (c Config) MQTTEnabled() bool { return c.MQTT.Broker != "" }

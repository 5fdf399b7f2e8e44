// Package config loads the application configuration from a YAML or JSON
// file with K_ environment overrides.
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

	"github.com/xuwkk/power-system-operation/core/calibrate"
	"github.com/xuwkk/power-system-operation/core/metrics"
	"github.com/xuwkk/power-system-operation/core/solver"
	"github.com/xuwkk/power-system-operation/infra/logger"
	"github.com/xuwkk/power-system-operation/infra/mqtt"
	"github.com/xuwkk/power-system-operation/infra/store"
)

type Config struct {
	Grid        GridConfig       `json:"grid"`
	Data        DataConfig       `json:"data"`
	Solver      solver.Options   `json:"solver"`
	Calibration calibrate.Config `json:"calibration"`
	Logging     logger.Config    `json:"logging"`
	Metrics     metrics.Config   `json:"metrics"`
	Store       store.Config     `json:"store"`
	MQTT        mqtt.Config      `json:"mqtt"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if cfg.Grid.Path != "" && !filepath.IsAbs(cfg.Grid.Path) {
		cfg.Grid.Path = filepath.Join(filepath.Dir(path), cfg.Grid.Path)
	}
	if cfg.Data.Dir != "" && !filepath.IsAbs(cfg.Data.Dir) {
		cfg.Data.Dir = filepath.Join(filepath.Dir(path), cfg.Data.Dir)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Grid.SetDefaults()
	c.Data.SetDefaults()
	c.Solver = solverDefaults(c.Solver)
	if c.Calibration.Case == "" {
		c.Calibration.Case = c.Grid.Case
	}
	c.Calibration.SetDefaults()
	c.Logging.SetDefaults()
	c.Store.SetDefaults()
	c.MQTT.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	return errors.Join(
		c.Grid.Validate(),
		c.Data.Validate(),
		validateSolver(c.Solver),
		c.Calibration.Validate(),
		c.Logging.Validate(),
		c.Store.Validate(),
		c.MQTT.Validate(),
	)
}

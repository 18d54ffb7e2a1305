// Package config loads Kaya's policy document: the Router's rules and cost
// overrides, per-worker retry policies and deadlines, circuit-breaker
// thresholds, rate limits, budget defaults, and concurrency knobs (§6).
// Missing keys fall back to the defaults documented throughout this file,
// mirroring the teacher's DefaultConfig()-with-yaml-overlay pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all of Kaya's configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Router      RouterConfig      `yaml:"router"`
	Workers     WorkersConfig     `yaml:"workers"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
	Store       StoreConfig       `yaml:"store"`
	Budget      BudgetConfig      `yaml:"budget"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Logging     LoggingConfig     `yaml:"logging"`
	HITL        HITLConfig        `yaml:"hitl"`
}

// LoggingConfig mirrors internal/logging's on-disk shape. internal/logging
// does not read this section: logging.Initialize loads its settings from
// <workspace>/.kaya/policy.json.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// DefaultConfig returns Kaya's defaults, exactly the values named in spec.md.
func DefaultConfig() *Config {
	return &Config{
		Name:    "kaya",
		Version: "1.0.0",

		Router:      DefaultRouterConfig(),
		Workers:     DefaultWorkersConfig(),
		Resilience:  DefaultResilienceConfig(),
		Store:       DefaultStoreConfig(),
		Budget:      DefaultBudgetConfig(),
		Concurrency: DefaultConcurrencyConfig(),
		HITL:        DefaultHITLConfig(),
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads the policy document at path, overlaying it onto the defaults.
// A missing file is not an error — Kaya runs entirely on defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading policy document: %w", err)
	}
	ext := filepath.Ext(path)
	if ext == ".json" {
		if err := yamlOrJSONUnmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing policy document: %w", err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing policy document: %w", err)
	}
	return cfg, nil
}

// yamlOrJSONUnmarshal lets the policy document be authored as JSON too —
// yaml.v3 parses strict JSON just fine since JSON is a YAML subset.
func yamlOrJSONUnmarshal(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

// Package config provides configuration loading for the reference engine.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file name looked up when none is given.
const DefaultConfigFile = "refengine.yaml"

// Config holds static configuration (read-only after init).
type Config struct {
	Store     StoreConfig     `yaml:"store,omitempty"`
	Extractor ExtractorConfig `yaml:"extractor,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means in-memory.
	Path string `yaml:"path,omitempty"`
}

// ExtractorConfig tunes the candidate pipeline.
type ExtractorConfig struct {
	// Chunks enables the lenient noun-phrase pass.
	Chunks bool `yaml:"chunks,omitempty"`
}

// CacheConfig sizes the engine's LRU caches.
type CacheConfig struct {
	IndexEntries   int `yaml:"index_entries,omitempty"`
	RefsEntries    int `yaml:"refs_entries,omitempty"`
	MetricsEntries int `yaml:"metrics_entries,omitempty"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			IndexEntries:   16,
			RefsEntries:    512,
			MetricsEntries: 512,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, falling back to defaults for every
// field the file omits. A missing file is not an error: you get defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("REFENGINE_DB"); p != "" {
		c.Store.Path = p
	}
	if lvl := os.Getenv("REFENGINE_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

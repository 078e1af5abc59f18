// Package config handles comvar.toml host configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up in a directory.
const FileName = "comvar.toml"

// Config represents a comvar.toml file.
type Config struct {
	Locale      Locale      `toml:"locale"`
	Debug       Debug       `toml:"debug"`
	Conformance Conformance `toml:"conformance"`

	// Dir is the directory containing the comvar.toml file (set at load time).
	Dir string `toml:"-"`
}

// Locale configures how string coercion parses and formats values.
type Locale struct {
	DecimalSep   string `toml:"decimal-sep"`
	ThousandsSep string `toml:"thousands-sep"`
	TrueLabel    string `toml:"true-label"`
	FalseLabel   string `toml:"false-label"`
}

// Debug configures diagnostics.
type Debug struct {
	// LeakCheck enables the collection-time leak detector for variants.
	LeakCheck bool `toml:"leak-check"`
}

// Conformance configures the coercion fixture store.
type Conformance struct {
	// DB is the path of the SQLite fixture database.
	DB string `toml:"db"`
}

// Default returns the configuration used when no comvar.toml exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses a comvar.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Locale.DecimalSep == "" {
		c.Locale.DecimalSep = "."
	}
	if c.Locale.ThousandsSep == "" {
		c.Locale.ThousandsSep = ","
	}
	if c.Locale.TrueLabel == "" {
		c.Locale.TrueLabel = "True"
	}
	if c.Locale.FalseLabel == "" {
		c.Locale.FalseLabel = "False"
	}
	if c.Conformance.DB == "" {
		c.Conformance.DB = "coercions.db"
	}
}

// Package config handles svm.toml tool configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by LoadDir.
const FileName = "svm.toml"

// Config is the svm.toml layout.
type Config struct {
	VM        VMConfig        `toml:"vm"`
	Assembler AssemblerConfig `toml:"assembler"`
	Log       LogConfig       `toml:"log"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

// VMConfig is the [vm] table.
type VMConfig struct {
	InitialMemory uint32 `toml:"initial-memory"`
	// MaxMemory caps memory growth in cells; 0 keeps the VM default.
	MaxMemory uint32 `toml:"max-memory"`
	// MaxSteps bounds a run; 0 means unbounded.
	MaxSteps uint64 `toml:"max-steps"`
	// Natives registers the standard callables before running.
	Natives bool `toml:"natives"`
}

type AssemblerConfig struct {
	Debug  bool   `toml:"debug"`
	Output string `toml:"output"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default is the configuration used when no svm.toml exists.
func Default() *Config {
	return &Config{
		VM:  VMConfig{Natives: true},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	c.Path = path
	return c, nil
}

// LoadDir loads svm.toml from dir.
func LoadDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// OutputPath is where a container assembled from input is written: the
// configured output, or input with its extension replaced by .svmo.
func (c *Config) OutputPath(input string) string {
	if c.Assembler.Output != "" {
		return c.Assembler.Output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".svmo"
}

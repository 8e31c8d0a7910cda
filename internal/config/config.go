package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/rkfit/internal/dataio"
	"github.com/cwbudde/rkfit/internal/fit"
)

// Config holds the complete application configuration
type Config struct {
	Fit    FitConfig         `toml:"fit" yaml:"fit"`
	Data   dataio.CSVOptions `toml:"data" yaml:"data"`
	Store  StoreConfig       `toml:"store" yaml:"store"`
	Server ServerConfig      `toml:"server" yaml:"server"`
}

// FitConfig holds model and optimizer settings
type FitConfig struct {
	Order         int          `toml:"order" yaml:"order"`
	MaxIterations int          `toml:"max_iterations" yaml:"max_iterations"`
	Tolerance     float64      `toml:"tolerance" yaml:"tolerance"`
	Method        string       `toml:"method" yaml:"method"`
	Workers       int          `toml:"workers" yaml:"workers"`
	Initial       []float64    `toml:"initial" yaml:"initial"`
	Mayfly        MayflyConfig `toml:"mayfly" yaml:"mayfly"`
}

// MayflyConfig holds the global search settings of the hybrid method
type MayflyConfig struct {
	Iterations int   `toml:"iterations" yaml:"iterations"`
	PopSize    int   `toml:"pop_size" yaml:"pop_size"`
	Seed       int64 `toml:"seed" yaml:"seed"`
}

// StoreConfig holds fit result persistence settings
type StoreConfig struct {
	DataDir string `toml:"data_dir" yaml:"data_dir"`
}

// ServerConfig holds HTTP job server settings
type ServerConfig struct {
	Addr     string `toml:"addr" yaml:"addr"`
	DataRoot string `toml:"data_root" yaml:"data_root"` // dataPath jobs are confined here; empty disables them
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Fit: FitConfig{
			Order:         1,
			MaxIterations: 10000,
			Tolerance:     1e-20,
			Method:        fit.MethodLM,
			Workers:       1,
			Mayfly: MayflyConfig{
				Iterations: 100,
				PopSize:    30,
				Seed:       42,
			},
		},
		Data:   dataio.DefaultCSVOptions(),
		Store:  StoreConfig{DataDir: "./data"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads a TOML or YAML file (by extension) over the defaults.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	cfg := Default()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", ext)
	}

	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandEnvVars() {
	c.Store.DataDir = os.ExpandEnv(c.Store.DataDir)
	c.Server.DataRoot = os.ExpandEnv(c.Server.DataRoot)
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if err := fit.ValidateOrder(c.Fit.Order); err != nil {
		return fmt.Errorf("fit.order: %w", err)
	}
	if c.Fit.MaxIterations < 0 {
		return fmt.Errorf("fit.max_iterations cannot be negative")
	}
	if c.Fit.Tolerance < 0 {
		return fmt.Errorf("fit.tolerance cannot be negative")
	}
	if err := fit.ValidateMethod(c.Fit.Method); err != nil {
		return fmt.Errorf("fit.method: %w", err)
	}
	if c.Fit.Initial != nil && len(c.Fit.Initial) != fit.ParamCount(c.Fit.Order) {
		return fmt.Errorf("fit.initial has %d values, order %d needs %d",
			len(c.Fit.Initial), c.Fit.Order, fit.ParamCount(c.Fit.Order))
	}
	if c.Fit.Method == fit.MethodHybrid && c.Fit.Mayfly.PopSize < 20 {
		// mayfly v0.1.0 rejects smaller populations
		return fmt.Errorf("fit.mayfly.pop_size must be at least 20")
	}
	return nil
}

// Minimizer returns the minimizer settings of the fit section.
func (f FitConfig) Minimizer() fit.MinimizerConfig {
	return fit.MinimizerConfig{
		Method:           f.Method,
		Workers:          f.Workers,
		GlobalIterations: f.Mayfly.Iterations,
		PopSize:          f.Mayfly.PopSize,
		Seed:             f.Mayfly.Seed,
	}
}

// Options returns the fit options of the fit section.
func (f FitConfig) Options() fit.Options {
	return fit.Options{
		Order:         f.Order,
		MaxIterations: f.MaxIterations,
		Tolerance:     f.Tolerance,
		Initial:       f.Initial,
	}
}

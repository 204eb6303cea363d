package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for tbgen
type Config struct {
	// Harness controls testbench synthesis
	Harness HarnessConfig `json:"harness" yaml:"harness"`

	// Sources selects the Verilog files to process when given a directory
	Sources SourceConfig `json:"sources" yaml:"sources"`

	// Output controls where testbenches are written
	Output OutputConfig `json:"output" yaml:"output"`

	// Analysis contains pipeline options
	Analysis AnalysisConfig `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// HarnessConfig holds the numeric testbench parameters
type HarnessConfig struct {
	// ClockPeriod is the CLK_PERIOD value in simulation time units
	ClockPeriod int `json:"clockPeriod" yaml:"clockPeriod"`

	// StimulusRounds is the number of random assignment rounds
	StimulusRounds int `json:"stimulusRounds" yaml:"stimulusRounds"`

	// Seed makes stimulus reproducible. Each file derives its own
	// generator from the seed and its path.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// SourceConfig lists glob patterns for Verilog sources
type SourceConfig struct {
	// Files is a list of glob patterns; ** matches any directory depth
	Files []string `json:"files" yaml:"files"`

	// Exclude is a list of glob patterns to skip
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// OutputConfig controls where testbenches go
type OutputConfig struct {
	// Dir receives tb_<module>.v files. Empty means next to each source.
	// Relative paths are resolved against the project root.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// CacheConfig controls the extracted-interface cache
type CacheConfig struct {
	// Enabled turns on cache usage
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Dir is the cache directory (relative to project root if not absolute)
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// AnalysisConfig contains pipeline options
type AnalysisConfig struct {
	// MaxParallelFiles limits concurrent file processing (0 = auto)
	MaxParallelFiles int `json:"maxParallelFiles,omitempty" yaml:"maxParallelFiles,omitempty"`

	// SyntaxCheck runs the tree-sitter Verilog parser over each source
	// before extraction and reports syntax errors
	SyntaxCheck bool `json:"syntaxCheck,omitempty" yaml:"syntaxCheck,omitempty"`

	// Cache controls extracted-interface caching
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
}

const (
	DefaultClockPeriod    = 2
	DefaultStimulusRounds = 10
	DefaultCacheDir       = ".tbgen_cache"
)

var defaultSourcePatterns = []string{"*.v", "*.sv", "**/*.v", "**/*.sv"}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Harness: HarnessConfig{
			ClockPeriod:    DefaultClockPeriod,
			StimulusRounds: DefaultStimulusRounds,
		},
		Sources: SourceConfig{
			Files:   append([]string(nil), defaultSourcePatterns...),
			Exclude: []string{"**/tb_*.v"},
		},
		Analysis: AnalysisConfig{
			MaxParallelFiles: 0, // auto
			Cache: CacheConfig{
				Enabled: boolPtr(false),
				Dir:     DefaultCacheDir,
			},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// Load finds and loads the configuration file
// Search order:
//  1. ./tbgen.json, ./tbgen.yaml, ./.tbgen.json (current working directory)
//  2. <rootPath>/tbgen.json, <rootPath>/tbgen.yaml (if rootPath is another directory)
//  3. ~/.config/tbgen/config.json
//
// Returns DefaultConfig if no config file is found
func Load(rootPath string) (*Config, error) {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, "tbgen.json"),
		filepath.Join(cwd, "tbgen.yaml"),
		filepath.Join(cwd, ".tbgen.json"),
	}

	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		absRoot, _ := filepath.Abs(rootPath)
		if absRoot != cwd {
			searchPaths = append(searchPaths,
				filepath.Join(rootPath, "tbgen.json"),
				filepath.Join(rootPath, "tbgen.yaml"),
			)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "tbgen", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	if c.Harness.ClockPeriod == 0 {
		c.Harness.ClockPeriod = DefaultClockPeriod
	}
	if c.Harness.StimulusRounds == 0 {
		c.Harness.StimulusRounds = DefaultStimulusRounds
	}
	if len(c.Sources.Files) == 0 {
		c.Sources.Files = append([]string(nil), defaultSourcePatterns...)
	}
	if c.Analysis.Cache.Dir == "" {
		c.Analysis.Cache.Dir = DefaultCacheDir
	}
	if c.Analysis.Cache.Enabled == nil {
		c.Analysis.Cache.Enabled = boolPtr(false)
	}
}

// Validate rejects settings the synthesizer cannot honour
func (c *Config) Validate() error {
	var errs []error
	if c.Harness.ClockPeriod < 1 {
		errs = append(errs, fmt.Errorf("harness.clockPeriod must be positive, got %d", c.Harness.ClockPeriod))
	}
	if c.Harness.StimulusRounds < 1 {
		errs = append(errs, fmt.Errorf("harness.stimulusRounds must be positive, got %d", c.Harness.StimulusRounds))
	}
	if c.Analysis.MaxParallelFiles < 0 {
		errs = append(errs, fmt.Errorf("analysis.maxParallelFiles must not be negative, got %d", c.Analysis.MaxParallelFiles))
	}
	return errors.Join(errs...)
}

// Save writes the configuration to a file, as YAML for .yaml/.yml paths
// and indented JSON otherwise
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CacheEnabled reports whether the interface cache is switched on
func (c *Config) CacheEnabled() bool {
	return c.Analysis.Cache.Enabled != nil && *c.Analysis.Cache.Enabled
}

// ShouldIgnoreFile checks if a file matches an exclude pattern
func (c *Config) ShouldIgnoreFile(filePath string) bool {
	for _, pattern := range c.Sources.Exclude {
		if strings.Contains(pattern, "**") {
			suffix := strings.TrimPrefix(pattern[strings.Index(pattern, "**")+2:], "/")
			if matchSuffix(filePath, suffix) {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, filePath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(filePath)); matched {
			return true
		}
	}
	return false
}

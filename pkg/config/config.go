package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/auspex/pkg/models"
)

// ConfigurationError reports an invalid setting. It is fatal before any
// analysis starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config holds all configuration options for auspex.
type Config struct {
	// Analysis settings control which analyzers run.
	Analysis AnalysisConfig `koanf:"analysis"`

	// Per-analyzer tuning.
	Clones   CloneConfig    `koanf:"clones"`
	Cycles   CycleConfig    `koanf:"cycles"`
	DI       DIConfig       `koanf:"di"`
	Cohesion CohesionConfig `koanf:"cohesion"`

	// Run settings for the engine itself.
	Run RunConfig `koanf:"run"`

	// File exclusion patterns.
	Exclude ExcludeConfig `koanf:"exclude"`

	// Output settings.
	Output OutputConfig `koanf:"output"`
}

// AnalysisConfig controls which analyzers run.
type AnalysisConfig struct {
	Cycles   bool `koanf:"cycles"`
	DeadCode bool `koanf:"dead_code"`
	Clones   bool `koanf:"clones"`
	Cohesion bool `koanf:"cohesion"`
	DI       bool `koanf:"di"`
}

// CloneConfig tunes the clone detector.
type CloneConfig struct {
	// MinLines excludes bodies shorter than this many source lines.
	MinLines int `koanf:"min_lines"`
	// MinStatements excludes bodies with fewer statements.
	MinStatements int `koanf:"min_statements"`
	// SizeTolerance is the minimum node-count ratio (smaller/larger) for a
	// Type-4 candidate pair.
	SizeTolerance float64 `koanf:"size_tolerance"`
	// BoilerplateRatio suppresses a pair when both bodies exceed this
	// fraction of data-modeling boilerplate nodes.
	BoilerplateRatio float64 `koanf:"boilerplate_ratio"`
}

// CycleConfig tunes the dependency cycle analyzer.
type CycleConfig struct {
	// MaxCycleLength caps elementary cycle enumeration within one SCC.
	MaxCycleLength int `koanf:"max_cycle_length"`
	// ClusterThreshold is the SCC size above which members are reported as
	// a single cycle cluster instead of enumerated cycles.
	ClusterThreshold int `koanf:"cluster_threshold"`
	// IncludeConditional also follows imports inside type-checking guards.
	IncludeConditional bool `koanf:"include_conditional"`
}

// DIConfig tunes the dependency-injection anti-pattern detector.
type DIConfig struct {
	// MaxConstructorParams flags constructors with strictly more injected
	// parameters than this (self/cls excluded).
	MaxConstructorParams int `koanf:"max_constructor_params"`
}

// CohesionConfig tunes LCOM severity grading.
type CohesionConfig struct {
	// LowThreshold is the component count at or below which a class is not
	// reported.
	LowThreshold int `koanf:"low_threshold"`
	// MediumThreshold separates warning from critical findings.
	MediumThreshold int `koanf:"medium_threshold"`
}

// RunConfig controls the engine run.
type RunConfig struct {
	// Workers bounds parse parallelism; 0 picks a CPU-based default.
	Workers int `koanf:"workers"`
	// TimeoutSeconds aborts the whole run; partial results are reported.
	// Zero disables the timeout.
	TimeoutSeconds int `koanf:"timeout_seconds"`
	// FailOn is the severity at or above which the run is considered failed.
	FailOn string `koanf:"fail_on"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns"`
	Dirs      []string `koanf:"dirs"`
	Gitignore bool     `koanf:"gitignore"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format"` // text, json, markdown
	Color   bool   `koanf:"color"`
	Verbose bool   `koanf:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Cycles:   true,
			DeadCode: true,
			Clones:   true,
			Cohesion: true,
			DI:       true,
		},
		Clones: CloneConfig{
			MinLines:         5,
			MinStatements:    3,
			SizeTolerance:    0.5,
			BoilerplateRatio: 0.8,
		},
		Cycles: CycleConfig{
			MaxCycleLength:   10,
			ClusterThreshold: 15,
		},
		DI: DIConfig{
			MaxConstructorParams: 5,
		},
		Cohesion: CohesionConfig{
			LowThreshold:    2,
			MediumThreshold: 5,
		},
		Run: RunConfig{
			Workers:        0,
			TimeoutSeconds: 300,
			FailOn:         "critical",
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"test_*.py",
				"*_test.py",
				"conftest.py",
			},
			Dirs: []string{
				".git",
				".venv",
				"venv",
				"__pycache__",
				".auspex",
				"build",
				"dist",
				"node_modules",
			},
			Gitignore: true,
		},
		Output: OutputConfig{
			Format:  "text",
			Color:   true,
			Verbose: false,
		},
	}
}

// Load loads configuration from a file and validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}

	if err := validateSchema(k.Raw()); err != nil {
		return nil, err
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	configNames := []string{
		"auspex.toml",
		"auspex.yaml",
		"auspex.yml",
		"auspex.json",
		".auspex.toml",
		".auspex.yaml",
		".auspex.yml",
		".auspex.json",
	}
	searchDirs := []string{".", ".auspex"}

	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := Load(path)
				if err == nil {
					return cfg
				}
			}
		}
	}

	return DefaultConfig()
}

// Validate checks threshold and limit values. Returns a ConfigurationError
// on the first invalid setting.
func (c *Config) Validate() error {
	if c.Clones.MinLines < 1 {
		return &ConfigurationError{Field: "clones.min_lines", Reason: "must be at least 1"}
	}
	if c.Clones.MinStatements < 1 {
		return &ConfigurationError{Field: "clones.min_statements", Reason: "must be at least 1"}
	}
	if c.Clones.SizeTolerance <= 0 || c.Clones.SizeTolerance > 1 {
		return &ConfigurationError{Field: "clones.size_tolerance", Reason: "must be in (0, 1]"}
	}
	if c.Clones.BoilerplateRatio <= 0 || c.Clones.BoilerplateRatio > 1 {
		return &ConfigurationError{Field: "clones.boilerplate_ratio", Reason: "must be in (0, 1]"}
	}
	if c.Cycles.MaxCycleLength < 2 {
		return &ConfigurationError{Field: "cycles.max_cycle_length", Reason: "must be at least 2"}
	}
	if c.Cycles.ClusterThreshold < 2 {
		return &ConfigurationError{Field: "cycles.cluster_threshold", Reason: "must be at least 2"}
	}
	if c.DI.MaxConstructorParams < 1 {
		return &ConfigurationError{Field: "di.max_constructor_params", Reason: "must be at least 1"}
	}
	if c.Cohesion.LowThreshold < 1 || c.Cohesion.MediumThreshold < c.Cohesion.LowThreshold {
		return &ConfigurationError{Field: "cohesion", Reason: "thresholds must satisfy 1 <= low <= medium"}
	}
	if c.Run.Workers < 0 {
		return &ConfigurationError{Field: "run.workers", Reason: "must not be negative"}
	}
	if c.Run.TimeoutSeconds < 0 {
		return &ConfigurationError{Field: "run.timeout_seconds", Reason: "must not be negative; 0 disables the timeout"}
	}
	if _, err := models.ParseSeverity(c.Run.FailOn); err != nil {
		return &ConfigurationError{Field: "run.fail_on", Reason: err.Error()}
	}
	switch c.Output.Format {
	case "text", "json", "markdown", "":
	default:
		return &ConfigurationError{Field: "output.format", Reason: "must be text, json, or markdown"}
	}
	return nil
}

// ShouldExclude checks if a path should be excluded from analysis.
func (c *Config) ShouldExclude(path string) bool {
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, string(filepath.Separator)+dir+string(filepath.Separator)) ||
			strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}

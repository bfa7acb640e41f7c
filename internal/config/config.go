// Package config provides unified configuration loading for tieralloc.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config contains all tieralloc configuration settings.
type Config struct {
	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Engine contains refinement budgets and the error warning threshold.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Split contains cohort names and the optional legacy ratio.
	Split SplitConfig `json:"split" yaml:"split"`

	// Store contains the database location.
	Store StoreConfig `json:"store" yaml:"store"`

	// Server contains HTTP server settings.
	Server ServerConfig `json:"server" yaml:"server"`

	// Backup contains snapshot location and retention settings.
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Strategies overrides per-delivery-type defaults, keyed by delivery type.
	Strategies map[string]StrategyOverride `json:"strategies,omitempty" yaml:"strategies,omitempty"`
}

// LoggingConfig configures tieralloc's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to <data dir>/decisions.jsonl.
	Level string `json:"level" yaml:"level"`

	// Format selects "text" (default) or "json" output.
	Format string `json:"format" yaml:"format"`
}

// EngineConfig configures the allocation engine.
type EngineConfig struct {
	BasicIterations  int `json:"basic_iterations" yaml:"basic_iterations"`
	SmoothIterations int `json:"smooth_iterations" yaml:"smooth_iterations"`

	// ErrorThreshold is a decimal string. Runs finishing above it are
	// logged as warnings.
	ErrorThreshold string `json:"error_threshold" yaml:"error_threshold"`
}

// Threshold parses ErrorThreshold.
func (c EngineConfig) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.ErrorThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid error_threshold %q: %w", c.ErrorThreshold, err)
	}
	return d, nil
}

// Iterations returns the budget configured for variant.
func (c EngineConfig) Iterations(variant models.Variant) int {
	if variant == models.VariantSmooth {
		return c.SmoothIterations
	}
	return c.BasicIterations
}

// SplitConfig configures proportional splitting.
type SplitConfig struct {
	CohortA string `json:"cohort_a" yaml:"cohort_a"`
	CohortB string `json:"cohort_b" yaml:"cohort_b"`

	// LegacyDefaultRatio substitutes fixed ratios when a caller supplies
	// none. Disabled by default.
	LegacyDefaultRatio LegacyRatioConfig `json:"legacy_default_ratio" yaml:"legacy_default_ratio"`
}

// LegacyRatioConfig holds the fallback ratio pair.
type LegacyRatioConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	RatioA  string `json:"ratio_a" yaml:"ratio_a"`
	RatioB  string `json:"ratio_b" yaml:"ratio_b"`
}

// Ratios parses the pair.
func (c LegacyRatioConfig) Ratios() (decimal.Decimal, decimal.Decimal, error) {
	a, err := decimal.NewFromString(c.RatioA)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid ratio_a %q: %w", c.RatioA, err)
	}
	b, err := decimal.NewFromString(c.RatioB)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid ratio_b %q: %w", c.RatioB, err)
	}
	return a, b, nil
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Supports ${VAR} syntax.
	// Empty means <data dir>/tieralloc.db.
	Path string `json:"path" yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReleaseMode  bool          `json:"release_mode" yaml:"release_mode"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// AllocationsPerMinute limits POST /api/allocations per client IP.
	// Zero disables the limit.
	AllocationsPerMinute int `json:"allocations_per_minute" yaml:"allocations_per_minute"`
}

// BackupConfig configures store snapshots.
type BackupConfig struct {
	// Dir holds snapshot files. Empty means <data dir>/backups.
	Dir       string          `json:"dir" yaml:"dir"`
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig decides which snapshots survive a new backup. A snapshot
// is kept if any configured rule keeps it.
type RetentionConfig struct {
	MaxCount int `json:"max_count" yaml:"max_count"`

	// MaxAge accepts Go durations plus "d" and "w" suffixes, e.g. "30d".
	MaxAge string `json:"max_age" yaml:"max_age"`
}

// StrategyOverride changes one delivery type's engine settings.
type StrategyOverride struct {
	Variant       string `json:"variant,omitempty" yaml:"variant,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			BasicIterations:  constants.DefaultBasicIterations,
			SmoothIterations: constants.DefaultSmoothIterations,
			ErrorThreshold:   constants.DefaultErrorThreshold,
		},
		Split: SplitConfig{
			CohortA: constants.DefaultCohortA,
			CohortB: constants.DefaultCohortB,
			LegacyDefaultRatio: LegacyRatioConfig{
				Enabled: false,
				RatioA:  constants.LegacyRatioA,
				RatioB:  constants.LegacyRatioB,
			},
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Backup: BackupConfig{
			Retention: RetentionConfig{MaxCount: 10},
		},
	}
}

// DefaultPath returns ~/.tieralloc/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName, constants.ConfigFileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.tieralloc/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)

	return config, nil
}

// Save writes the configuration as YAML to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	for name, n := range map[string]int{
		"basic_iterations":  c.Engine.BasicIterations,
		"smooth_iterations": c.Engine.SmoothIterations,
	} {
		if n < 1 || n > constants.MaxIterations {
			return fmt.Errorf("%s must be between 1 and %d, got %d", name, constants.MaxIterations, n)
		}
	}

	threshold, err := c.Engine.Threshold()
	if err != nil {
		return err
	}
	if threshold.IsNegative() {
		return fmt.Errorf("error_threshold must be non-negative, got %s", threshold)
	}

	if c.Split.CohortA == "" || c.Split.CohortB == "" {
		return fmt.Errorf("split cohort names must not be empty")
	}
	if c.Split.CohortA == c.Split.CohortB {
		return fmt.Errorf("split cohorts must differ, both are %q", c.Split.CohortA)
	}
	if c.Split.LegacyDefaultRatio.Enabled {
		a, b, err := c.Split.LegacyDefaultRatio.Ratios()
		if err != nil {
			return err
		}
		if a.IsNegative() || b.IsNegative() || !a.Add(b).Equal(decimal.NewFromInt(1)) {
			return fmt.Errorf("legacy ratios must be non-negative and sum to 1, got %s and %s", a, b)
		}
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must be non-negative")
	}
	if c.Server.AllocationsPerMinute < 0 {
		return fmt.Errorf("allocations_per_minute must be non-negative, got %d", c.Server.AllocationsPerMinute)
	}

	if c.Backup.Retention.MaxCount < 0 {
		return fmt.Errorf("backup.retention.max_count must be non-negative, got %d", c.Backup.Retention.MaxCount)
	}

	for key, o := range c.Strategies {
		if !constants.DeliveryType(key).Valid() {
			return fmt.Errorf("strategies: unknown delivery type %q", key)
		}
		if o.Variant != "" {
			if _, err := models.ParseVariant(o.Variant); err != nil {
				return fmt.Errorf("strategies.%s: %w", key, err)
			}
		}
		if o.MaxIterations < 0 || o.MaxIterations > constants.MaxIterations {
			return fmt.Errorf("strategies.%s: max_iterations must be between 0 and %d", key, constants.MaxIterations)
		}
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TIERALLOC_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("TIERALLOC_DB_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("TIERALLOC_SERVER_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("TIERALLOC_BASIC_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.BasicIterations = n
		}
	}
	if v := os.Getenv("TIERALLOC_SMOOTH_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.SmoothIterations = n
		}
	}

	if v := os.Getenv("TIERALLOC_LEGACY_RATIO"); v != "" {
		config.Split.LegacyDefaultRatio.Enabled = v == "true" || v == "1"
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

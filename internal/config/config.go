// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `proclat:` root key in YAML.
type GlobalConfig struct {
	Log     LogConfig                 `mapstructure:"log"`
	Engine  EngineConfig              `mapstructure:"engine"`
	Output  OutputConfig              `mapstructure:"output"`
	Metrics MetricsConfig             `mapstructure:"metrics"`
	Sources map[string]map[string]any `mapstructure:"sources"` // Per-format reader options, keyed by format name
}

// ─── Engine ───

// EngineConfig controls classification and correlation.
type EngineConfig struct {
	Workers        int    `mapstructure:"workers"`         // 0 = auto (GOMAXPROCS)
	MergeFunctions bool   `mapstructure:"merge_functions"` // Correlate all traces of a run directory together
	Signatures     string `mapstructure:"signatures"`      // Signature table path; empty = embedded default
}

// ─── Output ───

// Grouping dimensions accepted by output.group_by.
const (
	DimVariant   = "variant"
	DimProcedure = "procedure"
	DimUECount   = "ue_count"
	DimFunction  = "function"
)

var validDims = map[string]bool{DimVariant: true, DimProcedure: true, DimUECount: true, DimFunction: true}

// OutputConfig controls the tabular outputs.
type OutputConfig struct {
	Dir         string    `mapstructure:"dir"`
	Percentiles []float64 `mapstructure:"percentiles"` // Named percentile columns, e.g. [50, 90, 99]
	GroupBy     []string  `mapstructure:"group_by"`
	Events      bool      `mapstructure:"events"` // Write the raw per-event log
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings. The engine is a batch
// job, so counters are exported through a node-exporter textfile.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // Empty = disabled
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string        `mapstructure:"level"`   // trace / debug / info / warn / error
	Format  string        `mapstructure:"format"`  // text / json
	Pattern string        `mapstructure:"pattern"` // text pattern: %time %level %field %msg %caller %func
	Time    string        `mapstructure:"time"`    // Go time layout
	Console string        `mapstructure:"console"` // stderr / stdout / off
	File    LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures rotating file output.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `proclat: ...`.
type configRoot struct {
	Proclat GlobalConfig `mapstructure:"proclat"`
}

// Load loads configuration from file. An empty path yields the defaults.
// Env vars override file values with the PROCLAT_ prefix (e.g., PROCLAT_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "proclat.log.level" maps to env "PROCLAT_LOG_LEVEL".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Proclat

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		// Defaults are static and always valid.
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use the "proclat." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("proclat.log.level", "info")
	v.SetDefault("proclat.log.format", "text")
	v.SetDefault("proclat.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("proclat.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("proclat.log.console", "stderr")
	v.SetDefault("proclat.log.file.enabled", false)
	v.SetDefault("proclat.log.file.path", "proclat.log")
	v.SetDefault("proclat.log.file.max_size_mb", 100)
	v.SetDefault("proclat.log.file.max_age_days", 30)
	v.SetDefault("proclat.log.file.max_backups", 5)
	v.SetDefault("proclat.log.file.compress", true)

	// Engine defaults
	v.SetDefault("proclat.engine.workers", 0)
	v.SetDefault("proclat.engine.merge_functions", false)
	v.SetDefault("proclat.engine.signatures", "")

	// Output defaults
	v.SetDefault("proclat.output.dir", "output")
	v.SetDefault("proclat.output.percentiles", []float64{50, 90, 99})
	v.SetDefault("proclat.output.group_by", []string{DimVariant, DimProcedure, DimUECount, DimFunction})
	v.SetDefault("proclat.output.events", true)

	// Metrics defaults
	v.SetDefault("proclat.metrics.textfile", "")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	switch strings.ToLower(cfg.Log.Console) {
	case "stderr", "stdout", "off":
	default:
		return fmt.Errorf("invalid log console: %s (must be stderr/stdout/off)", cfg.Log.Console)
	}

	// ── Engine ──
	if cfg.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be >= 0, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = runtime.GOMAXPROCS(0)
	}

	// ── Output ──
	if cfg.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	for _, p := range cfg.Output.Percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("output.percentiles: %v out of range [0,100]", p)
		}
	}
	dims, err := NormalizeDimensions(cfg.Output.GroupBy)
	if err != nil {
		return fmt.Errorf("output.group_by: %w", err)
	}
	cfg.Output.GroupBy = dims

	return nil
}

// NormalizeDimensions lower-cases and checks grouping dimension names.
func NormalizeDimensions(dims []string) ([]string, error) {
	out := make([]string, 0, len(dims))
	for _, d := range dims {
		d = strings.ToLower(strings.TrimSpace(d))
		if !validDims[d] {
			return nil, fmt.Errorf("unknown dimension %q", d)
		}
		out = append(out, d)
	}
	return out, nil
}

// SourceOptions returns the reader options configured for a format, never nil.
func (cfg *GlobalConfig) SourceOptions(format string) map[string]any {
	if opts, ok := cfg.Sources[format]; ok && opts != nil {
		return opts
	}
	return map[string]any{}
}

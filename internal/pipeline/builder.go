package pipeline

import (
	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/metrics"
	"firestige.xyz/proclat/internal/signature"
)

// Config contains runner configuration.
type Config struct {
	Workers        int                       // Jobs run in parallel
	MergeFunctions bool                      // Correlate all traces of a run directory together
	GroupBy        []string                  // Statistics dimensions
	Percentiles    []float64                 // Named percentile columns
	KeepEvents     bool                      // Retain classified events for the event log
	Sources        map[string]map[string]any // Reader options by format name
}

// ConfigFrom maps the global configuration onto a runner Config.
func ConfigFrom(cfg *config.GlobalConfig) Config {
	return Config{
		Workers:        cfg.Engine.Workers,
		MergeFunctions: cfg.Engine.MergeFunctions,
		GroupBy:        cfg.Output.GroupBy,
		Percentiles:    cfg.Output.Percentiles,
		KeepEvents:     cfg.Output.Events,
		Sources:        cfg.Sources,
	}
}

// Builder provides a fluent interface for building runners.
// This is an alternative to using Config directly.
type Builder struct {
	table    *signature.Table
	config   Config
	recorder *metrics.Recorder
}

// NewBuilder creates a new runner builder.
func NewBuilder(table *signature.Table) *Builder {
	return &Builder{
		table: table,
		config: Config{
			Workers:     1, // default
			GroupBy:     []string{config.DimVariant, config.DimProcedure, config.DimUECount, config.DimFunction},
			Percentiles: []float64{50, 90, 99},
			KeepEvents:  true,
		},
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithWorkers sets the number of jobs run in parallel.
func (b *Builder) WithWorkers(n int) *Builder {
	b.config.Workers = n
	return b
}

// WithMergeFunctions correlates the traces of a run directory together.
func (b *Builder) WithMergeFunctions(merge bool) *Builder {
	b.config.MergeFunctions = merge
	return b
}

// WithGroupBy sets the statistics dimensions.
func (b *Builder) WithGroupBy(dims ...string) *Builder {
	b.config.GroupBy = dims
	return b
}

// WithPercentiles sets the named percentile columns.
func (b *Builder) WithPercentiles(ps ...float64) *Builder {
	b.config.Percentiles = ps
	return b
}

// WithEvents toggles retention of classified events.
func (b *Builder) WithEvents(keep bool) *Builder {
	b.config.KeepEvents = keep
	return b
}

// WithSourceOptions sets the reader options of one format.
func (b *Builder) WithSourceOptions(format string, opts map[string]any) *Builder {
	if b.config.Sources == nil {
		b.config.Sources = make(map[string]map[string]any)
	}
	b.config.Sources[format] = opts
	return b
}

// WithRecorder sets the metrics recorder.
func (b *Builder) WithRecorder(r *metrics.Recorder) *Builder {
	b.recorder = r
	return b
}

// Build creates the runner.
func (b *Builder) Build() *Runner {
	return New(b.table, b.config, b.recorder)
}

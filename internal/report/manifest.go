package report

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"firestige.xyz/proclat/internal/pipeline"
)

// Manifest describes a run: what was analyzed, what failed and what was written.
type Manifest struct {
	RunID       string          `yaml:"run_id"`
	Merged      bool            `yaml:"merge_functions"`
	GroupBy     []string        `yaml:"group_by"`
	Percentiles []float64       `yaml:"percentiles"`
	Totals      pipeline.Totals `yaml:"totals"`
	Jobs        []ManifestJob   `yaml:"jobs"`
	Outputs     []string        `yaml:"outputs"`
}

// ManifestJob is the manifest entry of one job.
type ManifestJob struct {
	Path      string `yaml:"path"`
	Function  string `yaml:"function"`
	Variant   string `yaml:"variant"`
	Procedure string `yaml:"procedure"`
	UECount   int    `yaml:"ue_count"`
	Format    string `yaml:"format"`
	Status    string `yaml:"status"`
	Error     string `yaml:"error,omitempty"`
	Records   int    `yaml:"records"`
	Events    int    `yaml:"events"`
	Pairs     int    `yaml:"pairs"`
	Unpaired  int    `yaml:"unpaired"`
}

// NewManifest builds the manifest of res.
func NewManifest(res *pipeline.RunResult, opts Options, outputs []string) Manifest {
	m := Manifest{
		RunID:       res.RunID,
		Merged:      res.Merged,
		GroupBy:     opts.GroupBy,
		Percentiles: opts.Percentiles,
		Totals:      res.Totals,
		Outputs:     outputs,
	}
	for _, jr := range res.Jobs {
		m.Jobs = append(m.Jobs, ManifestJob{
			Path:      jr.Job.Path,
			Function:  jr.Job.Function,
			Variant:   jr.Job.Variant,
			Procedure: string(jr.Job.Procedure),
			UECount:   jr.Job.UECount,
			Format:    jr.Job.Format,
			Status:    jr.Status,
			Error:     pipeline.Describe(jr),
			Records:   jr.Stats.Records,
			Events:    jr.Stats.Events,
			Pairs:     jr.Pairs,
			Unpaired:  jr.Unpaired,
		})
	}
	return m
}

// WriteManifest encodes m as YAML.
func WriteManifest(w io.Writer, m Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return enc.Close()
}

// ReadManifest decodes a manifest written by WriteManifest.
func ReadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/discover"
	"firestige.xyz/proclat/internal/log"
	"firestige.xyz/proclat/internal/metrics"
	"firestige.xyz/proclat/internal/pipeline"
	"firestige.xyz/proclat/internal/report"
	"firestige.xyz/proclat/internal/signature"
	"firestige.xyz/proclat/internal/source"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <input>...",
	Short: "Measure procedure latencies in trace files",
	Long: `Measure procedure latencies in trace files.

A directory input is searched recursively for traces laid out as
  <ue_count>_<...>_<procedure>_<variant>/<ue_count|variant>_<nf>[_capture].<ext>
and every trace whose (nf, variant, procedure) has signatures is analyzed.

A file input is analyzed as given and needs --function, --variant and
--procedure.

Outputs (pairs.csv, stats.csv, unpaired.csv, events.csv, manifest.yaml) are
written to output.dir. A trace cut off inside a packet is analyzed up to the
cut and its job is marked partial. The command exits non-zero when any job
failed, after writing all outputs.

Examples:
  proclat analyze ./captures -o ./results
  proclat analyze amf.pdml --function amf --variant open5gs --procedure ue_reg`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *globalConfig
		if err := analyzeFlags.apply(cmd, &cfg); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runAnalyze(ctx, &cfg, args, analyzeFlags.explicit(), cmd.OutOrStdout())
	},
}

type analyzeOptions struct {
	output     string
	signatures string
	workers    int
	merge      bool
	groupBy    []string
	events     bool

	function  string
	variant   string
	procedure string
	ueCount   int
	format    string
}

var analyzeFlags analyzeOptions

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.output, "output", "o", "", "output directory (overrides output.dir)")
	f.StringVarP(&analyzeFlags.signatures, "signatures", "s", "", "signature table file (overrides engine.signatures)")
	f.IntVarP(&analyzeFlags.workers, "workers", "w", 0, "parallel jobs (overrides engine.workers)")
	f.BoolVar(&analyzeFlags.merge, "merge", false, "correlate all traces of a run directory together")
	f.StringSliceVar(&analyzeFlags.groupBy, "group-by", nil, "statistics dimensions: variant, procedure, ue_count, function")
	f.BoolVar(&analyzeFlags.events, "events", true, "write the per-event log")

	f.StringVar(&analyzeFlags.function, "function", "", "network function of a file input, e.g. amf")
	f.StringVar(&analyzeFlags.variant, "variant", "", "core variant of a file input, e.g. open5gs")
	f.StringVar(&analyzeFlags.procedure, "procedure", "", "procedure of a file input, e.g. ue_reg")
	f.IntVar(&analyzeFlags.ueCount, "ue-count", 0, "UE count label of a file input")
	f.StringVar(&analyzeFlags.format, "format", "", "trace format of a file input (default: from extension)")
}

// apply copies the flags the user set onto cfg.
func (o *analyzeOptions) apply(cmd *cobra.Command, cfg *config.GlobalConfig) error {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Dir = o.output
	}
	if flags.Changed("signatures") {
		cfg.Engine.Signatures = o.signatures
	}
	if flags.Changed("workers") {
		cfg.Engine.Workers = o.workers
	}
	if flags.Changed("merge") {
		cfg.Engine.MergeFunctions = o.merge
	}
	if flags.Changed("group-by") {
		cfg.Output.GroupBy = o.groupBy
	}
	if flags.Changed("events") {
		cfg.Output.Events = o.events
	}
	return cfg.ValidateAndApplyDefaults()
}

// explicitJob describes how file inputs are labelled.
type explicitJob struct {
	function  string
	variant   string
	procedure string
	ueCount   int
	format    string
}

func (o *analyzeOptions) explicit() explicitJob {
	return explicitJob{
		function:  o.function,
		variant:   o.variant,
		procedure: o.procedure,
		ueCount:   o.ueCount,
		format:    o.format,
	}
}

func runAnalyze(ctx context.Context, cfg *config.GlobalConfig, inputs []string, ex explicitJob, out io.Writer) error {
	table, err := signature.Load(cfg.Engine.Signatures)
	if err != nil {
		return fmt.Errorf("failed to load signatures: %w", err)
	}

	recorder := metrics.NewRecorder()
	runner := pipeline.NewBuilder(table).
		WithConfig(pipeline.ConfigFrom(cfg)).
		WithRecorder(recorder).
		Build()

	jobs, err := collectJobs(runner, inputs, ex)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return errors.New("no analyzable trace files found")
	}

	res, err := runner.Run(ctx, jobs)
	if err != nil {
		return err
	}

	files, err := report.WriteAll(cfg.Output.Dir, res, report.Options{
		Percentiles: cfg.Output.Percentiles,
		GroupBy:     cfg.Output.GroupBy,
		Events:      cfg.Output.Events,
	})
	if err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}
	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.GetLogger().WithError(err).Warn("failed to write metrics textfile")
		}
	}

	fmt.Fprintf(out, "Run %s: %d job(s), %d pair(s), %d unpaired, %d partial, %d failed\n",
		res.RunID, len(res.Jobs), len(res.Pairs), len(res.Unpaired), res.Partial(), res.Failed())
	for _, jr := range res.Jobs {
		if jr.Status == pipeline.StatusPartial {
			fmt.Fprintf(out, "  incomplete %s: %v\n", jr.Job.Path, jr.Err)
		}
	}
	for _, f := range files {
		fmt.Fprintf(out, "  wrote %s\n", filepath.Join(cfg.Output.Dir, f))
	}

	if n := res.Failed(); n > 0 {
		return fmt.Errorf("%d of %d job(s) failed, see %s", n, len(res.Jobs), filepath.Join(cfg.Output.Dir, report.ManifestFile))
	}
	return nil
}

func collectJobs(runner *pipeline.Runner, inputs []string, ex explicitJob) ([]discover.Job, error) {
	var jobs []discover.Job
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSourceOpen, err)
		}
		if info.IsDir() {
			found, err := discover.Walk(in)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, runner.Supported(found)...)
			continue
		}

		job, err := fileJob(in, ex)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func fileJob(path string, ex explicitJob) (discover.Job, error) {
	if ex.function == "" || ex.variant == "" || ex.procedure == "" {
		return discover.Job{}, fmt.Errorf("%s: file inputs need --function, --variant and --procedure", path)
	}
	proc, err := core.ParseProcedure(ex.procedure)
	if err != nil {
		return discover.Job{}, err
	}
	format := ex.format
	if format == "" {
		if format, err = source.FormatFor(path); err != nil {
			return discover.Job{}, err
		}
	}
	return discover.Job{
		Path:      path,
		RunDir:    filepath.Dir(path),
		Function:  ex.function,
		Variant:   ex.variant,
		Procedure: proc,
		UECount:   ex.ueCount,
		Format:    format,
	}, nil
}

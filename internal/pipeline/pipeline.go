// Package pipeline runs analysis jobs: read a trace, classify its records,
// correlate the events and aggregate latencies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/correlate"
	"firestige.xyz/proclat/internal/discover"
	"firestige.xyz/proclat/internal/identity"
	"firestige.xyz/proclat/internal/log"
	"firestige.xyz/proclat/internal/metrics"
	"firestige.xyz/proclat/internal/signature"
	"firestige.xyz/proclat/internal/source"
	"firestige.xyz/proclat/internal/stats"

	// Register trace readers
	_ "firestige.xyz/proclat/internal/source/formats"
)

// Job statuses.
const (
	StatusOK      = metrics.JobOK
	StatusPartial = metrics.JobPartial // Trace truncated, records before the cut analyzed
	StatusFailed  = metrics.JobFailed
)

// JobResult is the outcome of one job.
type JobResult struct {
	Job      discover.Job
	Status   string
	Err      error
	Stats    correlate.ClassifyStats
	Pairs    int
	Unpaired int
}

// Pair is an EventPair with the job its start event came from.
type Pair struct {
	core.EventPair
	Job discover.Job
}

// Unpaired is an unpaired group with the job of its witness event.
type Unpaired struct {
	correlate.Unpaired
	Job discover.Job
}

// Event is a classified event with its job.
type Event struct {
	*core.ClassifiedEvent
	Job discover.Job
}

// RunResult collects everything a run produced, in deterministic order.
type RunResult struct {
	RunID     string
	Merged    bool
	Jobs      []JobResult
	Pairs     []Pair
	Unpaired  []Unpaired
	Events    []Event
	Summaries []stats.Summary
	Totals    Totals
}

// Failed returns the number of failed jobs.
func (r *RunResult) Failed() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Partial returns the number of jobs analyzed from a truncated trace.
func (r *RunResult) Partial() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status == StatusPartial {
			n++
		}
	}
	return n
}

// Runner executes jobs against a compiled signature table.
type Runner struct {
	table    *signature.Table
	cfg      Config
	recorder *metrics.Recorder
	counters *Counters
}

// New creates a Runner. A nil recorder gets a fresh one.
func New(table *signature.Table, cfg Config, recorder *metrics.Recorder) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	return &Runner{table: table, cfg: cfg, recorder: recorder, counters: NewCounters()}
}

// Recorder returns the metrics recorder of the runner.
func (r *Runner) Recorder() *metrics.Recorder { return r.recorder }

// Supported drops discovered jobs whose combination has no signatures.
// Captures of functions that take no part in a procedure are common in a
// capture tree, so they are skipped rather than failed.
func (r *Runner) Supported(jobs []discover.Job) []discover.Job {
	logger := log.GetLogger()
	out := make([]discover.Job, 0, len(jobs))
	for _, j := range jobs {
		if _, err := r.table.Lookup(j.Function, j.Variant, j.Procedure); err != nil {
			logger.WithField("path", j.Path).WithField("combination", j.Function+"/"+j.Variant+"/"+string(j.Procedure)).
				Debug("no signatures for combination, skipping")
			continue
		}
		out = append(out, j)
	}
	return out
}

// unit is the set of jobs correlated together: one job, or every job of a
// run directory in merged mode.
type unit struct {
	jobs []discover.Job
}

type unitOutcome struct {
	jobs     []JobResult
	pairs    []Pair
	unpaired []Unpaired
	events   []Event
}

// Run executes jobs and aggregates their pairs. Job failures are recorded
// in the result; only the context aborts a run.
func (r *Runner) Run(ctx context.Context, jobs []discover.Job) (*RunResult, error) {
	logger := log.GetLogger()

	sorted := make([]discover.Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })

	units := r.units(sorted)
	runID := uuid.NewString()
	logger.WithFields(map[string]interface{}{
		"run":    runID,
		"jobs":   len(sorted),
		"units":  len(units),
		"merged": r.cfg.MergeFunctions,
	}).Info("analysis run starting")

	mapper := iter.Mapper[unit, unitOutcome]{MaxGoroutines: r.cfg.Workers}
	outcomes := mapper.Map(units, func(u *unit) unitOutcome {
		return r.runUnit(ctx, *u)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &RunResult{RunID: runID, Merged: r.cfg.MergeFunctions}
	for _, o := range outcomes {
		res.Jobs = append(res.Jobs, o.jobs...)
		res.Pairs = append(res.Pairs, o.pairs...)
		res.Unpaired = append(res.Unpaired, o.unpaired...)
		res.Events = append(res.Events, o.events...)
	}
	sortPairs(res.Pairs)

	res.Summaries = r.aggregate(res)
	res.Totals = r.counters.Snapshot()
	r.warnUnpaired(res.Unpaired)

	logger.WithFields(map[string]interface{}{
		"run":      runID,
		"pairs":    len(res.Pairs),
		"unpaired": len(res.Unpaired),
		"partial":  res.Partial(),
		"failed":   res.Failed(),
	}).Info("analysis run finished")
	return res, nil
}

func (r *Runner) units(jobs []discover.Job) []unit {
	if !r.cfg.MergeFunctions {
		out := make([]unit, len(jobs))
		for i, j := range jobs {
			out[i] = unit{jobs: []discover.Job{j}}
		}
		return out
	}

	index := make(map[string]int)
	var out []unit
	for _, j := range jobs {
		i, ok := index[j.RunDir]
		if !ok {
			i = len(out)
			index[j.RunDir] = i
			out = append(out, unit{})
		}
		out[i].jobs = append(out[i].jobs, j)
	}
	return out
}

// runUnit classifies every job of u with one allocator, so fallback
// counters are shared exactly by the traces correlated together.
func (r *Runner) runUnit(ctx context.Context, u unit) unitOutcome {
	logger := log.GetLogger()
	allocator := identity.NewAllocator()

	var (
		out     unitOutcome
		events  []*core.ClassifiedEvent
		byTrace = make(map[string]int)
	)
	for _, job := range u.jobs {
		jr := JobResult{Job: job, Status: StatusOK}
		jobEvents, err := r.classifyJob(ctx, job, allocator, &jr.Stats)
		if te, ok := source.AsTruncated(err); ok {
			jr.Status = StatusPartial
			jr.Err = err
			r.counters.PartialJobs.Add(1)
			r.recorder.TruncatedTracesTotal.WithLabelValues(job.Function).Inc()
			logger.WithFields(map[string]interface{}{
				"job":     job.Key(),
				"frame":   te.Frame,
				"records": jr.Stats.Records,
			}).WithError(te.Err).Warn("trace truncated, keeping records before the cut")
		} else if err != nil {
			jr.Status = StatusFailed
			jr.Err = err
			r.counters.FailedJobs.Add(1)
			logger.WithField("job", job.Key()).WithError(err).Error("job failed")
		}
		r.recorder.JobsTotal.WithLabelValues(jr.Status).Inc()

		byTrace[job.Path] = len(out.jobs)
		out.jobs = append(out.jobs, jr)
		events = append(events, jobEvents...)
		if r.cfg.KeepEvents {
			for _, ev := range jobEvents {
				out.events = append(out.events, Event{ClassifiedEvent: ev, Job: job})
			}
		}
	}

	res := correlate.NewEngine(correlate.Options{Workers: 1, Merged: r.cfg.MergeFunctions}).Correlate(events)
	for _, p := range res.Pairs {
		i := byTrace[p.Start.Record.Trace]
		out.jobs[i].Pairs++
		out.pairs = append(out.pairs, Pair{EventPair: p, Job: out.jobs[i].Job})
		r.recorder.ObservePair(p)
	}
	for _, up := range res.Unpaired {
		i := byTrace[up.Event.Record.Trace]
		out.jobs[i].Unpaired++
		out.unpaired = append(out.unpaired, Unpaired{Unpaired: up, Job: out.jobs[i].Job})
		r.recorder.UnpairedTotal.WithLabelValues(string(up.Procedure), up.Reason).Inc()
	}
	r.counters.Pairs.Add(uint64(len(res.Pairs)))
	r.counters.Unpaired.Add(uint64(len(res.Unpaired)))

	for _, jr := range out.jobs {
		if jr.Status == StatusFailed {
			continue
		}
		logger.WithFields(map[string]interface{}{
			"job":      jr.Job.Key(),
			"status":   jr.Status,
			"records":  jr.Stats.Records,
			"events":   jr.Stats.Events,
			"pairs":    jr.Pairs,
			"unpaired": jr.Unpaired,
		}).Info("job finished")
	}
	return out
}

func (r *Runner) classifyJob(ctx context.Context, job discover.Job, allocator *identity.Allocator, st *correlate.ClassifyStats) ([]*core.ClassifiedEvent, error) {
	profile, err := r.table.Lookup(job.Function, job.Variant, job.Procedure)
	if err != nil {
		return nil, err
	}

	records, readErr := source.ReadFile(ctx, job.Path, job.Format, job.Function, r.cfg.Sources[job.Format])
	if _, truncated := source.AsTruncated(readErr); readErr != nil && !truncated {
		return nil, readErr
	}

	events, cs := correlate.NewClassifier(profile, allocator).Classify(records)
	*st = cs
	r.counters.Observe(cs)

	fn := job.Function
	r.recorder.RecordsTotal.WithLabelValues(fn).Add(float64(cs.Records))
	r.recorder.DecodeFailuresTotal.WithLabelValues(fn).Add(float64(cs.DecodeFailures))
	r.recorder.UnmatchedTotal.WithLabelValues(fn).Add(float64(cs.Unmatched))
	r.recorder.IgnoredTotal.WithLabelValues(fn).Add(float64(cs.Ignored))
	for _, ev := range events {
		r.recorder.EventsTotal.WithLabelValues(string(ev.Procedure), string(ev.Role)).Inc()
	}
	return events, readErr
}

// Labels returns the grouping dimensions of a job.
func Labels(job discover.Job) stats.Labels {
	return stats.Labels{
		config.DimVariant:   job.Variant,
		config.DimProcedure: string(job.Procedure),
		config.DimUECount:   strconv.Itoa(job.UECount),
		config.DimFunction:  job.Function,
	}
}

// aggregate summarizes latencies per group. Every job that produced records
// declares its group, so a group without pairs still yields a placeholder row.
func (r *Runner) aggregate(res *RunResult) []stats.Summary {
	g := stats.NewGrouper(r.cfg.GroupBy, r.cfg.Percentiles)
	for _, jr := range res.Jobs {
		if jr.Status != StatusFailed {
			g.Declare(Labels(jr.Job))
		}
	}
	for _, p := range res.Pairs {
		g.Add(Labels(p.Job), p.LatencyMs())
	}
	return g.Summaries()
}

func (r *Runner) warnUnpaired(list []Unpaired) {
	counts := make(map[core.ProcedureKind]int)
	for _, u := range list {
		counts[u.Procedure]++
	}
	for _, proc := range core.Procedures() {
		if n := counts[proc]; n > 0 {
			log.GetLogger().WithField("procedure", proc).WithField("count", n).Warn("identities left unpaired")
		}
	}
}

func sortPairs(pairs []Pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Job.Key() != b.Job.Key() {
			return a.Job.Key() < b.Job.Key()
		}
		return false
	})
}

// IsConfigurationError reports whether a job failed because its
// combination or options are not configured.
func IsConfigurationError(err error) bool {
	return errors.Is(err, core.ErrUnknownCombination) || errors.Is(err, core.ErrConfigInvalid)
}

// Describe renders a job failure for reports.
func Describe(jr JobResult) string {
	if jr.Err == nil {
		return ""
	}
	if jr.Status == StatusPartial {
		return fmt.Sprintf("partial: %v", jr.Err)
	}
	if IsConfigurationError(jr.Err) {
		return fmt.Sprintf("configuration: %v", jr.Err)
	}
	return jr.Err.Error()
}

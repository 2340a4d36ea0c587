// Package report writes the tabular outputs of a run: pair, statistics,
// event and unpaired tables as CSV, plus a YAML run manifest.
package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"firestige.xyz/proclat/internal/pipeline"
	"firestige.xyz/proclat/internal/stats"
)

// Output file names.
const (
	PairsFile    = "pairs.csv"
	StatsFile    = "stats.csv"
	EventsFile   = "events.csv"
	UnpairedFile = "unpaired.csv"
	ManifestFile = "manifest.yaml"
)

var (
	// PairsHeader lists the pair table columns; context columns follow latency_ms.
	PairsHeader = []string{
		"identity", "procedure", "start_timestamp", "end_timestamp",
		"start_frame", "end_frame", "direction_start", "direction_end",
		"latency_ms", "variant", "function", "ue_count",
	}

	statsHeader = []string{
		"group_label", "count", "min", "max", "mean", "median", "q1", "q3", "iqr",
		"lower_whisker", "upper_whisker", "lower_outliers", "upper_outliers", "outlier_pct",
	}

	eventsHeader = []string{
		"trace", "frame_number", "timestamp", "direction", "function",
		"identity", "procedure", "signature", "role", "decoded_payload",
	}

	unpairedHeader = []string{"identity", "procedure", "reason", "trace", "frame_number", "function"}
)

// Options selects what WriteAll produces.
type Options struct {
	Percentiles []float64
	GroupBy     []string
	Events      bool
}

func timestamp(v float64) string { return strconv.FormatFloat(v, 'f', 9, 64) }
func millis(v float64) string    { return strconv.FormatFloat(v, 'f', 3, 64) }
func percent(v float64) string   { return strconv.FormatFloat(v, 'f', 2, 64) }

// WritePairs writes one row per pair.
func WritePairs(w io.Writer, pairs []pipeline.Pair) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PairsHeader); err != nil {
		return fmt.Errorf("write pairs header: %w", err)
	}
	for _, p := range pairs {
		row := []string{
			p.Identity.String(),
			string(p.Procedure),
			timestamp(p.Start.Timestamp()),
			timestamp(p.End.Timestamp()),
			strconv.FormatInt(p.Start.Sequence(), 10),
			strconv.FormatInt(p.End.Sequence(), 10),
			string(p.Start.Record.Direction),
			string(p.End.Record.Direction),
			millis(p.LatencyMs()),
			p.Job.Variant,
			p.Job.Function,
			strconv.Itoa(p.Job.UECount),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write pairs row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// StatsHeader returns the statistics columns for the requested percentiles.
func StatsHeader(percentiles []float64) []string {
	h := append([]string(nil), statsHeader...)
	for _, p := range percentiles {
		h = append(h, stats.Quantile{P: p}.Name())
	}
	return h
}

// WriteStats writes one row per summary. Percentile columns follow the
// order of percentiles.
func WriteStats(w io.Writer, summaries []stats.Summary, percentiles []float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(StatsHeader(percentiles)); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}
	for _, s := range summaries {
		row := []string{
			s.Label,
			strconv.Itoa(s.Count),
			millis(s.Min),
			millis(s.Max),
			millis(s.Mean),
			millis(s.Median),
			millis(s.Q1),
			millis(s.Q3),
			millis(s.IQR),
			millis(s.LowerWhisker),
			millis(s.UpperWhisker),
			strconv.Itoa(s.LowerOutliers),
			strconv.Itoa(s.UpperOutliers),
			percent(s.OutlierPct),
		}
		for _, p := range percentiles {
			row = append(row, millis(quantile(s, p)))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write stats row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func quantile(s stats.Summary, p float64) float64 {
	for _, q := range s.Quantiles {
		if q.P == p {
			return q.Value
		}
	}
	return 0
}

// WriteEvents writes the per-event log.
func WriteEvents(w io.Writer, events []pipeline.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(eventsHeader); err != nil {
		return fmt.Errorf("write events header: %w", err)
	}
	for _, ev := range events {
		row := []string{
			ev.Record.Trace,
			strconv.FormatInt(ev.Sequence(), 10),
			timestamp(ev.Timestamp()),
			string(ev.Record.Direction),
			ev.Record.Function,
			ev.Identity.String(),
			string(ev.Procedure),
			signatureLabel(ev),
			string(ev.Role),
			ev.Text,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write events row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func signatureLabel(ev pipeline.Event) string {
	if ev.SignatureName != "" {
		return ev.SignatureName
	}
	return "#" + strconv.Itoa(ev.Signature)
}

// WriteUnpaired writes one row per identity left without a pair.
func WriteUnpaired(w io.Writer, list []pipeline.Unpaired) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(unpairedHeader); err != nil {
		return fmt.Errorf("write unpaired header: %w", err)
	}
	for _, u := range list {
		row := []string{
			u.Identity.String(),
			string(u.Procedure),
			u.Reason,
			u.Event.Record.Trace,
			strconv.FormatInt(u.Event.Sequence(), 10),
			u.Job.Function,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write unpaired row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAll writes every output of res into dir and returns the file names
// written, manifest last.
func WriteAll(dir string, res *pipeline.RunResult, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	files := []string{PairsFile, StatsFile, UnpairedFile}
	if err := writeFile(dir, PairsFile, func(w io.Writer) error { return WritePairs(w, res.Pairs) }); err != nil {
		return nil, err
	}
	if err := writeFile(dir, StatsFile, func(w io.Writer) error { return WriteStats(w, res.Summaries, opts.Percentiles) }); err != nil {
		return nil, err
	}
	if err := writeFile(dir, UnpairedFile, func(w io.Writer) error { return WriteUnpaired(w, res.Unpaired) }); err != nil {
		return nil, err
	}
	if opts.Events {
		if err := writeFile(dir, EventsFile, func(w io.Writer) error { return WriteEvents(w, res.Events) }); err != nil {
			return nil, err
		}
		files = append(files, EventsFile)
	}

	files = append(files, ManifestFile)
	m := NewManifest(res, opts, files)
	if err := writeFile(dir, ManifestFile, func(w io.Writer) error { return WriteManifest(w, m) }); err != nil {
		return nil, err
	}
	return files, nil
}

// writeFile fills a temporary file and renames it into place.
func writeFile(dir, name string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

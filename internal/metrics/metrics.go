// Package metrics implements Prometheus run counters. A run is a batch job,
// so every Recorder owns its registry and is exported once through a
// node-exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/proclat/internal/core"
)

// Job statuses.
const (
	JobOK      = "ok"
	JobPartial = "partial"
	JobFailed  = "failed"
)

// Recorder holds the counters of one run.
type Recorder struct {
	reg *prometheus.Registry

	// RecordsTotal counts records read per network function
	RecordsTotal *prometheus.CounterVec
	// DecodeFailuresTotal counts payloads that decoded to no text
	DecodeFailuresTotal *prometheus.CounterVec
	// UnmatchedTotal counts records no signature fired on
	UnmatchedTotal *prometheus.CounterVec
	// IgnoredTotal counts records claimed by an ignore signature
	IgnoredTotal *prometheus.CounterVec
	// EventsTotal counts classified events by procedure and role
	EventsTotal *prometheus.CounterVec
	// PairsTotal counts start/end pairs by procedure
	PairsTotal *prometheus.CounterVec
	// UnpairedTotal counts identities left without a pair
	UnpairedTotal *prometheus.CounterVec
	// JobsTotal counts jobs by final status
	JobsTotal *prometheus.CounterVec
	// TruncatedTracesTotal counts traces that ended inside a packet
	TruncatedTracesTotal *prometheus.CounterVec
	// LatencySeconds measures paired procedure latency
	LatencySeconds *prometheus.HistogramVec
}

// NewRecorder creates a Recorder on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_records_total",
				Help: "Total number of trace records read",
			},
			[]string{"function"},
		),
		DecodeFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_decode_failures_total",
				Help: "Total number of payloads that decoded to no text",
			},
			[]string{"function"},
		),
		UnmatchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_unmatched_records_total",
				Help: "Total number of records matching no signature",
			},
			[]string{"function"},
		),
		IgnoredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_ignored_records_total",
				Help: "Total number of records claimed by an ignore signature",
			},
			[]string{"function"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_classified_events_total",
				Help: "Total number of classified events",
			},
			[]string{"procedure", "role"},
		),
		PairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_pairs_total",
				Help: "Total number of start/end pairs",
			},
			[]string{"procedure"},
		),
		UnpairedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_unpaired_total",
				Help: "Total number of identities without a pair",
			},
			[]string{"procedure", "reason"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_jobs_total",
				Help: "Total number of jobs by final status",
			},
			[]string{"status"},
		),
		TruncatedTracesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proclat_truncated_traces_total",
				Help: "Total number of traces cut off inside a packet",
			},
			[]string{"function"},
		),
		LatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proclat_procedure_latency_seconds",
				Help:    "Latency between paired start and end events in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18), // 100µs to ~13s
			},
			[]string{"procedure"},
		),
	}
}

// ObservePair records one pair and its latency.
func (r *Recorder) ObservePair(p core.EventPair) {
	proc := string(p.Procedure)
	r.PairsTotal.WithLabelValues(proc).Inc()
	r.LatencySeconds.WithLabelValues(proc).Observe(p.LatencyMs() / 1000)
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile writes every metric in the text exposition format. The file
// is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

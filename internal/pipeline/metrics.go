package pipeline

import (
	"sync/atomic"

	"firestige.xyz/proclat/internal/correlate"
)

// Counters contains per-run totals, updated by units running in parallel.
type Counters struct {
	// Record counters (using atomic for thread-safety)
	Records        atomic.Uint64
	DecodeFailures atomic.Uint64
	Unmatched      atomic.Uint64
	Ignored        atomic.Uint64
	Events         atomic.Uint64
	Pairs          atomic.Uint64
	Unpaired       atomic.Uint64
	PartialJobs    atomic.Uint64
	FailedJobs     atomic.Uint64
}

// Totals is a point-in-time copy of Counters.
type Totals struct {
	Records        uint64 `yaml:"records"`
	DecodeFailures uint64 `yaml:"decode_failures"`
	Unmatched      uint64 `yaml:"unmatched"`
	Ignored        uint64 `yaml:"ignored"`
	Events         uint64 `yaml:"events"`
	Pairs          uint64 `yaml:"pairs"`
	Unpaired       uint64 `yaml:"unpaired"`
	PartialJobs    uint64 `yaml:"partial_jobs"`
	FailedJobs     uint64 `yaml:"failed_jobs"`
}

// NewCounters creates a new counters instance.
func NewCounters() *Counters {
	return &Counters{}
}

// Observe adds the classification stats of one job.
func (c *Counters) Observe(s correlate.ClassifyStats) {
	c.Records.Add(uint64(s.Records))
	c.DecodeFailures.Add(uint64(s.DecodeFailures))
	c.Unmatched.Add(uint64(s.Unmatched))
	c.Ignored.Add(uint64(s.Ignored))
	c.Events.Add(uint64(s.Events))
}

// Snapshot returns a copy of the current counter values.
func (c *Counters) Snapshot() Totals {
	return Totals{
		Records:        c.Records.Load(),
		DecodeFailures: c.DecodeFailures.Load(),
		Unmatched:      c.Unmatched.Load(),
		Ignored:        c.Ignored.Load(),
		Events:         c.Events.Load(),
		Pairs:          c.Pairs.Load(),
		Unpaired:       c.Unpaired.Load(),
		PartialJobs:    c.PartialJobs.Load(),
		FailedJobs:     c.FailedJobs.Load(),
	}
}

// Package stats aggregates latency samples into distribution summaries.
package stats

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"firestige.xyz/proclat/internal/log"
)

// whiskerFactor scales the IQR into the outlier fences.
const whiskerFactor = 1.5

// Quantile is one named percentile of a summary.
type Quantile struct {
	P     float64
	Value float64
}

// Name renders the column name, e.g. "p90" or "p99.9".
func (q Quantile) Name() string {
	return "p" + strconv.FormatFloat(q.P, 'f', -1, 64)
}

// Summary describes the latency distribution of one group, in milliseconds.
type Summary struct {
	Label string
	Count int

	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Q1     float64
	Q3     float64
	IQR    float64

	LowerWhisker  float64 // Q1 - 1.5*IQR
	UpperWhisker  float64 // Q3 + 1.5*IQR
	LowerOutliers int
	UpperOutliers int
	OutlierPct    float64

	Quantiles []Quantile
}

// Percentile interpolates linearly between the order statistics of sorted
// at rank (n-1)*p/100. sorted must be ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := float64(n-1) * p / 100
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// Summarize computes the summary of samples. An empty sample set yields a
// zero summary and a warning.
func Summarize(label string, samples []float64, percentiles []float64) Summary {
	s := Summary{Label: label, Count: len(samples)}
	if len(samples) == 0 {
		log.GetLogger().WithField("group", label).Warn("statistics group has no samples")
		for _, p := range percentiles {
			s.Quantiles = append(s.Quantiles, Quantile{P: p})
		}
		return s
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = sum / float64(len(sorted))
	s.Median = Percentile(sorted, 50)
	s.Q1 = Percentile(sorted, 25)
	s.Q3 = Percentile(sorted, 75)
	s.IQR = s.Q3 - s.Q1
	s.LowerWhisker = s.Q1 - whiskerFactor*s.IQR
	s.UpperWhisker = s.Q3 + whiskerFactor*s.IQR

	for _, v := range sorted {
		switch {
		case v < s.LowerWhisker:
			s.LowerOutliers++
		case v > s.UpperWhisker:
			s.UpperOutliers++
		}
	}
	s.OutlierPct = 100 * float64(s.LowerOutliers+s.UpperOutliers) / float64(s.Count)

	for _, p := range percentiles {
		s.Quantiles = append(s.Quantiles, Quantile{P: p, Value: Percentile(sorted, p)})
	}
	return s
}

// Labels are the dimension values of one sample, e.g. {"variant": "open5gs"}.
type Labels map[string]string

// GroupLabel joins the values of dims in order. Without dims every sample
// falls into the group "all"; a missing value renders as "-".
func GroupLabel(dims []string, labels Labels) string {
	if len(dims) == 0 {
		return "all"
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		v := labels[d]
		if v == "" {
			v = "-"
		}
		parts[i] = v
	}
	return strings.Join(parts, "/")
}

// Grouper collects samples by group label.
type Grouper struct {
	dims        []string
	percentiles []float64
	groups      map[string][]float64
}

// NewGrouper groups by dims and reports percentiles for every group.
func NewGrouper(dims []string, percentiles []float64) *Grouper {
	return &Grouper{dims: dims, percentiles: percentiles, groups: make(map[string][]float64)}
}

// Declare makes sure the group of labels is reported even without samples.
func (g *Grouper) Declare(labels Labels) {
	label := GroupLabel(g.dims, labels)
	if _, ok := g.groups[label]; !ok {
		g.groups[label] = nil
	}
}

// Add records one sample.
func (g *Grouper) Add(labels Labels, v float64) {
	label := GroupLabel(g.dims, labels)
	g.groups[label] = append(g.groups[label], v)
}

// Summaries returns one summary per group, ordered by label.
func (g *Grouper) Summaries() []Summary {
	labels := make([]string, 0, len(g.groups))
	for l := range g.groups {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	out := make([]Summary, 0, len(labels))
	for _, l := range labels {
		out = append(out, Summarize(l, g.groups[l], g.percentiles))
	}
	return out
}

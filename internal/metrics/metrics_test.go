package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/proclat/internal/core"
)

func pair(start, end float64) core.EventPair {
	return core.EventPair{
		Identity:  core.SubscriberId(1),
		Procedure: core.ProcedureRegistration,
		Start:     &core.ClassifiedEvent{Record: &core.Record{Timestamp: start}},
		End:       &core.ClassifiedEvent{Record: &core.Record{Timestamp: end}},
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()

	a.RecordsTotal.WithLabelValues("amf").Add(3)
	a.JobsTotal.WithLabelValues(JobFailed).Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(a.RecordsTotal.WithLabelValues("amf")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RecordsTotal.WithLabelValues("amf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.JobsTotal.WithLabelValues(JobFailed)))
}

func TestObservePair(t *testing.T) {
	r := NewRecorder()
	r.ObservePair(pair(1.0, 1.25))
	r.ObservePair(pair(2.0, 2.5))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.PairsTotal.WithLabelValues("ue_reg")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.LatencySeconds))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.EventsTotal.WithLabelValues("pdu_est", "start").Inc()
	r.UnpairedTotal.WithLabelValues("pdu_est", "no_end").Inc()

	path := filepath.Join(t.TempDir(), "proclat.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `proclat_classified_events_total{procedure="pdu_est",role="start"} 1`)
	assert.Contains(t, out, `proclat_unpaired_total{procedure="pdu_est",reason="no_end"} 1`)
}

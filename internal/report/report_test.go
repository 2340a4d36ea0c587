package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/correlate"
	"firestige.xyz/proclat/internal/discover"
	"firestige.xyz/proclat/internal/pipeline"
	"firestige.xyz/proclat/internal/stats"
)

var udmJob = discover.Job{
	Path:      "runs/10_a_ue_dereg_open5gs/10_udm_capture.json",
	Function:  "udm",
	Variant:   "open5gs",
	Procedure: core.ProcedureDeregistration,
	UECount:   10,
	Format:    "tsharkjson",
}

func classified(id core.CanonicalId, role core.Role, seq int64, ts float64, dir core.Direction, text string) *core.ClassifiedEvent {
	return &core.ClassifiedEvent{
		Record: &core.Record{
			Trace:     udmJob.Path,
			Function:  "udm",
			Sequence:  seq,
			Timestamp: ts,
			Direction: dir,
		},
		Identity:      id,
		Procedure:     core.ProcedureDeregistration,
		Role:          role,
		Signature:     1,
		SignatureName: map[core.Role]string{core.RoleStart: "purge_request"}[role],
		Text:          text,
	}
}

func sampleResult() *pipeline.RunResult {
	start := classified(core.OrdinalId(1), core.RoleStart, 3, 10.0, core.DirectionRecv, `{"guami":{},"purgeFlag":true}`)
	end := classified(core.OrdinalId(1), core.RoleEnd, 9, 10.25, core.DirectionSend, `[{"op":"replace"}]`)
	orphan := classified(core.OrdinalId(2), core.RoleEnd, 12, 11.0, core.DirectionSend, `a,"quoted"`)

	pairs := []pipeline.Pair{{
		EventPair: core.EventPair{Identity: start.Identity, Procedure: start.Procedure, Start: start, End: end},
		Job:       udmJob,
	}}
	summaries := []stats.Summary{
		stats.Summarize("open5gs/ue_dereg/10/udm", []float64{250}, []float64{50, 90}),
		stats.Summarize("open5gs/ue_dereg/20/udm", nil, []float64{50, 90}),
	}
	return &pipeline.RunResult{
		RunID: "3f0c2c1e-0000-4000-8000-000000000001",
		Jobs: []pipeline.JobResult{{
			Job:      udmJob,
			Status:   pipeline.StatusOK,
			Stats:    correlate.ClassifyStats{Records: 5, Events: 3},
			Pairs:    1,
			Unpaired: 1,
		}},
		Pairs: pairs,
		Unpaired: []pipeline.Unpaired{{
			Unpaired: correlate.Unpaired{Identity: orphan.Identity, Procedure: orphan.Procedure, Reason: correlate.ReasonNoStart, Event: orphan},
			Job:      udmJob,
		}},
		Events: []pipeline.Event{
			{ClassifiedEvent: start, Job: udmJob},
			{ClassifiedEvent: end, Job: udmJob},
			{ClassifiedEvent: orphan, Job: udmJob},
		},
		Summaries: summaries,
		Totals:    pipeline.Totals{Records: 5, Events: 3, Pairs: 1, Unpaired: 1},
	}
}

func TestWritePairs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePairs(&buf, sampleResult().Pairs))
	assert.Equal(t,
		"identity,procedure,start_timestamp,end_timestamp,start_frame,end_frame,direction_start,direction_end,latency_ms,variant,function,ue_count\n"+
			"seq:1,ue_dereg,10.000000000,10.250000000,3,9,recv,send,250.000,open5gs,udm,10\n",
		buf.String())
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	res := sampleResult()
	require.NoError(t, WriteStats(&buf, res.Summaries, []float64{50, 90}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "group_label,count,min,max,mean,median,q1,q3,iqr,lower_whisker,upper_whisker,lower_outliers,upper_outliers,outlier_pct,p50,p90", lines[0])
	assert.Equal(t, "open5gs/ue_dereg/10/udm,1,250.000,250.000,250.000,250.000,250.000,250.000,0.000,250.000,250.000,0,0,0.00,250.000,250.000", lines[1])
	assert.Equal(t, "open5gs/ue_dereg/20/udm,0,0.000,0.000,0.000,0.000,0.000,0.000,0.000,0.000,0.000,0,0,0.00,0.000,0.000", lines[2])
}

func TestWriteEventsAndUnpaired(t *testing.T) {
	res := sampleResult()

	var events bytes.Buffer
	require.NoError(t, WriteEvents(&events, res.Events))
	out := events.String()
	assert.Contains(t, out, "trace,frame_number,timestamp,direction,function,identity,procedure,signature,role,decoded_payload\n")
	assert.Contains(t, out, `,purge_request,start,"{""guami"":{},""purgeFlag"":true}"`)
	assert.Contains(t, out, `,#1,end,"a,""quoted"""`)

	var unpaired bytes.Buffer
	require.NoError(t, WriteUnpaired(&unpaired, res.Unpaired))
	assert.Equal(t,
		"identity,procedure,reason,trace,frame_number,function\n"+
			"seq:2,ue_dereg,no_start,"+udmJob.Path+",12,udm\n",
		unpaired.String())
}

func TestWriteAllIsIdempotent(t *testing.T) {
	opts := Options{Percentiles: []float64{50, 90}, GroupBy: []string{"variant"}, Events: true}
	a, b := t.TempDir(), t.TempDir()

	files, err := WriteAll(a, sampleResult(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{PairsFile, StatsFile, UnpairedFile, EventsFile, ManifestFile}, files)
	_, err = WriteAll(b, sampleResult(), opts)
	require.NoError(t, err)

	for _, name := range files {
		x, err := os.ReadFile(filepath.Join(a, name))
		require.NoError(t, err)
		y, err := os.ReadFile(filepath.Join(b, name))
		require.NoError(t, err)
		assert.Equal(t, x, y, name)
	}

	entries, err := os.ReadDir(a)
	require.NoError(t, err)
	assert.Len(t, entries, len(files), "no temporary files remain")
}

func TestWriteAllWithoutEvents(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	files, err := WriteAll(dir, sampleResult(), Options{})
	require.NoError(t, err)
	assert.NotContains(t, files, EventsFile)
	_, err = os.Stat(filepath.Join(dir, EventsFile))
	assert.True(t, os.IsNotExist(err))
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteAll(dir, sampleResult(), Options{Percentiles: []float64{50}, GroupBy: []string{"variant", "procedure"}})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	defer f.Close()

	m, err := ReadManifest(f)
	require.NoError(t, err)
	assert.Equal(t, "3f0c2c1e-0000-4000-8000-000000000001", m.RunID)
	assert.Equal(t, []string{"variant", "procedure"}, m.GroupBy)
	assert.Equal(t, uint64(5), m.Totals.Records)
	require.Len(t, m.Jobs, 1)
	assert.Equal(t, "ue_dereg", m.Jobs[0].Procedure)
	assert.Equal(t, pipeline.StatusOK, m.Jobs[0].Status)
	assert.Empty(t, m.Jobs[0].Error)
	assert.Equal(t, []string{PairsFile, StatsFile, UnpairedFile, ManifestFile}, m.Outputs)
}

func TestReadPairsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteAll(dir, sampleResult(), Options{})
	require.NoError(t, err)

	rows, err := ReadPairsFile(filepath.Join(dir, PairsFile))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.OrdinalId(1), rows[0].Identity)
	assert.Equal(t, 250.0, rows[0].LatencyMs)
	assert.Equal(t, stats.Labels{"variant": "open5gs", "procedure": "ue_dereg", "ue_count": "10", "function": "udm"}, rows[0].Labels)
}

func TestReadPairsWithoutLatencyColumn(t *testing.T) {
	rows, err := ReadPairs(strings.NewReader(
		"identity,procedure,start_timestamp,end_timestamp\n" +
			"sub:1,pdu_est,1.000000000,1.125000000\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.SubscriberId(1), rows[0].Identity)
	assert.InDelta(t, 125.0, rows[0].LatencyMs, 1e-9)
	assert.Equal(t, "pdu_est", rows[0].Labels["procedure"])
	assert.Empty(t, rows[0].Labels["variant"])
}

func TestReadPairsRejects(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"no id":      "procedure,latency_ms\nue_reg,1\n",
		"no latency": "identity,procedure\nsub:1,ue_reg\n",
		"bad value":  "identity,procedure,latency_ms\nsub:1,ue_reg,fast\n",
		"ragged":     "identity,procedure,latency_ms\nsub:1,ue_reg\n",
		"bad space":  "identity,procedure,latency_ms\nimsi:1,ue_reg,3\n",
		"bare id":    "identity,procedure,latency_ms\n42,ue_reg,3\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPairs(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}

	_, err := ReadPairsFile(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

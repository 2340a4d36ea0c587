package correlate

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/identity"
	"firestige.xyz/proclat/internal/signature"
)

func event(id core.CanonicalId, role core.Role, seq int64, ts float64, policy core.StartPolicy) *core.ClassifiedEvent {
	return &core.ClassifiedEvent{
		Record:    &core.Record{Trace: "t", Function: "amf", Sequence: seq, Timestamp: ts},
		Identity:  id,
		Procedure: core.ProcedureSessionEstablish,
		Role:      role,
		Policy:    policy,
	}
}

func textRecord(seq int64, ts float64, text string) *core.Record {
	return &core.Record{
		Trace:           "udm.json",
		Function:        "udm",
		Sequence:        seq,
		Timestamp:       ts,
		Direction:       core.DirectionRecv,
		Payload:         []byte(hex.EncodeToString([]byte(text))),
		PayloadEncoding: core.EncodingHex,
	}
}

func profileFromYAML(t *testing.T, doc, fn, variant string, proc core.ProcedureKind) *signature.Profile {
	t.Helper()
	f, err := config.ParseSignatures([]byte(doc))
	require.NoError(t, err)
	table, err := signature.Compile(f)
	require.NoError(t, err)
	p, err := table.Lookup(fn, variant, proc)
	require.NoError(t, err)
	return p
}

func TestStartPolicies(t *testing.T) {
	id := core.NativeId("5")
	tests := []struct {
		policy    core.StartPolicy
		wantStart float64
		latency   float64
	}{
		{core.StartFirstWins, 1.0, 2000},
		{core.StartLastWins, 2.0, 1000},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			events := []*core.ClassifiedEvent{
				event(id, core.RoleStart, 1, 1.0, tt.policy),
				event(id, core.RoleStart, 2, 2.0, tt.policy),
				event(id, core.RoleEnd, 3, 3.0, tt.policy),
			}
			res := NewEngine(Options{Workers: 2}).Correlate(events)

			require.Len(t, res.Pairs, 1)
			assert.Equal(t, tt.wantStart, res.Pairs[0].Start.Timestamp())
			assert.InDelta(t, tt.latency, res.Pairs[0].LatencyMs(), 1e-9)
			assert.Empty(t, res.Unpaired)
			assert.Equal(t, 1, res.States[StatePaired])
		})
	}
}

func TestEndWithoutStartIsDropped(t *testing.T) {
	id := core.SubscriberId(2)
	res := NewEngine(Options{}).Correlate([]*core.ClassifiedEvent{
		event(id, core.RoleEnd, 1, 1.0, core.StartFirstWins),
		event(id, core.RoleStart, 2, 2.0, core.StartFirstWins),
	})

	assert.Empty(t, res.Pairs)
	require.Len(t, res.Unpaired, 1)
	assert.Equal(t, ReasonNoEnd, res.Unpaired[0].Reason)
	assert.Equal(t, 1, res.Counters.DroppedEnds)

	res = NewEngine(Options{}).Correlate([]*core.ClassifiedEvent{
		event(id, core.RoleEnd, 1, 1.0, core.StartFirstWins),
	})
	assert.Empty(t, res.Pairs)
	require.Len(t, res.Unpaired, 1)
	assert.Equal(t, ReasonNoStart, res.Unpaired[0].Reason)
	assert.Equal(t, 1, res.States[StateAwaitingStart])
}

func TestPairedIsTerminal(t *testing.T) {
	id := core.OrdinalId(1)
	res := NewEngine(Options{}).Correlate([]*core.ClassifiedEvent{
		event(id, core.RoleStart, 1, 1.0, core.StartLastWins),
		event(id, core.RoleEnd, 2, 1.5, core.StartLastWins),
		event(id, core.RoleStart, 3, 2.0, core.StartLastWins),
		event(id, core.RoleEnd, 4, 9.0, core.StartLastWins),
	})

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, 1.0, res.Pairs[0].Start.Timestamp())
	assert.Equal(t, 1.5, res.Pairs[0].End.Timestamp())
	assert.Equal(t, 2, res.Counters.AfterPaired)
}

func TestProcessingOrderIsSequence(t *testing.T) {
	id := core.NativeId("9")
	// Supplied out of order: the end arrives first in the slice.
	res := NewEngine(Options{}).Correlate([]*core.ClassifiedEvent{
		event(id, core.RoleEnd, 20, 2.0, core.StartFirstWins),
		event(id, core.RoleStart, 10, 1.0, core.StartFirstWins),
	})
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, int64(10), res.Pairs[0].Start.Sequence())
}

func TestMergedOrderingUsesTimestamp(t *testing.T) {
	id := core.SubscriberId(7)
	start := event(id, core.RoleStart, 50, 1.0, core.StartFirstWins)
	start.Record.Trace = "ausf.json"
	end := event(id, core.RoleEnd, 3, 1.2, core.StartFirstWins)
	end.Record.Trace = "udm.json"

	single := NewEngine(Options{}).Correlate([]*core.ClassifiedEvent{start, end})
	assert.Empty(t, single.Pairs, "by sequence the end comes first")

	merged := NewEngine(Options{Merged: true}).Correlate([]*core.ClassifiedEvent{start, end})
	require.Len(t, merged.Pairs, 1)
	assert.InDelta(t, 200.0, merged.Pairs[0].LatencyMs(), 1e-9)
}

func TestMergedKeepsLocalIdsApart(t *testing.T) {
	id := core.OrdinalId(1)
	start := event(id, core.RoleStart, 1, 1.0, core.StartFirstWins)
	end := event(id, core.RoleEnd, 1, 1.5, core.StartFirstWins)
	end.Record.Function = "smf"

	res := NewEngine(Options{Merged: true}).Correlate([]*core.ClassifiedEvent{start, end})
	assert.Empty(t, res.Pairs)
	assert.Equal(t, 2, res.Counters.Groups)

	res = NewEngine(Options{}).Correlate([]*core.ClassifiedEvent{start, end})
	assert.Len(t, res.Pairs, 1)
}

func TestEndBeforeStartTimestampIsNotPaired(t *testing.T) {
	id := core.SubscriberId(8)
	start := event(id, core.RoleStart, 1, 5.0, core.StartFirstWins)
	end := event(id, core.RoleEnd, 2, 4.0, core.StartFirstWins)

	res := NewEngine(Options{}).Correlate([]*core.ClassifiedEvent{start, end})
	assert.Empty(t, res.Pairs)
	require.Len(t, res.Unpaired, 1)
	assert.Equal(t, ReasonNoEnd, res.Unpaired[0].Reason)
}

func TestCorrelateInvariantsAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var events []*core.ClassifiedEvent
	for seq := int64(1); seq <= 2000; seq++ {
		id := core.OrdinalId(uint64(rng.Intn(150) + 1))
		role := core.RoleStart
		if rng.Intn(2) == 0 {
			role = core.RoleEnd
		}
		policy := core.StartFirstWins
		if id.Value[len(id.Value)-1] == '7' {
			policy = core.StartLastWins
		}
		events = append(events, event(id, role, seq, float64(seq)*0.001, policy))
	}

	a := NewEngine(Options{Workers: 1}).Correlate(events)
	b := NewEngine(Options{Workers: 8}).Correlate(events)
	assert.Equal(t, a, b)

	seen := make(map[core.CanonicalId]bool)
	for _, p := range a.Pairs {
		assert.False(t, seen[p.Identity], "one pair per identity and procedure")
		seen[p.Identity] = true
		assert.GreaterOrEqual(t, p.End.Timestamp(), p.Start.Timestamp())
		assert.GreaterOrEqual(t, p.LatencyMs(), 0.0)
	}
	for _, u := range a.Unpaired {
		assert.False(t, seen[u.Identity])
	}
	total := 0
	for _, n := range a.States {
		total += n
	}
	assert.Equal(t, a.Counters.Groups, total)
}

const purgeTable = `
functions:
  udm:
    open5gs:
      ue_dereg:
        identity: pattern
        signatures:
          - {name: purge, role: end, pattern: '"purgeFlag"\s*:\s*true', ignore_case: true}
          - {name: keepalive, role: ignore, pattern: 'heartbeat'}
          - {name: dereg_notify, role: start, pattern: '"deregReason"'}
`

func TestPurgeFlagScenario(t *testing.T) {
	p := profileFromYAML(t, purgeTable, "udm", "open5gs", core.ProcedureDeregistration)
	c := NewClassifier(p, identity.NewAllocator())

	records := []*core.Record{
		textRecord(1, 10.000, `{"supi":"imsi-001010000000001","deregReason":"UE_INITIAL_REGISTRATION"}`),
		textRecord(2, 10.125, `{"supi":"imsi-001010000000002","purgeFlag":true}`),
		textRecord(3, 10.250, "{\"supi\":\"imsi-001010000000001\",\r\n\"purgeFlag\":true}"),
		textRecord(4, 10.300, `heartbeat "deregReason"`),
		textRecord(5, 10.400, `GET /nudm-uecm/v1/health`),
		{Trace: "udm.json", Function: "udm", Sequence: 6, Timestamp: 10.5, Payload: []byte("zz"), PayloadEncoding: core.EncodingHex},
	}

	events, stats := c.Classify(records)
	assert.Equal(t, ClassifyStats{Records: 6, DecodeFailures: 1, Unmatched: 2, Ignored: 1, Events: 3}, stats)
	require.Len(t, events, 3)
	assert.Equal(t, core.SubscriberId(1), events[0].Identity)
	assert.Equal(t, core.RoleStart, events[0].Role)
	assert.Equal(t, "dereg_notify", events[0].SignatureName)
	assert.NotContains(t, events[2].Text, "\n")

	res := NewEngine(Options{}).Correlate(events)
	require.Len(t, res.Pairs, 1)
	pair := res.Pairs[0]
	assert.Equal(t, core.SubscriberId(1), pair.Identity)
	assert.Equal(t, 10.000, pair.Start.Timestamp())
	assert.Equal(t, 10.250, pair.End.Timestamp())
	assert.InDelta(t, 250.0, pair.LatencyMs(), 1e-6)

	// Subscriber 2 only ended: it is in the event log but not in the pairs.
	require.Len(t, res.Unpaired, 1)
	assert.Equal(t, core.SubscriberId(2), res.Unpaired[0].Identity)
	assert.Equal(t, ReasonNoStart, res.Unpaired[0].Reason)
}

const counterTable = `
functions:
  smf:
    open5gs:
      pdu_rel:
        identity: counter
        signatures:
          - {role: start, pattern: 'release-request'}
          - {role: end, pattern: 'release-command'}
`

func TestCounterFallbackPairsByOrdinal(t *testing.T) {
	p := profileFromYAML(t, counterTable, "smf", "open5gs", core.ProcedureSessionRelease)
	c := NewClassifier(p, identity.NewAllocator())

	var records []*core.Record
	seq := int64(0)
	for i := 0; i < 3; i++ {
		seq++
		records = append(records, textRecord(seq, float64(seq), "release-request"))
	}
	for i := 0; i < 3; i++ {
		seq++
		records = append(records, textRecord(seq, float64(seq), "release-command"))
	}

	events, _ := c.Classify(records)
	require.Len(t, events, 6)
	for i, ev := range events[:3] {
		assert.Equal(t, core.OrdinalId(uint64(i+1)), ev.Identity)
	}
	for i, ev := range events[3:] {
		assert.Equal(t, core.OrdinalId(uint64(i+1)), ev.Identity)
	}

	res := NewEngine(Options{}).Correlate(events)
	require.Len(t, res.Pairs, 3)
	for i, pair := range res.Pairs {
		assert.Equal(t, core.OrdinalId(uint64(i+1)), pair.Identity)
		assert.InDelta(t, 3000.0, pair.LatencyMs(), 1e-9)
	}
}

func ngapRecord(seq int64, ts float64, pktType string, msgs ...core.Tree) *core.Record {
	return &core.Record{
		Trace:     "amf.pdml",
		Function:  "amf",
		Sequence:  seq,
		Timestamp: ts,
		Direction: core.DirectionFromPacketTypeString(pktType),
		Fields: core.Map(
			core.E(core.LayerFrame, core.Map(core.E(core.FieldFrameNumber, core.Scalar(fmt.Sprint(seq))))),
			core.E(core.LayerNGAP, core.List(msgs...)),
		),
	}
}

func ngapMsg(code, outcome, ranId string) core.Tree {
	return core.Map(
		core.E(core.FieldNGAPProcedureCode, core.Scalar(code)),
		core.E(outcome, core.Map(core.E(core.FieldNGAPRanUeId, core.Scalar(ranId)))),
	)
}

func TestClassifyProtocolTree(t *testing.T) {
	table, err := signature.Load("")
	require.NoError(t, err)
	p, err := table.Lookup("amf", "open5gs", core.ProcedureRegistration)
	require.NoError(t, err)

	records := []*core.Record{
		ngapRecord(1, 0.10, "0", ngapMsg("15", core.FieldNGAPInitiating, "1")),
		ngapRecord(2, 0.11, "0", ngapMsg("15", core.FieldNGAPInitiating, "2")),
		ngapRecord(3, 0.20, "4",
			ngapMsg("14", core.FieldNGAPInitiating, "1"),
			ngapMsg("14", core.FieldNGAPInitiating, "2"),
		),
		ngapRecord(4, 0.30, "0", ngapMsg("14", core.FieldNGAPSuccessful, "1")),
	}

	events, stats := NewClassifier(p, identity.NewAllocator()).Classify(records)
	assert.Equal(t, 4, stats.Events)
	assert.Equal(t, 1, stats.Unmatched)
	require.Len(t, events, 4)
	assert.Equal(t, core.DirectionRecv, events[0].Record.Direction)
	assert.Equal(t, core.DirectionSend, events[2].Record.Direction)

	res := NewEngine(Options{}).Correlate(events)
	require.Len(t, res.Pairs, 2)
	assert.Equal(t, core.NativeId("1"), res.Pairs[0].Identity)
	assert.InDelta(t, 100.0, res.Pairs[0].LatencyMs(), 1e-9)
	assert.Equal(t, core.NativeId("2"), res.Pairs[1].Identity)
	assert.InDelta(t, 90.0, res.Pairs[1].LatencyMs(), 1e-9)
}

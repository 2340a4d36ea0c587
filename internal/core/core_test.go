package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionFromPacketType(t *testing.T) {
	tests := []struct {
		in       string
		expected Direction
	}{
		{"0", DirectionRecv},
		{"4", DirectionSend},
		{"1", DirectionUnknown},
		{"3", DirectionUnknown},
		{"", DirectionUnknown},
		{"abc", DirectionUnknown},
		{" 4 ", DirectionSend},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("pkttype=%q", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.expected, DirectionFromPacketTypeString(tt.in))
		})
	}
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, DirectionSend, ParseDirection("SEND"))
	assert.Equal(t, DirectionRecv, ParseDirection("recv"))
	assert.Equal(t, DirectionUnknown, ParseDirection("sideways"))
}

func TestParseProcedure(t *testing.T) {
	for _, p := range Procedures() {
		got, err := ParseProcedure(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.NotEqual(t, string(p), p.DisplayName())
	}

	_, err := ParseProcedure("handover")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProcedure))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Start")
	require.NoError(t, err)
	assert.Equal(t, RoleStart, r)

	r, err = ParseRole("unrelated")
	require.NoError(t, err)
	assert.Equal(t, RoleIgnore, r)

	_, err = ParseRole("middle")
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestCanonicalId(t *testing.T) {
	t.Run("SpacesNeverCollide", func(t *testing.T) {
		assert.NotEqual(t, SubscriberId(1), OrdinalId(1))
		assert.NotEqual(t, NativeId("1"), OrdinalId(1))
		assert.Equal(t, OrdinalId(7), OrdinalId(7))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		for _, id := range []CanonicalId{NativeId("17"), SubscriberId(1234567890), OrdinalId(3)} {
			parsed, ok := ParseCanonicalId(id.String())
			require.True(t, ok, id.String())
			assert.Equal(t, id, parsed)
		}
		_, ok := ParseCanonicalId("bogus")
		assert.False(t, ok)
	})

	t.Run("NumericOrdering", func(t *testing.T) {
		assert.True(t, OrdinalId(2).Less(OrdinalId(10)))
		assert.False(t, OrdinalId(10).Less(OrdinalId(2)))
		assert.True(t, NativeId("99").Less(SubscriberId(1)))
	})

	t.Run("Zero", func(t *testing.T) {
		var id CanonicalId
		assert.True(t, id.IsZero())
		assert.Equal(t, "", id.String())
	})
}

func sampleNGAPTree() Tree {
	// Two NGAP PDUs in one frame, second one missing its own outcome element.
	return Map(
		E(LayerFrame, Map(
			E(FieldFrameNumber, Scalar("12")),
			E(FieldFrameTimeRelative, Scalar("1.5")),
		)),
		E(LayerNGAP, List(
			Map(
				E(FieldNGAPProcedureCode, Scalar("15")),
				E(FieldNGAPInitiating, Map(
					E(FieldNGAPRanUeId, Scalar("1")),
				)),
			),
			Map(
				E(FieldNGAPProcedureCode, Scalar("14")),
				E(FieldNGAPRanUeId, Scalar("2")),
			),
		)),
	)
}

func TestTreeFindAll(t *testing.T) {
	tree := sampleNGAPTree()

	assert.Equal(t, []string{"1", "2"}, tree.FindAll(FieldNGAPRanUeId))
	assert.Equal(t, []string{"15", "14"}, tree.FindAll(FieldNGAPProcedureCode))
	assert.Empty(t, tree.FindAll("ngap.missing"))

	first, ok := tree.First(FieldNGAPProcedureCode)
	require.True(t, ok)
	assert.Equal(t, "15", first)
}

func TestTreeFindAnyKeepsDocumentOrder(t *testing.T) {
	tree := Map(
		E("a", Scalar("1")),
		E("b", Map(E("a", Scalar("2")))),
		E("a", Scalar("3")),
	)
	matches := tree.FindAny("a", "b")
	require.Len(t, matches, 4)
	names := []string{matches[0].Name, matches[1].Name, matches[2].Name, matches[3].Name}
	assert.Equal(t, []string{"a", "b", "a", "a"}, names)
	assert.Empty(t, tree.FindAny("c"))
}

func TestTreeGet(t *testing.T) {
	tree := sampleNGAPTree()

	v, ok := tree.Get(LayerFrame, FieldFrameNumber)
	require.True(t, ok)
	text, ok := v.Text()
	require.True(t, ok)
	assert.Equal(t, "12", text)

	_, ok = tree.Get(LayerFrame, "frame.missing")
	assert.False(t, ok)

	list, ok := tree.Get(LayerNGAP)
	require.True(t, ok)
	_, ok = list.Text()
	assert.False(t, ok, "list is not a scalar")

	var empty Tree
	assert.True(t, empty.IsEmpty())
	assert.Empty(t, empty.FindAll("anything"))
}

func TestEventPairLatency(t *testing.T) {
	start := &ClassifiedEvent{Record: &Record{Timestamp: 10.000}}
	end := &ClassifiedEvent{Record: &Record{Timestamp: 10.250}}
	p := EventPair{Start: start, End: end}
	assert.InDelta(t, 250.0, p.LatencyMs(), 1e-9)
}

func TestParseIdentityStrategyAndStartPolicy(t *testing.T) {
	s, err := ParseIdentityStrategy("")
	require.NoError(t, err)
	assert.Equal(t, IdentityPattern, s)

	s, err = ParseIdentityStrategy("NATIVE")
	require.NoError(t, err)
	assert.Equal(t, IdentityNative, s)

	_, err = ParseIdentityStrategy("guess")
	assert.ErrorIs(t, err, ErrConfigInvalid)

	p, err := ParseStartPolicy("")
	require.NoError(t, err)
	assert.Equal(t, StartFirstWins, p)

	p, err = ParseStartPolicy("last_wins")
	require.NoError(t, err)
	assert.Equal(t, StartLastWins, p)

	_, err = ParseStartPolicy("middle_wins")
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

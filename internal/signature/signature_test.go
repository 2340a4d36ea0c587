package signature

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/core"
)

func compileYAML(t *testing.T, doc string) *Table {
	t.Helper()
	f, err := config.ParseSignatures([]byte(doc))
	require.NoError(t, err)
	table, err := Compile(f)
	require.NoError(t, err)
	return table
}

func TestDefaultTableCompiles(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	require.NotEmpty(t, table.Profiles())

	p, err := table.Lookup("AMF", "open5gs", core.ProcedureRegistration)
	require.NoError(t, err)
	assert.Equal(t, core.IdentityNative, p.Identity)
	assert.Equal(t, core.StartFirstWins, p.StartPolicy)
	assert.True(t, p.HasFields())
	assert.False(t, p.HasText())
	assert.Equal(t, "amf/open5gs/ue_reg", p.Key().String())
}

func TestLookupUnknownCombination(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)

	_, err = table.Lookup("amf", "aether", core.ProcedureRegistration)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownCombination))

	_, err = table.Lookup("nrf", "open5gs", core.ProcedureRegistration)
	assert.True(t, errors.Is(err, core.ErrUnknownCombination))
}

func TestFirstMatchPriority(t *testing.T) {
	table := compileYAML(t, `
functions:
  udm:
    open5gs:
      ue_dereg:
        identity: counter
        signatures:
          - {name: broad, role: end, pattern: 'purgeFlag'}
          - {name: exact, role: start, pattern: '"purgeFlag"\s*:\s*true'}
`)
	p, err := table.Lookup("udm", "open5gs", core.ProcedureDeregistration)
	require.NoError(t, err)

	idx, ok := p.MatchText(`{"purgeFlag":true}`)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, core.RoleEnd, p.Signatures[idx].Role)
	assert.Equal(t, "broad", p.Signatures[idx].Label())

	_, ok = p.MatchText(`{"authType":"5G_AKA"}`)
	assert.False(t, ok)
	_, ok = p.MatchText("")
	assert.False(t, ok)
}

func TestDefaultPCFResponseBeforeRequest(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	p, err := table.Lookup("pcf", "free5gc", core.ProcedureRegistration)
	require.NoError(t, err)

	idx, ok := p.MatchText(`{"request":{"notificationUri":"http://amf","supi":"imsi-208930000000001"},"triggers":[]}`)
	require.True(t, ok)
	assert.Equal(t, core.RoleEnd, p.Signatures[idx].Role)

	idx, ok = p.MatchText(`{"notificationUri":"http://amf","supi":"imsi-208930000000001"}`)
	require.True(t, ok)
	assert.Equal(t, core.RoleStart, p.Signatures[idx].Role)
}

func TestPerlSyntaxLookahead(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	p, err := table.Lookup("smf", "free5gc", core.ProcedureSessionRelease)
	require.NoError(t, err)

	idx, ok := p.MatchText("POST /oauth2/token grant_type=client_credentials&nfInstanceId=x&nfType=SMF&scope=npcf-smpolicycontrol&targetNfType=PCF")
	require.True(t, ok)
	assert.Equal(t, "sm_policy_token", p.Signatures[idx].Name)
	assert.Equal(t, core.RoleStart, p.Signatures[idx].Role)

	_, ok = p.MatchText("grant_type=client_credentials&nfType=AMF&scope=npcf-smpolicycontrol")
	assert.False(t, ok)
}

func TestCaseAndDotAllFlags(t *testing.T) {
	table := compileYAML(t, `
functions:
  ausf:
    open5gs:
      ue_reg:
        signatures:
          - {role: start, pattern: 'supi.+suci', ignore_case: true, dot_all: true}
          - {role: end, pattern: 'done', syntax: perl, ignore_case: true}
`)
	p, err := table.Lookup("ausf", "open5gs", core.ProcedureRegistration)
	require.NoError(t, err)

	idx, ok := p.MatchText("SUPI\nSUCI")
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = p.MatchText("DONE")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestCompileRejectsBadPattern(t *testing.T) {
	for _, syntax := range []string{"re2", "perl"} {
		t.Run(syntax, func(t *testing.T) {
			f, err := config.ParseSignatures([]byte(`
functions:
  smf:
    open5gs:
      pdu_est:
        identity: counter
        signatures:
          - {role: start, pattern: '(unclosed', syntax: ` + syntax + `}
`))
			require.NoError(t, err)
			_, err = Compile(f)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConfigInvalid))
		})
	}
}

// ngapFrame carries two NGAP messages; the second has no outcome element of
// its own, so it inherits the last one seen.
func ngapFrame() core.Tree {
	return core.Map(
		core.E(core.LayerFrame, core.Map(core.E(core.FieldFrameNumber, core.Scalar("7")))),
		core.E(core.LayerNGAP, core.List(
			core.Map(
				core.E(core.FieldNGAPProcedureCode, core.Scalar("15")),
				core.E(core.FieldNGAPInitiating, core.Map(
					core.E(core.FieldNGAPRanUeId, core.Scalar("1")),
				)),
			),
			core.Map(
				core.E(core.FieldNGAPProcedureCode, core.Scalar("14")),
				core.E(core.FieldNGAPRanUeId, core.Scalar("2")),
			),
		)),
	)
}

func TestViewsPositionalAlignment(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	p, err := table.Lookup("amf", "free5gc", core.ProcedureRegistration)
	require.NoError(t, err)

	views := p.Views(ngapFrame())
	require.Len(t, views, 2)

	assert.Equal(t, "1", views[0].NativeId)
	code, _ := views[0].Get(core.FieldNGAPProcedureCode)
	assert.Equal(t, "15", code)
	outcome, _ := views[0].Get("outcome")
	assert.Equal(t, "initiating", outcome)

	assert.Equal(t, "2", views[1].NativeId)
	code, _ = views[1].Get(core.FieldNGAPProcedureCode)
	assert.Equal(t, "14", code)
	outcome, ok := views[1].Get("outcome")
	require.True(t, ok)
	assert.Equal(t, "initiating", outcome, "falls back to the last outcome seen")

	idx, ok := p.MatchFields(views[0])
	require.True(t, ok)
	assert.Equal(t, core.RoleStart, p.Signatures[idx].Role)

	idx, ok = p.MatchFields(views[1])
	require.True(t, ok)
	assert.Equal(t, core.RoleEnd, p.Signatures[idx].Role)
}

func TestViewsWithoutNativeId(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	p, err := table.Lookup("amf", "open5gs", core.ProcedureRegistration)
	require.NoError(t, err)

	frame := core.Map(core.E(core.LayerNGAP, core.Map(core.E(core.FieldNGAPProcedureCode, core.Scalar("15")))))
	assert.Empty(t, p.Views(frame))
	assert.Empty(t, p.Views(core.Tree{}))
}

func TestTextAndFieldSignaturesStayApart(t *testing.T) {
	table := compileYAML(t, `
functions:
  amf:
    open5gs:
      ue_reg:
        identity: counter
        signatures:
          - {role: start, pattern: '15'}
          - {role: end, fields: {ngap.procedureCode: "14"}}
`)
	p, err := table.Lookup("amf", "open5gs", core.ProcedureRegistration)
	require.NoError(t, err)
	assert.True(t, p.HasText())
	assert.True(t, p.HasFields())

	view := NewFieldView("", map[string]string{core.FieldNGAPProcedureCode: "15"})
	_, ok := p.MatchFields(view)
	assert.False(t, ok, "a view never satisfies a text signature")

	_, ok = p.MatchText("procedureCode 14")
	assert.False(t, ok, "text never satisfies a field signature")

	// Without a native id field a frame projects into a single view.
	views := p.Views(core.Map(core.E(core.FieldNGAPProcedureCode, core.Scalar("14"))))
	require.Len(t, views, 1)
	idx, ok := p.MatchFields(views[0])
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

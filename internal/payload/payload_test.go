package payload

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/proclat/internal/core"
)

// colonHex renders s the way tshark prints tcp.payload.
func colonHex(s string) string {
	h := hex.EncodeToString([]byte(s))
	parts := make([]string, 0, len(h)/2)
	for i := 0; i < len(h); i += 2 {
		parts = append(parts, h[i:i+2])
	}
	return strings.Join(parts, ":")
}

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
		ok   bool
	}{
		{"colon separated", "7b:22:7d", []byte(`{"}`), true},
		{"plain", "7b227d", []byte(`{"}`), true},
		{"whitespace", "7b 22\n7d", []byte(`{"}`), true},
		{"odd length", "7b:2", nil, false},
		{"bad digit", "zz:00", nil, false},
		{"empty", "", nil, false},
		{"only separators", ":::", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeHex(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextStripsNonPrintable(t *testing.T) {
	in := []byte("POST /nudm\r\n{\"purgeFlag\":\ttrue}\x00\x01")
	assert.Equal(t, `POST /nudm{"purgeFlag":true}`, Text(in))
}

func TestTextDropsInvalidUTF8(t *testing.T) {
	in := []byte{'a', 0xff, 0xfe, 'b', 0xc3, 0xa9}
	assert.Equal(t, "abé", Text(in))
}

func TestTextIsSingleLine(t *testing.T) {
	out := Text([]byte("line1\nline2\rline3\u2028"))
	assert.NotContains(t, out, "\n")
	assert.NotContains(t, out, "\r")
	assert.Equal(t, "line1line2line3", out)
}

func TestDecode(t *testing.T) {
	body := "{\"supi\":\"imsi-001010000000001\"}\r\n"

	assert.Equal(t, `{"supi":"imsi-001010000000001"}`, Decode([]byte(colonHex(body)), core.EncodingHex))
	assert.Equal(t, `{"supi":"imsi-001010000000001"}`, Decode([]byte(body), core.EncodingRaw))
	assert.Equal(t, "", Decode([]byte("not hex"), core.EncodingHex))
	assert.Equal(t, "", Decode(nil, core.EncodingRaw))
	assert.Equal(t, "", Decode([]byte("x"), core.PayloadEncoding(99)))
}

func TestRecordText(t *testing.T) {
	r := &core.Record{Payload: []byte(colonHex("hello")), PayloadEncoding: core.EncodingHex}
	require.True(t, r.HasPayload())
	assert.Equal(t, "hello", RecordText(r))
	assert.Equal(t, "", RecordText(&core.Record{}))
	assert.Equal(t, "", RecordText(nil))
}

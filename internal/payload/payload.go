// Package payload turns captured transport payloads into single-line text
// for signature matching. Decoding never fails loudly: malformed input
// yields the empty string, which callers treat as "no signal".
package payload

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"firestige.xyz/proclat/internal/core"
)

// printable drops every rune that is not printable, which covers invalid
// UTF-8 (seen as RuneError), control characters and line breaks.
var printable = runes.Remove(runes.Predicate(func(r rune) bool {
	return r == utf8.RuneError || !unicode.IsPrint(r)
}))

var separators = strings.NewReplacer(":", "", " ", "", "\t", "", "\n", "", "\r", "")

// DecodeHex decodes hex text such as "7b:22:61" into octets.
// Separators ":" and whitespace are ignored.
func DecodeHex(s string) ([]byte, bool) {
	clean := separators.Replace(s)
	if clean == "" {
		return nil, false
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Text renders octets as printable single-line text.
func Text(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, _, err := transform.Bytes(printable, b)
	if err != nil {
		return ""
	}
	return string(out)
}

// Decode dispatches on the payload encoding. The result is "" on any failure.
func Decode(b []byte, enc core.PayloadEncoding) string {
	switch enc {
	case core.EncodingHex:
		raw, ok := DecodeHex(string(b))
		if !ok {
			return ""
		}
		return Text(raw)
	case core.EncodingRaw:
		return Text(b)
	default:
		return ""
	}
}

// RecordText is Decode applied to a record's payload.
func RecordText(r *core.Record) string {
	if r == nil || !r.HasPayload() {
		return ""
	}
	return Decode(r.Payload, r.PayloadEncoding)
}

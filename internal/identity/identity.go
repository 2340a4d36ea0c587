// Package identity derives the CanonicalId of a classified record.
package identity

import (
	"regexp"
	"strconv"
	"strings"

	"firestige.xyz/proclat/internal/core"
)

// subscriberPattern finds a permanent (imsi-<digits>, also without the dash)
// or a concealed (suci-<n>-<n>-...) subscriber identifier.
var subscriberPattern = regexp.MustCompile(`(?i)(?:imsi-?(\d{5,15})|(suci-\d+(?:-\d+){5,}))`)

// lastDigits is the numeric suffix kept from an identifier, so that a SUCI
// and the IMSI it conceals usually normalize to the same value.
const lastDigits = 10

// ExtractSubscriber returns the normalized subscriber number of the first
// identifier found in text.
func ExtractSubscriber(text string) (uint64, bool) {
	m := subscriberPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	var digits string
	if m[1] != "" {
		digits = m[1]
	} else {
		digits = onlyDigits(m[2])
	}
	if len(digits) > lastDigits {
		digits = digits[len(digits)-lastDigits:]
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Candidate is a matched record waiting for its identity.
type Candidate struct {
	Record    *core.Record
	Procedure core.ProcedureKind
	Signature int

	NativeId string // Value of the native id field occurrence, "" if absent
	Text     string // Decoded payload text, "" if none
}

// Normalizer resolves identities with one strategy.
type Normalizer struct {
	strategy  core.IdentityStrategy
	allocator *Allocator
}

// NewNormalizer binds a strategy to an allocator.
func NewNormalizer(strategy core.IdentityStrategy, allocator *Allocator) *Normalizer {
	return &Normalizer{strategy: strategy, allocator: allocator}
}

// Resolve returns the identity of c. The counter fallback always yields an
// id, so Resolve never fails; ordinal ids live in their own space and never
// equal a native or subscriber id.
func (n *Normalizer) Resolve(c Candidate) core.CanonicalId {
	switch n.strategy {
	case core.IdentityNative:
		if v := strings.TrimSpace(c.NativeId); v != "" {
			return core.NativeId(v)
		}
		fallthrough
	case core.IdentityPattern:
		if v, ok := ExtractSubscriber(c.Text); ok {
			return core.SubscriberId(v)
		}
	}
	return core.OrdinalId(n.allocator.Next(n.key(c)))
}

func (n *Normalizer) key(c Candidate) Key {
	k := Key{Procedure: c.Procedure, Signature: c.Signature}
	if c.Record != nil {
		k.Function = c.Record.Function
	}
	return k
}

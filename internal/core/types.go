// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction of a captured message relative to the capturing network function.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionRecv    Direction = "recv"
	DirectionUnknown Direction = "unknown"
)

// Linux cooked-capture packet types (sll.pkttype).
const (
	PacketTypeHost     = 0 // addressed to the capturing host
	PacketTypeOutgoing = 4 // sent by the capturing host
)

// DirectionFromPacketType maps a link-layer packet-type value to a Direction.
func DirectionFromPacketType(pktType int) Direction {
	switch pktType {
	case PacketTypeHost:
		return DirectionRecv
	case PacketTypeOutgoing:
		return DirectionSend
	default:
		return DirectionUnknown
	}
}

// DirectionFromPacketTypeString is DirectionFromPacketType for textual field values.
func DirectionFromPacketTypeString(s string) Direction {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return DirectionUnknown
	}
	return DirectionFromPacketType(v)
}

// ParseDirection accepts "send", "recv" or anything else as unknown.
func ParseDirection(s string) Direction {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionSend:
		return DirectionSend
	case DirectionRecv:
		return DirectionRecv
	default:
		return DirectionUnknown
	}
}

// ProcedureKind selects the signature table and pairing rules of a measurement.
type ProcedureKind string

const (
	ProcedureRegistration        ProcedureKind = "ue_reg"
	ProcedureRegistrationSession ProcedureKind = "ue_reg_pdu"
	ProcedureDeregistration      ProcedureKind = "ue_dereg"
	ProcedureSessionEstablish    ProcedureKind = "pdu_est"
	ProcedureSessionRelease      ProcedureKind = "pdu_rel"
)

var procedureNames = map[ProcedureKind]string{
	ProcedureRegistration:        "UE Registration",
	ProcedureRegistrationSession: "UE Registration with PDU Session Establishment",
	ProcedureDeregistration:      "UE Deregistration",
	ProcedureSessionEstablish:    "PDU Session Establishment",
	ProcedureSessionRelease:      "PDU Session Release",
}

// Procedures returns every known procedure in a stable order.
func Procedures() []ProcedureKind {
	return []ProcedureKind{
		ProcedureRegistration,
		ProcedureRegistrationSession,
		ProcedureDeregistration,
		ProcedureSessionEstablish,
		ProcedureSessionRelease,
	}
}

// ParseProcedure parses a procedure tag such as "ue_reg".
func ParseProcedure(s string) (ProcedureKind, error) {
	p := ProcedureKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := procedureNames[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProcedure, s)
	}
	return p, nil
}

// DisplayName returns the human readable procedure name.
func (p ProcedureKind) DisplayName() string {
	if n, ok := procedureNames[p]; ok {
		return n
	}
	return string(p)
}

// Role is the semantic phase a signature assigns to a message.
type Role string

const (
	RoleStart Role = "start"
	RoleEnd   Role = "end"
	// RoleIgnore claims a message as unrelated so later signatures cannot match it.
	RoleIgnore Role = "ignore"
)

// ParseRole parses a role name. "unrelated" is accepted as an alias of ignore.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return RoleStart, nil
	case "end":
		return RoleEnd, nil
	case "ignore", "unrelated":
		return RoleIgnore, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrConfigInvalid, s)
	}
}

// IdentitySpace tells where a CanonicalId came from. Ids from different
// spaces never compare equal even when their values coincide.
type IdentitySpace uint8

const (
	SpaceNative IdentitySpace = iota + 1
	SpaceSubscriber
	SpaceOrdinal
)

func (s IdentitySpace) String() string {
	switch s {
	case SpaceNative:
		return "native"
	case SpaceSubscriber:
		return "sub"
	case SpaceOrdinal:
		return "seq"
	default:
		return "none"
	}
}

// CanonicalId is the unified per-subscriber correlation key.
type CanonicalId struct {
	Space IdentitySpace
	Value string
}

// NativeId wraps a per-session identifier taken verbatim from a protocol field.
func NativeId(v string) CanonicalId { return CanonicalId{Space: SpaceNative, Value: v} }

// SubscriberId wraps a normalized long-term/concealed subscriber number.
func SubscriberId(v uint64) CanonicalId {
	return CanonicalId{Space: SpaceSubscriber, Value: strconv.FormatUint(v, 10)}
}

// OrdinalId wraps a fallback occurrence counter value.
func OrdinalId(v uint64) CanonicalId {
	return CanonicalId{Space: SpaceOrdinal, Value: strconv.FormatUint(v, 10)}
}

// IsZero reports whether the id is unset.
func (c CanonicalId) IsZero() bool { return c.Space == 0 }

// String renders "space:value", e.g. "sub:1" or "seq:3".
func (c CanonicalId) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Space.String() + ":" + c.Value
}

// ParseCanonicalId is the inverse of String.
func ParseCanonicalId(s string) (CanonicalId, bool) {
	space, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return CanonicalId{}, false
	}
	switch space {
	case "native":
		return CanonicalId{Space: SpaceNative, Value: value}, true
	case "sub":
		return CanonicalId{Space: SpaceSubscriber, Value: value}, true
	case "seq":
		return CanonicalId{Space: SpaceOrdinal, Value: value}, true
	default:
		return CanonicalId{}, false
	}
}

// Less orders ids by space, then numerically when both values are numbers.
func (c CanonicalId) Less(o CanonicalId) bool {
	if c.Space != o.Space {
		return c.Space < o.Space
	}
	a, errA := strconv.ParseUint(c.Value, 10, 64)
	b, errB := strconv.ParseUint(o.Value, 10, 64)
	if errA == nil && errB == nil {
		return a < b
	}
	if (errA == nil) != (errB == nil) {
		return errA == nil
	}
	return c.Value < o.Value
}

// IdentityStrategy selects how the Identity Normalizer derives a CanonicalId.
type IdentityStrategy string

const (
	// IdentityNative uses the native id field, then a subscriber pattern, then the counter.
	IdentityNative IdentityStrategy = "native"
	// IdentityPattern uses a subscriber pattern in decoded text, then the counter.
	IdentityPattern IdentityStrategy = "pattern"
	// IdentityCounter always uses the per-signature occurrence counter.
	IdentityCounter IdentityStrategy = "counter"
)

// ParseIdentityStrategy parses a strategy name; empty means pattern.
func ParseIdentityStrategy(s string) (IdentityStrategy, error) {
	switch v := IdentityStrategy(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return IdentityPattern, nil
	case IdentityNative, IdentityPattern, IdentityCounter:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown identity strategy %q", ErrConfigInvalid, s)
	}
}

// StartPolicy decides which of several start events of one identity is kept.
type StartPolicy string

const (
	StartFirstWins StartPolicy = "first_wins"
	StartLastWins  StartPolicy = "last_wins"
)

// ParseStartPolicy parses a policy name; empty means first_wins.
func ParseStartPolicy(s string) (StartPolicy, error) {
	switch v := StartPolicy(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return StartFirstWins, nil
	case StartFirstWins, StartLastWins:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown start policy %q", ErrConfigInvalid, s)
	}
}

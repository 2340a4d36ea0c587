// Package core defines core data structures with zero external dependencies.
package core

// PayloadEncoding tells how Record.Payload is encoded.
type PayloadEncoding uint8

const (
	// EncodingRaw payload holds the transport octets as captured.
	EncodingRaw PayloadEncoding = iota
	// EncodingHex payload holds hex text, optionally colon separated ("7b:22:...").
	EncodingHex
)

// Record is one observed protocol event as produced by the capture tool.
// Records are never mutated after a source emits them.
type Record struct {
	Trace     string    // Source trace label (file path)
	Function  string    // Capturing network function, e.g. "amf"
	Sequence  int64     // Frame number within the trace
	Timestamp float64   // Seconds, monotonic within a trace
	Direction Direction // Derived from the link-layer packet type

	Fields          Tree // Structured protocol tree, empty when absent
	Payload         []byte
	PayloadEncoding PayloadEncoding
}

// HasPayload reports whether the record carries a transport payload.
func (r *Record) HasPayload() bool { return len(r.Payload) > 0 }

// ClassifiedEvent is a Record that matched a signature of the procedure under study.
type ClassifiedEvent struct {
	Record    *Record
	Identity  CanonicalId
	Procedure ProcedureKind
	Role      Role

	Signature     int    // Index into the profile's ordered signature list
	SignatureName string // Optional configured name
	Text          string // Decoded payload text, empty for tree matches
	Order         int    // Stable position of the event in classification order

	Policy StartPolicy // Start tie-break of the profile that matched
}

// Timestamp is a shortcut for e.Record.Timestamp.
func (e *ClassifiedEvent) Timestamp() float64 { return e.Record.Timestamp }

// Sequence is a shortcut for e.Record.Sequence.
func (e *ClassifiedEvent) Sequence() int64 { return e.Record.Sequence }

// EventPair is the matched start and end of one procedure instance.
// End.Timestamp() >= Start.Timestamp() always holds.
type EventPair struct {
	Identity  CanonicalId
	Procedure ProcedureKind
	Start     *ClassifiedEvent
	End       *ClassifiedEvent
}

// LatencyMs returns (end - start) in milliseconds.
func (p EventPair) LatencyMs() float64 {
	return (p.End.Timestamp() - p.Start.Timestamp()) * 1000
}

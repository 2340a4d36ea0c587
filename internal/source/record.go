package source

import (
	"strconv"
	"strings"

	"firestige.xyz/proclat/internal/core"
)

// FieldOptions names the protocol-tree fields a record is built from.
// Dissector-based formats (tshark JSON, PDML) share them.
type FieldOptions struct {
	SequenceField  string `mapstructure:"sequence_field"`
	TimestampField string `mapstructure:"timestamp_field"`
	DirectionField string `mapstructure:"direction_field"`
	PayloadField   string `mapstructure:"payload_field"`
}

// DefaultFieldOptions matches tshark output of Linux cooked captures.
func DefaultFieldOptions() FieldOptions {
	return FieldOptions{
		SequenceField:  core.FieldFrameNumber,
		TimestampField: core.FieldFrameTimeRelative,
		DirectionField: core.FieldSLLPacketType,
		PayloadField:   core.FieldTCPPayload,
	}
}

// BuildRecord extracts a Record from a dissected frame. index is the
// zero-based position of the frame in its trace and stands in for a missing
// frame number. Missing or malformed fields never fail the record.
func BuildRecord(meta Meta, fields core.Tree, index int, opts FieldOptions) *core.Record {
	r := &core.Record{
		Trace:     meta.Trace,
		Function:  meta.Function,
		Sequence:  int64(index + 1),
		Direction: core.DirectionUnknown,
		Fields:    fields,
	}

	if s, ok := fields.First(opts.SequenceField); ok {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			r.Sequence = v
		}
	}
	if s, ok := fields.First(opts.TimestampField); ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			r.Timestamp = v
		}
	}
	if s, ok := fields.First(opts.DirectionField); ok {
		r.Direction = core.DirectionFromPacketTypeString(s)
	}
	if s, ok := fields.First(opts.PayloadField); ok && s != "" {
		r.Payload = []byte(s)
		r.PayloadEncoding = core.EncodingHex
	}
	return r
}

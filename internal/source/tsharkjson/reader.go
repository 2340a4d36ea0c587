// Package tsharkjson reads `tshark -T json` output: an array of
// {"_source": {"layers": {...}}} objects. The document is token-streamed so
// repeated keys inside a layer, which tshark emits for repeated protocol
// fields, are all kept.
package tsharkjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/source"
)

// Name is the format name used in configuration.
const Name = "tsharkjson"

func init() {
	source.Register(Name, []string{".json"}, func(opts map[string]any) (source.Reader, error) {
		cfg := Config{FieldOptions: source.DefaultFieldOptions()}
		if err := source.DecodeOptions(opts, &cfg); err != nil {
			return nil, err
		}
		return NewReader(cfg), nil
	})
}

// Config holds the reader options.
type Config struct {
	source.FieldOptions `mapstructure:",squash"`
}

// Reader decodes tshark JSON exports.
type Reader struct {
	cfg Config
}

// NewReader returns a Reader with cfg.
func NewReader(cfg Config) *Reader {
	return &Reader{cfg: cfg}
}

func (r *Reader) Name() string { return Name }

// Read decodes every packet of the export. A document that is not an array
// fails; one that breaks off after a complete packet returns the packets
// before the break with a *source.TruncatedError. Fields missing from a
// packet are not errors.
func (r *Reader) Read(ctx context.Context, in io.Reader, meta source.Meta) ([]*core.Record, error) {
	dec := json.NewDecoder(in)
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	var records []*core.Record
	for i := 0; dec.More(); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		pkt, err := parseValue(dec)
		if err != nil {
			if len(records) > 0 {
				return records, source.Truncated(meta, int64(i+1), err)
			}
			return nil, fmt.Errorf("%w: %s packet %d: %v", core.ErrSourceFormat, meta.Trace, i, err)
		}
		layers, ok := pkt.Get("_source", "layers")
		if !ok {
			layers = core.Tree{}
		}
		records = append(records, source.BuildRecord(meta, layers, i, r.cfg.FieldOptions))
	}

	if err := expectDelim(dec, ']'); err != nil {
		if len(records) > 0 {
			return records, source.Truncated(meta, int64(len(records)+1), err)
		}
		return nil, err
	}
	return records, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) && want == '[' {
			return fmt.Errorf("%w: empty document", core.ErrSourceFormat)
		}
		return fmt.Errorf("%w: %v", core.ErrSourceFormat, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", core.ErrSourceFormat, want, tok)
	}
	return nil
}

// parseValue reads one JSON value into a Tree, keeping object keys in
// document order including duplicates.
func parseValue(dec *json.Decoder) (core.Tree, error) {
	tok, err := dec.Token()
	if err != nil {
		return core.Tree{}, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			var entries []core.Entry
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return core.Tree{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return core.Tree{}, fmt.Errorf("object key is %T", kt)
				}
				val, err := parseValue(dec)
				if err != nil {
					return core.Tree{}, err
				}
				entries = append(entries, core.E(key, val))
			}
			if _, err := dec.Token(); err != nil {
				return core.Tree{}, err
			}
			return core.Map(entries...), nil
		case '[':
			var items []core.Tree
			for dec.More() {
				it, err := parseValue(dec)
				if err != nil {
					return core.Tree{}, err
				}
				items = append(items, it)
			}
			if _, err := dec.Token(); err != nil {
				return core.Tree{}, err
			}
			return core.List(items...), nil
		default:
			return core.Tree{}, fmt.Errorf("unexpected %q", v)
		}
	case string:
		return core.Scalar(v), nil
	case json.Number:
		return core.Scalar(v.String()), nil
	case bool:
		if v {
			return core.Scalar("true"), nil
		}
		return core.Scalar("false"), nil
	case nil:
		return core.Scalar(""), nil
	default:
		return core.Tree{}, fmt.Errorf("unexpected token %T", tok)
	}
}

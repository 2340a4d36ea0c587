// Package pdml reads `tshark -T pdml` output. Each <packet> becomes a Tree
// keyed by protocol name, holding that protocol's fields in document order.
package pdml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/source"
)

// Name is the format name used in configuration.
const Name = "pdml"

func init() {
	source.Register(Name, []string{".pdml"}, func(opts map[string]any) (source.Reader, error) {
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

// Reader decodes PDML documents.
type Reader struct {
	cfg Config
}

// NewReader returns a Reader with cfg.
func NewReader(cfg Config) *Reader {
	return &Reader{cfg: cfg}
}

func (r *Reader) Name() string { return Name }

// node is any PDML element: packet, proto or field.
type node struct {
	XMLName  xml.Name
	Name     string `xml:"name,attr"`
	Show     string `xml:"show,attr"`
	Value    string `xml:"value,attr"`
	Children []node `xml:",any"`
}

// Read decodes every packet of the document. A document that breaks off
// after a complete packet returns the packets before the break with a
// *source.TruncatedError.
func (r *Reader) Read(ctx context.Context, in io.Reader, meta source.Meta) ([]*core.Record, error) {
	dec := xml.NewDecoder(in)

	var (
		records  []*core.Record
		seenRoot bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(records) > 0 {
				return records, source.Truncated(meta, int64(len(records)+1), err)
			}
			return nil, fmt.Errorf("%w: %s: %v", core.ErrSourceFormat, meta.Trace, err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "pdml":
			seenRoot = true
		case "packet":
			if !seenRoot {
				return nil, fmt.Errorf("%w: %s: packet outside <pdml>", core.ErrSourceFormat, meta.Trace)
			}
			i := len(records)
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			var pkt node
			if err := dec.DecodeElement(&pkt, &se); err != nil {
				if i > 0 {
					return records, source.Truncated(meta, int64(i+1), err)
				}
				return nil, fmt.Errorf("%w: %s packet %d: %v", core.ErrSourceFormat, meta.Trace, i, err)
			}
			records = append(records, source.BuildRecord(meta, packetTree(pkt), i, r.cfg.FieldOptions))
		default:
			if !seenRoot {
				return nil, fmt.Errorf("%w: %s: root element <%s>, want <pdml>", core.ErrSourceFormat, meta.Trace, se.Name.Local)
			}
		}
	}

	if !seenRoot {
		return nil, fmt.Errorf("%w: %s: empty document", core.ErrSourceFormat, meta.Trace)
	}
	return records, nil
}

// packetTree maps a packet to proto name -> fields.
func packetTree(pkt node) core.Tree {
	var entries []core.Entry
	for _, p := range pkt.Children {
		if p.XMLName.Local != "proto" || p.Name == "" {
			continue
		}
		entries = append(entries, core.E(p.Name, core.Map(fieldEntries(p.Children)...)))
	}
	return core.Map(entries...)
}

// fieldEntries converts nested fields. Nameless fields are text-only
// groupings and their children are lifted into the parent. A field with
// children becomes a map; a leaf keeps its show value, or the raw value
// when show is absent.
func fieldEntries(children []node) []core.Entry {
	var out []core.Entry
	for _, f := range children {
		if f.Name == "" {
			out = append(out, fieldEntries(f.Children)...)
			continue
		}
		if len(f.Children) > 0 {
			out = append(out, core.E(f.Name, core.Map(fieldEntries(f.Children)...)))
			continue
		}
		v := f.Show
		if v == "" {
			v = f.Value
		}
		out = append(out, core.E(f.Name, core.Scalar(v)))
	}
	return out
}

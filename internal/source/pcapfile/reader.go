// Package pcapfile reads raw pcap and pcapng captures with gopacket. Only
// what the link and transport headers carry is recovered: direction from a
// Linux cooked header and the TCP payload as raw text. Protocol-tree fields
// such as NGAP identifiers require a dissector export (tsharkjson, pdml).
package pcapfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"

	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/source"
)

// Name is the format name used in configuration.
const Name = "pcap"

var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

func init() {
	source.Register(Name, []string{".pcap", ".pcapng"}, func(opts map[string]any) (source.Reader, error) {
		var cfg Config
		if err := source.DecodeOptions(opts, &cfg); err != nil {
			return nil, err
		}
		return NewReader(cfg)
	})
}

// Config holds the reader options.
type Config struct {
	Ports        []int  `mapstructure:"ports"`         // Keep only TCP segments with one of these ports; empty = all packets
	AbsoluteTime bool   `mapstructure:"absolute_time"` // Epoch timestamps instead of relative to the first packet
	Filter       string `mapstructure:"filter"`        // tcpdump expression applied before decoding, e.g. "tcp port 7777"
}

// Reader decodes pcap captures.
type Reader struct {
	cfg   Config
	ports map[layers.TCPPort]struct{}
}

// NewReader validates cfg and returns a Reader.
func NewReader(cfg Config) (*Reader, error) {
	r := &Reader{cfg: cfg}
	if len(cfg.Ports) > 0 {
		r.ports = make(map[layers.TCPPort]struct{}, len(cfg.Ports))
		for _, p := range cfg.Ports {
			if p <= 0 || p > 65535 {
				return nil, fmt.Errorf("%w: pcap port %d out of range", core.ErrConfigInvalid, p)
			}
			r.ports[layers.TCPPort(p)] = struct{}{}
		}
	}
	if cfg.Filter != "" {
		if _, err := compileFilter(cfg.Filter, layers.LinkTypeEthernet); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) Name() string { return Name }

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func open(in io.Reader) (packetSource, error) {
	br := bufio.NewReader(in)
	magic, err := br.Peek(len(ngMagic))
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, ngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// Read decodes every packet of the capture. A capture that breaks off
// inside a packet after the first one returns the packets before the break
// with a *source.TruncatedError.
func (r *Reader) Read(ctx context.Context, in io.Reader, meta source.Meta) ([]*core.Record, error) {
	src, err := open(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrSourceFormat, meta.Trace, err)
	}
	linkType := src.LinkType()

	var vm *bpf.VM
	if r.cfg.Filter != "" {
		if vm, err = compileFilter(r.cfg.Filter, linkType); err != nil {
			return nil, err
		}
	}

	var (
		records []*core.Record
		first   float64
	)
	for frame := int64(1); ; frame++ {
		if frame%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if frame > 1 {
				return records, source.Truncated(meta, frame, err)
			}
			return nil, fmt.Errorf("%w: %s frame %d: %v", core.ErrSourceFormat, meta.Trace, frame, err)
		}

		epoch := float64(ci.Timestamp.UnixNano()) / 1e9
		if frame == 1 {
			first = epoch
		}
		if !accept(vm, data) {
			continue
		}
		rec, keep := r.record(meta, gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true}), frame, epoch, epoch-first)
		if keep {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *Reader) record(meta source.Meta, pkt gopacket.Packet, frame int64, epoch, relative float64) (*core.Record, bool) {
	rec := &core.Record{
		Trace:     meta.Trace,
		Function:  meta.Function,
		Sequence:  frame,
		Timestamp: relative,
		Direction: core.DirectionUnknown,
	}
	if r.cfg.AbsoluteTime {
		rec.Timestamp = epoch
	}

	fields := []core.Entry{
		core.E(core.LayerFrame, core.Map(
			core.E(core.FieldFrameNumber, core.Scalar(strconv.FormatInt(frame, 10))),
			core.E(core.FieldFrameTimeRelative, core.Scalar(strconv.FormatFloat(relative, 'f', 9, 64))),
			core.E(core.FieldFrameTimeEpoch, core.Scalar(strconv.FormatFloat(epoch, 'f', 9, 64))),
		)),
	}

	if sll, ok := pkt.Layer(layers.LayerTypeLinuxSLL).(*layers.LinuxSLL); ok {
		rec.Direction = core.DirectionFromPacketType(int(sll.PacketType))
		fields = append(fields, core.E(core.LayerSLL, core.Map(
			core.E(core.FieldSLLPacketType, core.Scalar(strconv.Itoa(int(sll.PacketType)))),
		)))
	}

	tcp, isTCP := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if r.ports != nil {
		if !isTCP || !r.wantPort(tcp) {
			return nil, false
		}
	}
	if isTCP {
		fields = append(fields, core.E(core.LayerTCP, core.Map(
			core.E(core.FieldTCPSrcPort, core.Scalar(strconv.Itoa(int(tcp.SrcPort)))),
			core.E(core.FieldTCPDstPort, core.Scalar(strconv.Itoa(int(tcp.DstPort)))),
		)))
		if len(tcp.Payload) > 0 {
			rec.Payload = append([]byte(nil), tcp.Payload...)
			rec.PayloadEncoding = core.EncodingRaw
		}
	}

	rec.Fields = core.Map(fields...)
	return rec, true
}

func (r *Reader) wantPort(tcp *layers.TCP) bool {
	_, src := r.ports[tcp.SrcPort]
	_, dst := r.ports[tcp.DstPort]
	return src || dst
}

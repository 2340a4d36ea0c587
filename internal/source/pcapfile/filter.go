package pcapfile

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/proclat/internal/core"
)

const snapLen = 262144

// compileFilter compiles a tcpdump expression for linkType into a BPF program.
func compileFilter(expr string, linkType layers.LinkType) (*bpf.VM, error) {
	insns, err := pcap.CompileBPFFilter(linkType, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: pcap filter %q: %v", core.ErrConfigInvalid, expr, err)
	}

	raw := make([]bpf.RawInstruction, len(insns))
	for i, ins := range insns {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("%w: pcap filter %q: unsupported instruction", core.ErrConfigInvalid, expr)
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("%w: pcap filter %q: %v", core.ErrConfigInvalid, expr, err)
	}
	return vm, nil
}

// accept runs vm over one frame. A nil vm accepts everything.
func accept(vm *bpf.VM, data []byte) bool {
	if vm == nil {
		return true
	}
	n, err := vm.Run(data)
	return err == nil && n > 0
}

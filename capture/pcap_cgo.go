//go:build cgo

package capture

import (
	"fmt"
	"io"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcap"
)

// OpenLive starts an inbound capture on iface restricted by bpf.
func OpenLive(iface, bpf string) (*gopacket.PacketSource, io.Closer, error) {
	handle, err := pcap.OpenLive(iface, 128, false, pcap.BlockForever)
	if err != nil {
		return nil, nil, fmt.Errorf("open interface %s: %w", iface, err)
	}
	if err := handle.SetDirection(pcap.DirectionIn); err != nil {
		handle.Close()
		return nil, nil, fmt.Errorf("set pcap direction in: %w", err)
	}
	if bpf != "" {
		if err := handle.SetBPFFilter(bpf); err != nil {
			handle.Close()
			return nil, nil, fmt.Errorf("set BPF filter %q: %w", bpf, err)
		}
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	source.NoCopy = true
	return source, closerFunc(handle.Close), nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

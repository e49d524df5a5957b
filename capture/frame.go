package capture

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

var (
	frameSrcMAC = net.HardwareAddr{0x02, 0x00, 0x5e, 0x00, 0x00, 0x01}
	frameDstMAC = net.HardwareAddr{0x02, 0x00, 0x5e, 0x00, 0x00, 0x02}
)

// Flags selects which TCP control bits BuildFrame sets.
type Flags struct {
	SYN, ACK, RST bool
}

// BuildSYN returns an Ethernet frame carrying a bare SYN from src:sport to
// dst:dport. src and dst must be the same family.
func BuildSYN(src, dst net.IP, sport, dport uint16) ([]byte, error) {
	return BuildFrame(src, dst, sport, dport, Flags{SYN: true})
}

func BuildFrame(src, dst net.IP, sport, dport uint16, flags Flags) ([]byte, error) {
	eth := &layers.Ethernet{SrcMAC: frameSrcMAC, DstMAC: frameDstMAC}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     uint32(sport)<<16 | uint32(dport),
		SYN:     flags.SYN,
		ACK:     flags.ACK,
		RST:     flags.RST,
		Window:  64240,
	}

	var ipLayer gopacket.SerializableLayer
	switch {
	case src.To4() != nil && dst.To4() != nil:
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    src.To4(),
			DstIP:    dst.To4(),
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		eth.EthernetType = layers.EthernetTypeIPv4
		ipLayer = ip
	case src.To4() == nil && dst.To4() == nil && src.To16() != nil && dst.To16() != nil:
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolTCP,
			SrcIP:      src.To16(),
			DstIP:      dst.To16(),
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		eth.EthernetType = layers.EthernetTypeIPv6
		ipLayer = ip
	default:
		return nil, fmt.Errorf("mismatched address families %s -> %s", src, dst)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ipLayer, tcp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

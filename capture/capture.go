// Package capture feeds TCP SYN segments from a packet source into an
// Observer. It only extracts the client address and destination port;
// counting and banning are the observer's business.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"synbl/logger"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

// DefaultBPF keeps pure SYNs over IPv4 and all TCP over IPv6, where the
// tcp[] offset syntax is unavailable; SynFrom does the final check.
const DefaultBPF = "(tcp[tcpflags] & (tcp-syn|tcp-ack) == tcp-syn) or (ip6 and tcp)"

type Observer interface {
	OnSynObserved(ip net.IP, port uint16, ts time.Time)
}

// SynFrom reports the source address and destination port of pkt when it is
// a connection-opening TCP segment (SYN set, ACK clear).
func SynFrom(pkt gopacket.Packet) (net.IP, uint16, bool) {
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return nil, 0, false
	}
	tcp, ok := tcpLayer.(*layers.TCP)
	if !ok || !tcp.SYN || tcp.ACK {
		return nil, 0, false
	}

	var src net.IP
	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		src = nl.SrcIP
	case *layers.IPv6:
		src = nl.SrcIP
	default:
		return nil, 0, false
	}
	return src, uint16(tcp.DstPort), true
}

// Stats summarises a capture run.
type Stats struct {
	Packets int
	Syns    int
}

// Run dispatches packets to obs from workers goroutines until the channel
// closes or ctx is cancelled.
func Run(ctx context.Context, packets <-chan gopacket.Packet, obs Observer, workers int) Stats {
	if workers <= 0 {
		workers = 1
	}
	var (
		mu    sync.Mutex
		total Stats
		wg    sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local Stats
			defer func() {
				mu.Lock()
				total.Packets += local.Packets
				total.Syns += local.Syns
				mu.Unlock()
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case pkt, ok := <-packets:
					if !ok {
						return
					}
					local.Packets++
					if ip, port, ok := SynFrom(pkt); ok {
						local.Syns++
						obs.OnSynObserved(ip, port, pkt.Metadata().Timestamp)
					}
				}
			}
		}()
	}
	wg.Wait()
	return total
}

// Replay reads a pcap stream in order. tick, when set, is called with each
// packet's capture time before the packet is observed, so callers can drive
// window resets and expiry from capture time instead of wall time.
func Replay(r io.Reader, obs Observer, tick func(time.Time)) (Stats, error) {
	var st Stats
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return st, fmt.Errorf("read pcap header: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	for {
		pkt, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("read packet %d: %w", st.Packets+1, err)
		}
		st.Packets++

		ts := pkt.Metadata().Timestamp
		if tick != nil {
			tick(ts)
		}
		if ip, port, ok := SynFrom(pkt); ok {
			st.Syns++
			obs.OnSynObserved(ip, port, ts)
		} else {
			logger.Debug("Skipping non-SYN packet", "n", st.Packets)
		}
	}
}

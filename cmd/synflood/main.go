package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"synbl/capture"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

// synflood writes a synthetic capture mixing background clients with a few
// flooding sources, for feeding into `synbl replay`.
func main() {
	out := flag.String("o", "synflood.pcap", "output pcap file")
	target := flag.String("target", "192.0.2.1", "destination address")
	port := flag.Uint("port", 80, "destination port")
	attackers := flag.Int("attackers", 3, "number of flooding sources")
	rate := flag.Int("rate", 50, "SYNs per second from each attacker")
	clients := flag.Int("clients", 20, "number of well-behaved sources")
	duration := flag.Duration("d", 10*time.Second, "capture length")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	dst := net.ParseIP(*target)
	if dst == nil {
		fmt.Fprintf(os.Stderr, "invalid target %q\n", *target)
		os.Exit(2)
	}
	if *port > 65535 || *rate <= 0 {
		fmt.Fprintln(os.Stderr, "port must fit 16 bits and rate must be positive")
		os.Exit(2)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
		os.Exit(1)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		fmt.Fprintf(os.Stderr, "write header: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now().Truncate(time.Second)
	step := time.Second / time.Duration(*rate)
	written := 0

	for at := time.Duration(0); at < *duration; at += step {
		for i := 0; i < *attackers; i++ {
			src := source(dst, 0x64, byte(10+i))
			if err := writeSyn(w, rng, start.Add(at), src, dst, uint16(*port)); err != nil {
				fmt.Fprintf(os.Stderr, "write packet: %v\n", err)
				os.Exit(1)
			}
			written++
		}
		// Each client opens roughly one connection every two seconds.
		for i := 0; i < *clients; i++ {
			if rng.Intn(2 * *rate) != 0 {
				continue
			}
			src := source(dst, 0x71, byte(1+i))
			if err := writeSyn(w, rng, start.Add(at), src, dst, uint16(*port)); err != nil {
				fmt.Fprintf(os.Stderr, "write packet: %v\n", err)
				os.Exit(1)
			}
			written++
		}
	}

	fmt.Printf("Wrote %d SYNs to %s\n", written, *out)
	fmt.Printf("Attackers:   %d at %d SYN/s\n", *attackers, *rate)
	fmt.Printf("Clients:     %d\n", *clients)
	fmt.Printf("Duration:    %v\n", *duration)
}

// source picks a documentation-range address in the same family as dst:
// 198.51.100.x or 203.0.113.x for IPv4, 2001:db8::<net>:x for IPv6.
func source(dst net.IP, net8, host byte) net.IP {
	if dst.To4() != nil {
		if net8 == 0x64 {
			return net.IPv4(198, 51, 100, host).To4()
		}
		return net.IPv4(203, 0, 113, host).To4()
	}
	ip := net.ParseIP("2001:db8::")
	ip[13] = net8
	ip[15] = host
	return ip
}

func writeSyn(w *pcapgo.Writer, rng *rand.Rand, ts time.Time, src, dst net.IP, port uint16) error {
	frame, err := capture.BuildSYN(src, dst, uint16(1024+rng.Intn(60000)), port)
	if err != nil {
		return err
	}
	return w.WritePacket(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(frame), Length: len(frame)}, frame)
}

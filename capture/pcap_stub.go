//go:build !cgo

package capture

import (
	"errors"
	"io"

	"github.com/gopacket/gopacket"
)

// OpenLive needs libpcap, which is unavailable without cgo.
func OpenLive(iface, bpf string) (*gopacket.PacketSource, io.Closer, error) {
	return nil, nil, errors.New("live capture requires a cgo build with libpcap")
}

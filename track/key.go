// Package track holds the two structures SYN flood detection works on: the
// per-window counter table and the time-ordered blacklist queue. Both are
// only reachable through Guard.Do, which holds the shared lock.
package track

import (
	"net"
	"net/netip"
)

// Key identifies a (client address, destination port) pair. Addresses keep
// their raw byte form, so a 4-byte IPv4 address and its 16-byte mapped form
// are different keys.
type Key struct {
	Addr netip.Addr
	Port uint16
}

// KeyFrom builds a Key from a raw address. ok is false when ip is neither 4
// nor 16 bytes long.
func KeyFrom(ip net.IP, port uint16) (k Key, ok bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return Key{}, false
	}
	return Key{Addr: addr, Port: port}, true
}

// IP returns a fresh copy of the address for handing to collaborators.
func (k Key) IP() net.IP {
	return net.IP(k.Addr.AsSlice())
}

func (k Key) String() string {
	return netip.AddrPortFrom(k.Addr, k.Port).String()
}

// Package enforcer turns ban/unban requests for an (address, port) pair into
// network-level actions.
package enforcer

import (
	"errors"
	"net"
	"net/netip"
	"strconv"

	"synbl/logger"
)

type Enforcer interface {
	Ban(ip net.IP, port uint16) error
	Unban(ip net.IP, port uint16) error
}

type chain []Enforcer

// Chain applies every enforcer in order. A failing member does not stop the
// others; all errors are joined.
func Chain(members ...Enforcer) Enforcer {
	return chain(members)
}

func (c chain) Ban(ip net.IP, port uint16) error {
	var errs []error
	for _, e := range c {
		if err := e.Ban(ip, port); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c chain) Unban(ip net.IP, port uint16) error {
	var errs []error
	for _, e := range c {
		if err := e.Unban(ip, port); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogOnly records decisions without touching the network. Used for dry runs
// and offline replay.
type LogOnly struct{}

func (LogOnly) Ban(ip net.IP, port uint16) error {
	logger.Info("Dry-run ban", "target", pairString(ip, port))
	return nil
}

func (LogOnly) Unban(ip net.IP, port uint16) error {
	logger.Info("Dry-run unban", "target", pairString(ip, port))
	return nil
}

// pairString renders ip:port in the address's raw form: a 4-byte IPv4
// address and its 16-byte mapped form are distinct pairs, as in track.Key.
func pairString(ip net.IP, port uint16) string {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
	}
	return netip.AddrPortFrom(addr, port).String()
}

package filter

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"
)

// ExemptList holds prefixes whose SYNs are never counted.
type ExemptList struct {
	prefixes []netip.Prefix
	mu       sync.RWMutex
}

// NewExemptList accepts CIDRs or bare addresses.
func NewExemptList(entries []string) (*ExemptList, error) {
	l := &ExemptList{}
	for _, e := range entries {
		if err := l.Add(e); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *ExemptList) Add(entry string) error {
	entry = strings.TrimSpace(entry)
	var p netip.Prefix
	if strings.Contains(entry, "/") {
		parsed, err := netip.ParsePrefix(entry)
		if err != nil {
			return fmt.Errorf("exempt entry %q: %w", entry, err)
		}
		p = parsed.Masked()
	} else {
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return fmt.Errorf("exempt entry %q: %w", entry, err)
		}
		addr = addr.Unmap()
		p = netip.PrefixFrom(addr, addr.BitLen())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefixes = append(l.prefixes, p)
	return nil
}

func (l *ExemptList) Contains(addr netip.Addr) bool {
	if l == nil {
		return false
	}
	addr = addr.Unmap()

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (l *ExemptList) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.prefixes)
}

package enforcer

import (
	"net"

	"synbl/store"
)

// StoreMirror records every ban in a Storer so operators and peer nodes can
// see the current blacklist. Entries carry no expiry; Unban removes them.
type StoreMirror struct {
	Store     store.Storer
	BlockType string
}

func NewStoreMirror(s store.Storer) *StoreMirror {
	return &StoreMirror{Store: s, BlockType: "syn_flood"}
}

func (m *StoreMirror) Ban(ip net.IP, port uint16) error {
	return m.Store.Block(pairString(ip, port), 0, m.BlockType)
}

func (m *StoreMirror) Unban(ip net.IP, port uint16) error {
	return m.Store.Unblock(pairString(ip, port))
}

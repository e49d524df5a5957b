package store

import "time"

// Storer records active blocks so that other processes (and other nodes
// sharing a Redis) can see what this node has banned.
type Storer interface {
	IsBlocked(key string) bool
	Block(key string, expiration time.Duration, blockType string) error
	Unblock(key string) error
	ListBlocks() (map[string]string, error)
	Close() error
}

package store

import (
	"sync"
	"time"
)

type LocalStore struct {
	blocks map[string]localBlock
	mu     sync.RWMutex
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once
}

type localBlock struct {
	Type   string
	Expiry time.Time
}

func NewLocalStore() *LocalStore {
	s := &LocalStore{
		blocks: make(map[string]localBlock),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	go s.cleanupLoop(5 * time.Minute)
	return s
}

func (s *LocalStore) IsBlocked(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.blocks[key]
	if !ok {
		return false
	}
	return block.Expiry.IsZero() || s.now().Before(block.Expiry)
}

// Block records key. A zero expiration keeps it until Unblock.
func (s *LocalStore) Block(key string, expiration time.Duration, blockType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := time.Time{}
	if expiration > 0 {
		expiry = s.now().Add(expiration)
	}
	s.blocks[key] = localBlock{Type: blockType, Expiry: expiry}
	return nil
}

func (s *LocalStore) Unblock(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, key)
	return nil
}

func (s *LocalStore) ListBlocks() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	res := make(map[string]string)
	for k, v := range s.blocks {
		if v.Expiry.IsZero() || now.Before(v.Expiry) {
			res[k] = v.Type
		}
	}
	return res, nil
}

func (s *LocalStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *LocalStore) purgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.now()
	for k, v := range s.blocks {
		if !v.Expiry.IsZero() && !now.Before(v.Expiry) {
			delete(s.blocks, k)
			n++
		}
	}
	return n
}

func (s *LocalStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.purgeExpired()
		}
	}
}

package store

import (
	"testing"
	"time"
)

func TestLocalStoreBlockLifecycle(t *testing.T) {
	s := NewLocalStore()
	defer s.Close()

	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	if err := s.Block("192.0.2.1:80", 0, "syn"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if err := s.Block("192.0.2.2:80", time.Minute, "manual"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if !s.IsBlocked("192.0.2.1:80") || !s.IsBlocked("192.0.2.2:80") {
		t.Fatalf("expected both keys blocked")
	}

	now = now.Add(time.Minute)
	if s.IsBlocked("192.0.2.2:80") {
		t.Fatalf("expired block still reported")
	}
	blocks, _ := s.ListBlocks()
	if len(blocks) != 1 || blocks["192.0.2.1:80"] != "syn" {
		t.Fatalf("unexpected blocks: %v", blocks)
	}
	if n := s.purgeExpired(); n != 1 {
		t.Fatalf("purgeExpired removed %d, want 1", n)
	}

	if err := s.Unblock("192.0.2.1:80"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if s.IsBlocked("192.0.2.1:80") {
		t.Fatalf("unblocked key still reported")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

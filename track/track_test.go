package track

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"
)

func key(s string, port uint16) Key {
	return Key{Addr: netip.MustParseAddr(s), Port: port}
}

func TestKeyFromRawBytes(t *testing.T) {
	v4, ok := KeyFrom(net.IPv4(192, 0, 2, 1).To4(), 80)
	if !ok {
		t.Fatalf("expected 4-byte address to be accepted")
	}
	mapped, ok := KeyFrom(net.IPv4(192, 0, 2, 1), 80)
	if !ok {
		t.Fatalf("expected 16-byte address to be accepted")
	}
	if v4 == mapped {
		t.Fatalf("4-byte and 16-byte forms must be distinct keys")
	}
	if _, ok := KeyFrom(net.IP{1, 2, 3}, 80); ok {
		t.Fatalf("expected 3-byte address to be rejected")
	}
	if got := v4.String(); got != "192.0.2.1:80" {
		t.Fatalf("String() = %q", got)
	}
	ip := v4.IP()
	ip[0] = 10
	if v4.Addr != netip.MustParseAddr("192.0.2.1") {
		t.Fatalf("IP() must return a copy")
	}
}

func TestRecordSynCountsFromOne(t *testing.T) {
	c := newCounterTable(0)
	k := key("192.0.2.1", 443)
	for want := 1; want <= 5; want++ {
		got, ok := c.RecordSyn(k)
		if !ok || got != want {
			t.Fatalf("SYN #%d: got count=%d ok=%v", want, got, ok)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("expected a single entry per key, got %d", c.Len())
	}
}

func TestClearAllResetsCounts(t *testing.T) {
	c := newCounterTable(0)
	a, b := key("192.0.2.1", 22), key("2001:db8::1", 22)
	for i := 0; i < 7; i++ {
		c.RecordSyn(a)
	}
	c.RecordSyn(b)

	if n := c.ClearAll(); n != 2 {
		t.Fatalf("ClearAll dropped %d entries, want 2", n)
	}
	if got, _ := c.RecordSyn(a); got != 1 {
		t.Fatalf("expected fresh count 1 after clear, got %d", got)
	}
}

func TestRecordSynFailsOpenWhenFull(t *testing.T) {
	c := newCounterTable(1)
	a, b := key("192.0.2.1", 80), key("192.0.2.2", 80)
	if _, ok := c.RecordSyn(a); !ok {
		t.Fatalf("first key should fit")
	}
	if n, ok := c.RecordSyn(b); ok || n != 0 {
		t.Fatalf("expected full table to refuse new key, got n=%d ok=%v", n, ok)
	}
	if n, ok := c.RecordSyn(a); !ok || n != 2 {
		t.Fatalf("existing key must keep counting when full, got n=%d ok=%v", n, ok)
	}
	c.Remove(a)
	if _, ok := c.Count(a); ok {
		t.Fatalf("Remove left the entry behind")
	}
	c.Remove(a)
}

func TestExpireDueReturnsPrefix(t *testing.T) {
	q := newQueue(0)
	t0 := time.Unix(1000, 0)
	keys := []Key{key("192.0.2.1", 80), key("192.0.2.2", 80), key("192.0.2.3", 80), key("192.0.2.4", 80)}
	for i, k := range keys {
		if !q.Promote(k, t0.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("promote %v failed", k)
		}
	}

	// At t0+6s with probation 5s, entries banned at t0 and t0+1s are due.
	got := q.ExpireDue(t0.Add(6*time.Second), 5*time.Second)
	if len(got) != 2 || got[0].Key != keys[0] || got[1].Key != keys[1] {
		t.Fatalf("unexpected expired set: %+v", got)
	}
	rest := q.Entries()
	if len(rest) != 2 || rest[0].Key != keys[2] || rest[1].Key != keys[3] {
		t.Fatalf("unexpected remainder: %+v", rest)
	}
	if !rest[0].BanTime.Before(rest[1].BanTime) {
		t.Fatalf("remainder lost ordering")
	}
	if q.Contains(keys[0]) || !q.Contains(keys[2]) {
		t.Fatalf("index out of sync with list")
	}

	if got := q.ExpireDue(t0.Add(6*time.Second), 5*time.Second); len(got) != 0 {
		t.Fatalf("second call should expire nothing, got %+v", got)
	}
	// Boundary: now - ban_time == probation is due.
	if got := q.ExpireDue(t0.Add(7*time.Second), 5*time.Second); len(got) != 1 || got[0].Key != keys[2] {
		t.Fatalf("expected exact-boundary expiry of %v, got %+v", keys[2], got)
	}
}

func TestPromoteRejectsDuplicatesAndKeepsOrder(t *testing.T) {
	q := newQueue(2)
	t0 := time.Unix(1000, 0)
	a, b, c := key("192.0.2.1", 80), key("192.0.2.2", 80), key("192.0.2.3", 80)

	if !q.Promote(a, t0) {
		t.Fatalf("promote a failed")
	}
	if q.Promote(a, t0.Add(time.Second)) {
		t.Fatalf("duplicate promote must be refused")
	}
	// An earlier timestamp is clamped so the queue stays ordered.
	if !q.Promote(b, t0.Add(-time.Second)) {
		t.Fatalf("promote b failed")
	}
	if e := q.Entries(); !e[1].BanTime.Equal(t0) {
		t.Fatalf("expected clamped ban time %v, got %v", t0, e[1].BanTime)
	}
	if q.Promote(c, t0) {
		t.Fatalf("full queue must refuse promote")
	}

	if _, ok := q.Remove(a); !ok {
		t.Fatalf("Remove(a) failed")
	}
	if _, ok := q.Remove(a); ok {
		t.Fatalf("second Remove(a) should report absence")
	}
	if n := q.ClearAll(); n != 1 || q.Len() != 0 || q.Contains(b) {
		t.Fatalf("ClearAll left state behind: n=%d len=%d", n, q.Len())
	}
}

func TestReservedEntriesAreHiddenUntilActivated(t *testing.T) {
	q := newQueue(0)
	t0 := time.Unix(1000, 0)
	a, b := key("192.0.2.1", 80), key("192.0.2.2", 80)

	if !q.Reserve(a) {
		t.Fatalf("reserve a failed")
	}
	if q.Reserve(a) || q.Promote(a, t0) {
		t.Fatalf("reserved key must not be claimed twice")
	}
	if !q.Contains(a) || q.Len() != 1 {
		t.Fatalf("reserved key must count as banned")
	}
	if got := q.ExpireDue(t0.Add(time.Hour), 0); len(got) != 0 {
		t.Fatalf("reserved key expired: %+v", got)
	}
	if _, ok := q.Remove(a); ok {
		t.Fatalf("reserved key must not be removable")
	}
	if len(q.Entries()) != 0 {
		t.Fatalf("reserved key listed before activation")
	}

	if !q.Promote(b, t0.Add(time.Second)) {
		t.Fatalf("promote b failed")
	}
	if !q.Activate(a, t0) {
		t.Fatalf("activate a failed")
	}
	if q.Activate(a, t0) {
		t.Fatalf("second activate must be refused")
	}
	e := q.Entries()
	if len(e) != 2 || e[1].Key != a || !e[1].BanTime.Equal(t0.Add(time.Second)) {
		t.Fatalf("activated entry must be appended with a clamped time, got %+v", e)
	}

	if !q.Reserve(key("192.0.2.3", 80)) {
		t.Fatalf("reserve c failed")
	}
	if n := q.ClearAll(); n != 3 || q.Len() != 0 {
		t.Fatalf("ClearAll must drop reserved keys too: n=%d len=%d", n, q.Len())
	}
}

func TestGuardSerializesConcurrentCounting(t *testing.T) {
	g := NewGuard(0, 0)
	k := key("192.0.2.9", 8080)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				g.Do(func(t *Tables) { t.Counters.RecordSyn(k) })
			}
		}()
	}
	wg.Wait()

	var n int
	g.Do(func(t *Tables) { n, _ = t.Counters.Count(k) })
	if n != 1000 {
		t.Fatalf("expected 1000 SYNs counted, got %d", n)
	}
}

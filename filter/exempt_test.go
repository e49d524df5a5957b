package filter

import (
	"net/netip"
	"testing"
)

func TestExemptList(t *testing.T) {
	l, err := NewExemptList([]string{"10.0.0.0/8", " 192.0.2.10 ", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("NewExemptList: %v", err)
	}
	cases := []struct {
		addr string
		want bool
	}{
		{"10.20.30.40", true},
		{"192.0.2.10", true},
		{"192.0.2.11", false},
		{"::ffff:10.1.1.1", true},
		{"2001:db8::5", true},
		{"2001:db9::5", false},
	}
	for _, c := range cases {
		if got := l.Contains(netip.MustParseAddr(c.addr)); got != c.want {
			t.Fatalf("Contains(%s) = %v, want %v", c.addr, got, c.want)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len = %d", l.Len())
	}

	if _, err := NewExemptList([]string{"not-an-ip"}); err == nil {
		t.Fatalf("expected parse error")
	}

	var nilList *ExemptList
	if nilList.Contains(netip.MustParseAddr("10.0.0.1")) || nilList.Len() != 0 {
		t.Fatalf("nil list must exempt nothing")
	}
}

package enforcer

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"synbl/notifier"
	"synbl/store"
)

type call struct {
	name string
	args []string
}

func fakeFirewall(goos string, fail error) (*Firewall, *[]call) {
	var calls []call
	f := NewFirewall("", "", "")
	f.goos = goos
	f.run = func(name string, args ...string) ([]byte, error) {
		calls = append(calls, call{name: name, args: args})
		if fail != nil {
			return []byte("iptables: Permission denied"), fail
		}
		return nil, nil
	}
	return f, &calls
}

func TestFirewallLinuxRules(t *testing.T) {
	f, calls := fakeFirewall("linux", nil)

	if err := f.Ban(net.IPv4(192, 0, 2, 1).To4(), 80); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if err := f.Unban(net.ParseIP("2001:db8::1"), 443); err != nil {
		t.Fatalf("Unban: %v", err)
	}

	want := []call{
		{"iptables", []string{"-I", "INPUT", "-p", "tcp", "-s", "192.0.2.1", "--dport", "80", "-j", "DROP"}},
		{"ip6tables", []string{"-D", "INPUT", "-p", "tcp", "-s", "2001:db8::1", "--dport", "443", "-j", "DROP"}},
	}
	if !reflect.DeepEqual(*calls, want) {
		t.Fatalf("calls = %+v\nwant %+v", *calls, want)
	}
}

func TestFirewallWindowsRules(t *testing.T) {
	f, calls := fakeFirewall("windows", nil)
	if err := f.Ban(net.IPv4(192, 0, 2, 1), 22); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	got := (*calls)[0]
	if got.name != "netsh" || !strings.Contains(strings.Join(got.args, " "), "localport=22 remoteip=192.0.2.1") {
		t.Fatalf("unexpected netsh call: %+v", got)
	}
}

func TestFirewallErrorsAreWrapped(t *testing.T) {
	sentinel := errors.New("exit status 4")
	f, _ := fakeFirewall("linux", sentinel)
	err := f.Ban(net.IPv4(192, 0, 2, 1), 80)
	if !errors.Is(err, sentinel) {
		t.Fatalf("Ban error = %v, want wrapped %v", err, sentinel)
	}
}

func TestEnableSynCookies(t *testing.T) {
	f, calls := fakeFirewall("linux", nil)
	if err := f.EnableSynCookies(); err != nil {
		t.Fatalf("EnableSynCookies: %v", err)
	}
	if (*calls)[0].name != "sysctl" {
		t.Fatalf("expected sysctl call, got %+v", *calls)
	}

	other, calls := fakeFirewall("darwin", nil)
	if err := other.EnableSynCookies(); err != nil || len(*calls) != 0 {
		t.Fatalf("non-linux must be a no-op, err=%v calls=%v", err, *calls)
	}
}

type stubEnforcer struct {
	bans, unbans int
	err          error
}

func (s *stubEnforcer) Ban(net.IP, uint16) error   { s.bans++; return s.err }
func (s *stubEnforcer) Unban(net.IP, uint16) error { s.unbans++; return s.err }

func TestChainRunsEveryMember(t *testing.T) {
	errA := errors.New("a failed")
	a := &stubEnforcer{err: errA}
	b := &stubEnforcer{}
	c := Chain(a, b, LogOnly{})

	err := c.Ban(net.IPv4(192, 0, 2, 1), 80)
	if !errors.Is(err, errA) {
		t.Fatalf("Ban error = %v, want %v", err, errA)
	}
	if err := c.Unban(net.IPv4(192, 0, 2, 1), 80); !errors.Is(err, errA) {
		t.Fatalf("Unban error = %v", err)
	}
	if b.bans != 1 || b.unbans != 1 {
		t.Fatalf("member after a failure was skipped: %+v", b)
	}
	if err := Chain(b).Ban(net.IPv4(192, 0, 2, 1), 80); err != nil {
		t.Fatalf("clean chain returned %v", err)
	}
}

func TestStoreMirror(t *testing.T) {
	s := store.NewLocalStore()
	defer s.Close()
	m := NewStoreMirror(s)

	if err := m.Ban(net.IPv4(192, 0, 2, 1).To4(), 80); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if !s.IsBlocked("192.0.2.1:80") {
		blocks, _ := s.ListBlocks()
		t.Fatalf("expected mirrored block, have %v", blocks)
	}
	if err := m.Ban(net.ParseIP("2001:db8::2"), 443); err != nil {
		t.Fatalf("Ban v6: %v", err)
	}
	if !s.IsBlocked("[2001:db8::2]:443") {
		t.Fatalf("expected bracketed IPv6 key")
	}
	if err := m.Unban(net.IPv4(192, 0, 2, 1).To4(), 80); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if s.IsBlocked("192.0.2.1:80") {
		t.Fatalf("mirror still holds released pair")
	}
}

func TestStoreMirrorKeepsMappedFormDistinct(t *testing.T) {
	s := store.NewLocalStore()
	defer s.Close()
	m := NewStoreMirror(s)

	plain, mapped := net.IPv4(192, 0, 2, 7).To4(), net.IPv4(192, 0, 2, 7)
	if err := m.Ban(plain, 80); err != nil {
		t.Fatalf("Ban plain: %v", err)
	}
	if err := m.Ban(mapped, 80); err != nil {
		t.Fatalf("Ban mapped: %v", err)
	}
	if err := m.Unban(mapped, 80); err != nil {
		t.Fatalf("Unban mapped: %v", err)
	}
	if !s.IsBlocked("192.0.2.7:80") {
		t.Fatalf("releasing the mapped pair dropped the 4-byte pair's record")
	}
	if s.IsBlocked("[::ffff:192.0.2.7]:80") {
		t.Fatalf("mapped pair still mirrored after release")
	}
}

func TestWindowsRuleNamesKeepMappedFormDistinct(t *testing.T) {
	f, calls := fakeFirewall("windows", nil)
	if err := f.Ban(net.IPv4(192, 0, 2, 7).To4(), 22); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if err := f.Ban(net.IPv4(192, 0, 2, 7), 22); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if (*calls)[0].args[4] == (*calls)[1].args[4] {
		t.Fatalf("both forms share rule %q", (*calls)[0].args[4])
	}
}

func TestNotifySendsAlerts(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m notifier.WebhookMessage
		_ = json.NewDecoder(r.Body).Decode(&m)
		mu.Lock()
		texts = append(texts, m.Text)
		mu.Unlock()
	}))
	defer srv.Close()

	hook := notifier.NewWebhook(srv.URL, 100, 10)
	n := &Notify{Webhook: hook}
	if err := n.Ban(net.IPv4(192, 0, 2, 1).To4(), 80); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if err := n.Unban(net.IPv4(192, 0, 2, 1).To4(), 80); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	hook.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 2 {
		t.Fatalf("expected 2 alerts, got %v", texts)
	}
	joined := strings.Join(texts, "\n")
	if !strings.Contains(joined, "banned 192.0.2.1:80") || !strings.Contains(joined, "released 192.0.2.1:80") {
		t.Fatalf("unexpected alerts: %v", texts)
	}
}

func TestGeoLocatorNilSafe(t *testing.T) {
	var g *GeoLocator
	if c := g.Country(net.IPv4(192, 0, 2, 1)); c != "" {
		t.Fatalf("nil locator returned %q", c)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := OpenGeoLocator("/nonexistent/GeoLite2-Country.mmdb"); err == nil {
		t.Fatalf("expected open error")
	}
}

package filter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"synbl/logger"
	"synbl/track"
)

const (
	DefaultThreshold      = 1
	DefaultSamplingPeriod = time.Second
	DefaultProbation      = 5 * time.Minute
	DefaultPollInterval   = time.Second
)

var (
	ErrAlreadyRunning = errors.New("syn filter already running")
	ErrBadSettings    = errors.New("invalid syn filter settings")
)

// Settings supplies the runtime-tunable detection parameters. Every method
// may be called concurrently with SYN ingestion.
type Settings interface {
	Threshold() int
	SamplingPeriod() time.Duration
	Probation() time.Duration
}

// Enforcer blocks and releases (address, port) pairs. The filter hands it a
// private copy of the address on every call.
type Enforcer interface {
	Ban(ip net.IP, port uint16) error
	Unban(ip net.IP, port uint16) error
}

type Options struct {
	// MaxCounting and MaxBanned bound the tables; zero means unbounded.
	MaxCounting int
	MaxBanned   int

	// PollInterval is how often probation expiry is checked.
	PollInterval time.Duration

	// Now stamps bans and drives expiry. Defaults to time.Now.
	Now func() time.Time

	Exempt *ExemptList

	// Manual disables the background tasks; the caller drives ResetWindow
	// and Expire itself.
	Manual bool
}

// SynFilter counts SYNs per (address, port) over a fixed sampling window and
// bans pairs that exceed the threshold until their probation elapses.
type SynFilter struct {
	settings Settings
	enforcer Enforcer
	exempt   *ExemptList
	now      func() time.Time
	poll     time.Duration
	manual   bool

	tables *track.Guard

	lifeMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Snapshot is a point-in-time copy of the filter state.
type Snapshot struct {
	Counting map[track.Key]int
	Banned   []track.Entry
}

func NewSynFilter(settings Settings, enforcer Enforcer, opts Options) *SynFilter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SynFilter{
		settings: settings,
		enforcer: enforcer,
		exempt:   opts.Exempt,
		now:      opts.Now,
		poll:     opts.PollInterval,
		manual:   opts.Manual,
		tables:   track.NewGuard(opts.MaxCounting, opts.MaxBanned),
	}
}

// Start resets both tables and launches the window clearer and the
// probation forgiver.
func (f *SynFilter) Start() error {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()

	if f.cancel != nil {
		return ErrAlreadyRunning
	}
	if p := f.settings.SamplingPeriod(); p <= 0 {
		return fmt.Errorf("%w: sampling period %s", ErrBadSettings, p)
	}
	if p := f.settings.Probation(); p < 0 {
		return fmt.Errorf("%w: probation %s", ErrBadSettings, p)
	}

	f.tables.Do(func(t *track.Tables) {
		t.Counters.ClearAll()
		t.Blacklist.ClearAll()
		t.Stopped = false
	})
	CountingEntries.Set(0)
	BannedEntries.Set(0)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	if !f.manual {
		f.wg.Add(2)
		go f.clearLoop(ctx)
		go f.forgiveLoop(ctx)
	}

	logger.Info("SYN filter started",
		"max_syn", f.settings.Threshold(),
		"period", f.settings.SamplingPeriod(),
		"probation", f.settings.Probation(),
		"exempt_prefixes", f.exempt.Len())
	return nil
}

// Stop halts the background tasks, waits for them and drops all state. Banned
// pairs are not released: their blocks outlive the process.
func (f *SynFilter) Stop() {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()

	if f.cancel == nil {
		return
	}
	f.tables.Do(func(t *track.Tables) { t.Stopped = true })
	f.cancel()
	f.wg.Wait()
	f.cancel = nil

	var counting, banned int
	f.tables.Do(func(t *track.Tables) {
		banned = t.Blacklist.ClearAll()
		counting = t.Counters.ClearAll()
	})
	CountingEntries.Set(0)
	BannedEntries.Set(0)

	logger.Info("SYN filter stopped", "dropped_counters", counting, "left_blocked", banned)
}

// OnSynObserved records one SYN from ip towards port. It never fails: bad
// addresses, exempt sources and full tables let the packet through uncounted.
func (f *SynFilter) OnSynObserved(ip net.IP, port uint16, ts time.Time) {
	k, ok := track.KeyFrom(ip, port)
	if !ok {
		SynIgnored.WithLabelValues("bad_address").Inc()
		return
	}
	f.Observe(k, ts)
}

// Observe is OnSynObserved for an already-built key.
func (f *SynFilter) Observe(k track.Key, ts time.Time) {
	if f.exempt.Contains(k.Addr) {
		SynIgnored.WithLabelValues("exempt").Inc()
		return
	}
	SynObserved.Inc()

	var (
		count  int
		reason string
		size   int
	)
	f.tables.Do(func(t *track.Tables) {
		switch {
		case t.Stopped:
			reason = "stopped"
		case t.Blacklist.Contains(k):
			// Still on probation; counting it again would only re-ban.
			reason = "banned"
		default:
			var ok bool
			if count, ok = t.Counters.RecordSyn(k); !ok {
				reason = "table_full"
			}
		}
		size = t.Counters.Len()
	})
	if reason != "" {
		SynIgnored.WithLabelValues(reason).Inc()
		return
	}
	CountingEntries.Set(float64(size))

	threshold := f.settings.Threshold()
	logger.Debug("SYN observed", "key", k, "count", count, "max_syn", threshold, "ts", ts)
	if count <= threshold {
		return
	}
	if f.promote(k) {
		logger.Warn("SYN flood detected", "ip", k.Addr, "port", k.Port, "count", count, "max_syn", threshold)
		f.ban(k)
	}
}

// Ban blacklists k immediately, as if it had just crossed the threshold.
// It reports false when k is already banned or the blacklist is full.
func (f *SynFilter) Ban(k track.Key) bool {
	if !f.promote(k) {
		return false
	}
	logger.Info("Manual ban", "ip", k.Addr, "port", k.Port)
	f.ban(k)
	return true
}

// Release lifts the ban on k before its probation ends. A ban still being
// requested cannot be released yet and reports false.
func (f *SynFilter) Release(k track.Key) bool {
	var (
		found bool
		left  int
	)
	f.tables.Do(func(t *track.Tables) {
		_, found = t.Blacklist.Remove(k)
		left = t.Blacklist.Len()
	})
	if !found {
		return false
	}
	BannedEntries.Set(float64(left))
	f.unban(k, "manual")
	return true
}

// ResetWindow drops every SYN counter, starting a new sampling period.
func (f *SynFilter) ResetWindow() int {
	var (
		n       int
		stopped bool
	)
	f.tables.Do(func(t *track.Tables) {
		if stopped = t.Stopped; stopped {
			return
		}
		n = t.Counters.ClearAll()
	})
	if stopped {
		return 0
	}
	WindowResets.Inc()
	CountingEntries.Set(0)
	if n > 0 {
		logger.Debug("Sampling window reset", "dropped", n)
	}
	return n
}

// Expire releases every ban whose probation has elapsed and returns them.
func (f *SynFilter) Expire() []track.Entry {
	probation := f.settings.Probation()
	now := f.now()

	var (
		due  []track.Entry
		left int
	)
	f.tables.Do(func(t *track.Tables) {
		if t.Stopped {
			return
		}
		due = t.Blacklist.ExpireDue(now, probation)
		left = t.Blacklist.Len()
	})
	BannedEntries.Set(float64(left))
	for _, e := range due {
		f.unban(e.Key, "probation")
	}
	return due
}

// Snapshot copies the counter table and the blacklist.
func (f *SynFilter) Snapshot() Snapshot {
	var s Snapshot
	f.tables.Do(func(t *track.Tables) {
		s.Counting = t.Counters.Snapshot()
		s.Banned = t.Blacklist.Entries()
	})
	return s
}

func (f *SynFilter) Running() bool {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()
	return f.cancel != nil
}

// promote reserves k in the blacklist and drops its counter. Only the caller
// that gets true may issue the ban request, so concurrent SYNs for the same
// key ban it once.
func (f *SynFilter) promote(k track.Key) bool {
	var (
		claimed  bool
		counting int
	)
	f.tables.Do(func(t *track.Tables) {
		if t.Stopped {
			return
		}
		if claimed = t.Blacklist.Reserve(k); claimed {
			t.Counters.Remove(k)
		}
		counting = t.Counters.Len()
	})
	if claimed {
		CountingEntries.Set(float64(counting))
	}
	return claimed
}

// ban sends the ban request for a reserved k, then activates the entry. The
// entry cannot be released or expired before the request has returned, so
// the unban for k always follows its ban. Probation starts at activation.
func (f *SynFilter) ban(k track.Key) {
	BansTotal.Inc()
	err := f.enforcer.Ban(k.IP(), k.Port)

	var (
		active bool
		banned int
	)
	f.tables.Do(func(t *track.Tables) {
		if t.Stopped {
			return
		}
		active = t.Blacklist.Activate(k, f.now())
		banned = t.Blacklist.Len()
	})
	if active {
		BannedEntries.Set(float64(banned))
	}

	if err != nil {
		EnforcementErrors.WithLabelValues("ban").Inc()
		logger.Error("Ban request failed", "ip", k.Addr, "port", k.Port, "err", err)
		return
	}
	logger.Info("Pair banned", "ip", k.Addr, "port", k.Port, "probation", f.settings.Probation())
}

func (f *SynFilter) unban(k track.Key, cause string) {
	UnbansTotal.WithLabelValues(cause).Inc()
	if err := f.enforcer.Unban(k.IP(), k.Port); err != nil {
		EnforcementErrors.WithLabelValues("unban").Inc()
		logger.Error("Unban request failed", "ip", k.Addr, "port", k.Port, "err", err)
		return
	}
	logger.Info("Pair released", "ip", k.Addr, "port", k.Port, "cause", cause)
}

// clearLoop resets the counters once per sampling period. The period is
// re-read every round.
func (f *SynFilter) clearLoop(ctx context.Context) {
	defer f.wg.Done()
	for {
		period := f.settings.SamplingPeriod()
		if period <= 0 {
			period = DefaultSamplingPeriod
		}
		timer := time.NewTimer(period)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		f.ResetWindow()
	}
}

// forgiveLoop polls the blacklist head at a fixed granularity, independent
// of the probation length.
func (f *SynFilter) forgiveLoop(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		f.Expire()
	}
}

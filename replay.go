package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"synbl/capture"
	"synbl/enforcer"
	"synbl/filter"
	"synbl/manager"
	"synbl/track"
)

// banRecord is one ban or release seen during a replay.
type banRecord struct {
	At      time.Time
	Key     track.Key
	Release bool
}

// replayLog records enforcement calls against the capture clock.
type replayLog struct {
	mu      sync.Mutex
	clock   *captureClock
	records []banRecord
}

func (r *replayLog) add(ip net.IP, port uint16, release bool) {
	k, ok := track.KeyFrom(ip, port)
	if !ok {
		return
	}
	r.mu.Lock()
	r.records = append(r.records, banRecord{At: r.clock.Now(), Key: k, Release: release})
	r.mu.Unlock()
}

func (r *replayLog) Ban(ip net.IP, port uint16) error {
	r.add(ip, port, false)
	return nil
}

func (r *replayLog) Unban(ip net.IP, port uint16) error {
	r.add(ip, port, true)
	return nil
}

// captureClock follows packet timestamps instead of wall time.
type captureClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *captureClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *captureClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type replayResult struct {
	Stats   capture.Stats
	Records []banRecord
	Banned  []track.Entry
}

// replayCapture runs the detector over a pcap stream. Window resets and
// probation expiry follow the capture timestamps, so the outcome does not
// depend on how fast the file is read.
func replayCapture(r io.Reader, cfg *Config) (*replayResult, error) {
	threshold, period, probation := cfg.Tunables()
	settings, err := manager.NewLiveSettings(threshold, period, probation)
	if err != nil {
		return nil, err
	}
	exempt, err := filter.NewExemptList(cfg.Exempt)
	if err != nil {
		return nil, err
	}

	clock := &captureClock{}
	log := &replayLog{clock: clock}
	syn := filter.NewSynFilter(settings, enforcer.Chain(enforcer.LogOnly{}, log), filter.Options{
		MaxCounting: cfg.MaxCounting,
		MaxBanned:   cfg.MaxBanned,
		Now:         clock.Now,
		Exempt:      exempt,
		Manual:      true,
	})
	if err := syn.Start(); err != nil {
		return nil, err
	}
	defer syn.Stop()

	var windowStart time.Time
	tick := func(ts time.Time) {
		clock.set(ts)
		if windowStart.IsZero() {
			windowStart = ts
		}
		if elapsed := ts.Sub(windowStart); elapsed >= period {
			syn.ResetWindow()
			windowStart = windowStart.Add(elapsed - elapsed%period)
		}
		syn.Expire()
	}

	st, err := capture.Replay(r, syn, tick)
	if err != nil {
		return nil, err
	}

	log.mu.Lock()
	records := append([]banRecord(nil), log.records...)
	log.mu.Unlock()
	return &replayResult{Stats: st, Records: records, Banned: syn.Snapshot().Banned}, nil
}

func runReplay(out io.Writer, path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := replayCapture(f, cfg)
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}

	bans := 0
	for _, rec := range res.Records {
		action := "BAN    "
		if rec.Release {
			action = "RELEASE"
		} else {
			bans++
		}
		fmt.Fprintf(out, "%s  %s  %s\n", rec.At.UTC().Format(time.RFC3339Nano), action, rec.Key)
	}
	fmt.Fprintf(out, "\npackets=%d syns=%d bans=%d still_banned=%d\n",
		res.Stats.Packets, res.Stats.Syns, bans, len(res.Banned))
	return nil
}

package manager

import (
	"fmt"
	"sync/atomic"
	"time"
)

// LiveSettings holds the detection tunables. Reads are lock-free, so the
// packet path can consult them on every SYN while an operator changes them
// through the API or a config reload.
type LiveSettings struct {
	threshold atomic.Int64
	period    atomic.Int64
	probation atomic.Int64
}

func NewLiveSettings(threshold int, period, probation time.Duration) (*LiveSettings, error) {
	s := &LiveSettings{}
	if err := s.Apply(&threshold, &period, &probation); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LiveSettings) Threshold() int                { return int(s.threshold.Load()) }
func (s *LiveSettings) SamplingPeriod() time.Duration { return time.Duration(s.period.Load()) }
func (s *LiveSettings) Probation() time.Duration      { return time.Duration(s.probation.Load()) }

// Apply validates every non-nil value first and only then stores them, so a
// bad update changes nothing.
func (s *LiveSettings) Apply(threshold *int, period, probation *time.Duration) error {
	if threshold != nil && *threshold < 0 {
		return fmt.Errorf("max_syn must be >= 0, got %d", *threshold)
	}
	if period != nil && *period <= 0 {
		return fmt.Errorf("period must be positive, got %s", *period)
	}
	if probation != nil && *probation < 0 {
		return fmt.Errorf("probation must be >= 0, got %s", *probation)
	}

	if threshold != nil {
		s.threshold.Store(int64(*threshold))
	}
	if period != nil {
		s.period.Store(int64(*period))
	}
	if probation != nil {
		s.probation.Store(int64(*probation))
	}
	return nil
}

// SettingsView is the JSON form of the tunables.
type SettingsView struct {
	MaxSyn    int    `json:"max_syn"`
	Period    string `json:"period"`
	Probation string `json:"probation"`
}

func (s *LiveSettings) View() SettingsView {
	return SettingsView{
		MaxSyn:    s.Threshold(),
		Period:    s.SamplingPeriod().String(),
		Probation: s.Probation().String(),
	}
}

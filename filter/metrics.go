package filter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SynObserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synbl_syn_observed_total",
			Help: "The total number of TCP SYN segments handed to the filter",
		},
	)

	SynIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synbl_syn_ignored_total",
			Help: "SYN segments that were not counted, by reason",
		},
		[]string{"reason"},
	)

	BansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synbl_bans_total",
			Help: "The total number of ban requests issued",
		},
	)

	UnbansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synbl_unbans_total",
			Help: "The total number of unban requests issued",
		},
		[]string{"cause"},
	)

	WindowResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synbl_window_resets_total",
			Help: "The number of sampling-window resets",
		},
	)

	CountingEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "synbl_counting_entries",
			Help: "The number of (address, port) pairs counted in the current window",
		},
	)

	BannedEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "synbl_banned_entries",
			Help: "The number of (address, port) pairs currently on probation",
		},
	)

	EnforcementErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synbl_enforcement_errors_total",
			Help: "Ban or unban requests the enforcement backend failed",
		},
		[]string{"action"},
	)
)

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"synbl/capture"
	"synbl/enforcer"
	"synbl/filter"
	"synbl/logger"
	"synbl/manager"
	"synbl/notifier"
	"synbl/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type cliFlags struct {
	configPath string
	iface      string
	maxSyn     int
	period     time.Duration
	probation  time.Duration
	dryRun     bool
	cmd        *cobra.Command
}

// overlay applies explicitly set flags on top of file and environment values.
func (f *cliFlags) overlay(cfg *Config) {
	fl := f.cmd.Flags()
	if fl.Changed("iface") {
		cfg.Interface = f.iface
	}
	if fl.Changed("max-syn") {
		n := f.maxSyn
		cfg.MaxSyn = &n
	}
	if fl.Changed("period") {
		cfg.Period = f.period.String()
	}
	if fl.Changed("probation") {
		cfg.Probation = f.probation.String()
	}
	if fl.Changed("dry-run") {
		cfg.Enforcement.DryRun = f.dryRun
	}
}

func (f *cliFlags) load() (*Config, error) {
	cfg, err := LoadConfig(f.configPath, f.overlay)
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	return cfg, nil
}

func bindTunables(cmd *cobra.Command, f *cliFlags) {
	f.cmd = cmd
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "synbl.yaml", "path to the YAML config file")
	cmd.Flags().IntVar(&f.maxSyn, "max-syn", filter.DefaultThreshold, "blacklist if the number of SYN per sampling period exceeds this")
	cmd.Flags().DurationVar(&f.period, "period", filter.DefaultSamplingPeriod, "duration of the sampling period")
	cmd.Flags().DurationVar(&f.probation, "probation", filter.DefaultProbation, "duration of the blacklist")
}

func main() {
	var runFlags, replayFlags cliFlags

	rootCmd := &cobra.Command{
		Use:          "synbl",
		Short:        "SYN flood blacklister",
		Long:         "synbl counts TCP SYNs per (source address, destination port) and blocks pairs that exceed a rate until a probation elapses.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(&runFlags)
		},
	}
	bindTunables(rootCmd, &runFlags)
	rootCmd.Flags().StringVarP(&runFlags.iface, "iface", "i", "eth0", "interface to capture SYNs on")
	rootCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "log ban decisions without installing firewall rules")

	replayCmd := &cobra.Command{
		Use:   "replay <file.pcap>",
		Short: "Run detection over a capture file and report bans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := replayFlags.load()
			if err != nil {
				return err
			}
			return runReplay(cmd.OutOrStdout(), args[0], cfg)
		},
	}
	bindTunables(replayCmd, &replayFlags)
	rootCmd.AddCommand(replayCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(flags *cliFlags) error {
	cfg, err := flags.load()
	if err != nil {
		logger.Error("Failed to load config", "err", err)
		return err
	}
	threshold, period, probation := cfg.Tunables()
	logger.Info("Starting synbl", "iface", cfg.Interface, "max_syn", threshold, "period", period, "probation", probation)

	settings, err := manager.NewLiveSettings(threshold, period, probation)
	if err != nil {
		return err
	}

	stack, err := buildEnforcement(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	exempt, err := filter.NewExemptList(cfg.Exempt)
	if err != nil {
		return err
	}

	syn := filter.NewSynFilter(settings, stack.enforcer, filter.Options{
		MaxCounting:  cfg.MaxCounting,
		MaxBanned:    cfg.MaxBanned,
		PollInterval: cfg.poll,
		Exempt:       exempt,
	})
	if err := syn.Start(); err != nil {
		return err
	}
	defer syn.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// Metrics endpoint
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}

	// Management API (internal)
	apiMux := http.NewServeMux()
	manager.NewManagementAPI(syn, settings, stack.store).ServeHTTP(apiMux)
	apiSrv := &http.Server{Addr: cfg.APIAddr, Handler: apiMux, ReadHeaderTimeout: 5 * time.Second}

	for _, srv := range []*http.Server{metricsSrv, apiSrv} {
		wg.Add(1)
		go func(s *http.Server) {
			defer wg.Done()
			logger.Info("HTTP endpoint active", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP endpoint failed", "addr", s.Addr, "err", err)
			}
		}(srv)
	}

	watcher := newConfigWatcher(flags.configPath, cfg, settings, flags.overlay)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.run(ctx); err != nil {
			logger.Warn("Config hot reload disabled", "err", err)
		}
	}()

	source, handle, err := capture.OpenLive(cfg.Interface, cfg.BPFFilter)
	if err != nil {
		// Keep serving the API so operators can still inspect and ban by hand.
		logger.Error("Packet capture unavailable", "iface", cfg.Interface, "err", err)
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := capture.Run(ctx, source.Packets(), syn, cfg.Workers)
			logger.Info("Packet capture finished", "packets", st.Packets, "syns", st.Syns)
		}()
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done
	logger.Info("synbl stopping...")

	cancel()
	if handle != nil {
		handle.Close()
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	for _, srv := range []*http.Server{metricsSrv, apiSrv} {
		srv.Shutdown(shutdownCtx)
	}
	wg.Wait()

	logger.Info("synbl stopped")
	return nil
}

// enforcementStack is the assembled Enforcement Collaborator plus the
// resources it holds.
type enforcementStack struct {
	enforcer enforcer.Enforcer
	store    store.Storer
	geo      *enforcer.GeoLocator
	webhook  *notifier.Webhook
}

func buildEnforcement(cfg *Config) (*enforcementStack, error) {
	e := cfg.Enforcement
	s := &enforcementStack{}
	var members []enforcer.Enforcer

	if e.DryRun {
		members = append(members, enforcer.LogOnly{})
	} else {
		fw := enforcer.NewFirewall(e.Firewall.IPTables, e.Firewall.IP6Tables, e.Firewall.Chain)
		if e.SynCookies {
			if err := fw.EnableSynCookies(); err != nil {
				logger.Warn("Could not enable SYN cookies", "err", err)
			}
		}
		members = append(members, fw)
	}

	if e.Redis.Addr != "" {
		rs := store.NewRedisStore(e.Redis.Addr, e.Redis.Password)
		if err := rs.Ping(3 * time.Second); err != nil {
			logger.Warn("Redis unavailable, mirroring blocks in memory", "addr", e.Redis.Addr, "err", err)
			rs.Close()
			s.store = store.NewLocalStore()
		} else {
			logger.Info("Distributed block mirror initialized (Redis)", "addr", e.Redis.Addr)
			s.store = rs
		}
	} else {
		logger.Info("In-memory block mirror initialized")
		s.store = store.NewLocalStore()
	}
	members = append(members, enforcer.NewStoreMirror(s.store))

	if e.Webhook.URL != "" {
		s.webhook = notifier.NewWebhook(e.Webhook.URL, e.Webhook.Rate, e.Webhook.Burst)
		if e.GeoIPDB != "" {
			geo, err := enforcer.OpenGeoLocator(e.GeoIPDB)
			if err != nil {
				logger.Warn("GeoIP tagging disabled", "err", err)
			} else {
				s.geo = geo
			}
		}
		members = append(members, &enforcer.Notify{Webhook: s.webhook, Geo: s.geo})
	}

	s.enforcer = enforcer.Chain(members...)
	return s, nil
}

func (s *enforcementStack) Close() {
	s.webhook.Flush()
	if err := s.geo.Close(); err != nil {
		logger.Warn("Closing GeoIP database", "err", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("Closing block store", "err", err)
		}
	}
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"synbl/capture"
	"synbl/filter"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Interface    string      `yaml:"interface"`
	BPFFilter    string      `yaml:"bpf_filter"`
	Workers      int         `yaml:"workers"`
	MaxSyn       *int        `yaml:"max_syn"`
	Period       string      `yaml:"period"`
	Probation    string      `yaml:"probation"`
	PollInterval string      `yaml:"poll_interval"`
	MaxCounting  int         `yaml:"max_counting"`
	MaxBanned    int         `yaml:"max_banned"`
	Exempt       []string    `yaml:"exempt"`
	MetricsAddr  string      `yaml:"metrics_addr"`
	APIAddr      string      `yaml:"api_addr"`
	Logging      Logging     `yaml:"logging"`
	Enforcement  Enforcement `yaml:"enforcement"`

	period, probation, poll time.Duration
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Enforcement struct {
	DryRun     bool     `yaml:"dry_run"`
	SynCookies bool     `yaml:"syncookies"`
	Firewall   Firewall `yaml:"firewall"`
	Redis      Redis    `yaml:"redis"`
	Webhook    Webhook  `yaml:"webhook"`
	GeoIPDB    string   `yaml:"geoip_db"`
}

type Firewall struct {
	IPTables  string `yaml:"iptables"`
	IP6Tables string `yaml:"ip6tables"`
	Chain     string `yaml:"chain"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type Webhook struct {
	URL   string  `yaml:"url"`
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// LoadConfig reads path when it exists, applies SYNBL_* environment
// overrides, then each overlay, and fills defaults before validating. A
// missing file is not an error.
func LoadConfig(path string, overlays ...func(*Config)) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	for _, overlay := range overlays {
		overlay(&cfg)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if val := os.Getenv("SYNBL_MAX_SYN"); val != "" {
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
			return fmt.Errorf("SYNBL_MAX_SYN: %w", err)
		}
		c.MaxSyn = &n
	}
	if val := os.Getenv("SYNBL_PERIOD"); val != "" {
		c.Period = val
	}
	if val := os.Getenv("SYNBL_PROBATION"); val != "" {
		c.Probation = val
	}
	if val := os.Getenv("SYNBL_INTERFACE"); val != "" {
		c.Interface = val
	}
	if val := os.Getenv("SYNBL_REDIS_ADDR"); val != "" {
		c.Enforcement.Redis.Addr = val
	}
	if val := os.Getenv("SYNBL_REDIS_PASSWORD"); val != "" {
		c.Enforcement.Redis.Password = val
	}
	if val := os.Getenv("SYNBL_WEBHOOK_URL"); val != "" {
		c.Enforcement.Webhook.URL = val
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxSyn == nil {
		n := filter.DefaultThreshold
		c.MaxSyn = &n
	}
	if c.Period == "" {
		c.Period = filter.DefaultSamplingPeriod.String()
	}
	if c.Probation == "" {
		c.Probation = filter.DefaultProbation.String()
	}
	if c.PollInterval == "" {
		c.PollInterval = filter.DefaultPollInterval.String()
	}
	if c.Interface == "" {
		c.Interface = "eth0"
	}
	if c.BPFFilter == "" {
		c.BPFFilter = capture.DefaultBPF
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxCounting == 0 {
		c.MaxCounting = 1 << 20
	}
	if c.MaxBanned == 0 {
		c.MaxBanned = 1 << 16
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.APIAddr == "" {
		c.APIAddr = "127.0.0.1:9091"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	var err error
	if c.period, err = time.ParseDuration(c.Period); err != nil {
		return fmt.Errorf("period: %w", err)
	}
	if c.probation, err = time.ParseDuration(c.Probation); err != nil {
		return fmt.Errorf("probation: %w", err)
	}
	if c.poll, err = time.ParseDuration(c.PollInterval); err != nil {
		return fmt.Errorf("poll_interval: %w", err)
	}

	var problems []string
	if *c.MaxSyn < 0 {
		problems = append(problems, "max_syn must be >= 0")
	}
	if c.period <= 0 {
		problems = append(problems, "period must be positive")
	}
	if c.probation < 0 {
		problems = append(problems, "probation must be >= 0")
	}
	if c.poll <= 0 {
		problems = append(problems, "poll_interval must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) Tunables() (threshold int, period, probation time.Duration) {
	return *c.MaxSyn, c.period, c.probation
}

// restartOnly lists fields that differ between c and next but only take
// effect after a restart.
func (c *Config) restartOnly(next *Config) []string {
	var changed []string
	if c.Interface != next.Interface {
		changed = append(changed, "interface")
	}
	if c.BPFFilter != next.BPFFilter {
		changed = append(changed, "bpf_filter")
	}
	if c.PollInterval != next.PollInterval {
		changed = append(changed, "poll_interval")
	}
	if c.MetricsAddr != next.MetricsAddr || c.APIAddr != next.APIAddr {
		changed = append(changed, "listen addresses")
	}
	if c.Enforcement != next.Enforcement {
		changed = append(changed, "enforcement")
	}
	if strings.Join(c.Exempt, ",") != strings.Join(next.Exempt, ",") {
		changed = append(changed, "exempt")
	}
	return changed
}

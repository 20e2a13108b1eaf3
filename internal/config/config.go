// Package config provides configuration management for the scalper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding keys are unset.
const (
	// defaultCycleInterval drives the signal/risk evaluation loop
	defaultCycleInterval = "500ms"
	// defaultRotationInterval drives the ATM re-anchoring loop
	defaultRotationInterval = "60s"
	// defaultWarmupCandles is the one-minute history depth fetched per instrument at startup
	defaultWarmupCandles = 1000
	// defaultBudgetPerTrade is the fixed currency risk allotted per entry
	defaultBudgetPerTrade = 2000.0
	// defaultLimitOffset is the slippage allowance added to the entry price
	defaultLimitOffset = 0.50
	// defaultHardStopRatio caps the stop at 15% below entry
	defaultHardStopRatio = 0.85
	// defaultRewardMultiple sets the target at 2.5R
	defaultRewardMultiple = 2.5
	// defaultBreakevenTrigger moves the stop to entry at +10%
	defaultBreakevenTrigger = 0.10
	// defaultThetaHold is how long a stalled position is tolerated
	defaultThetaHold = "3m"
	// defaultThetaMinGain is the gain ratio below which a held position counts as stalled
	defaultThetaMinGain = 0.01
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Underlying  UnderlyingConfig  `yaml:"underlying"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Risk        RiskConfig        `yaml:"risk"`
	Stream      StreamConfig      `yaml:"stream"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode string `yaml:"mode"` // live | mock
}

// UnderlyingConfig identifies the index being scalped.
type UnderlyingConfig struct {
	Name          string  `yaml:"name"`           // e.g. NIFTY, BANKNIFTY; drives the strike grid
	InstrumentKey string  `yaml:"instrument_key"` // streaming key of the index
	StrikeStep    float64 `yaml:"strike_step"`    // 0 derives the grid from the name
}

// ScheduleConfig defines the two periodic loops.
type ScheduleConfig struct {
	CycleInterval    string `yaml:"cycle_interval"`
	RotationInterval string `yaml:"rotation_interval"`
	WarmupCandles    int    `yaml:"warmup_candles"`
}

// RiskConfig defines entry sizing and exit parameters.
type RiskConfig struct {
	BudgetPerTrade   float64 `yaml:"budget_per_trade"`
	LimitOffset      float64 `yaml:"limit_offset"`
	HardStopRatio    float64 `yaml:"hard_stop_ratio"`
	RewardMultiple   float64 `yaml:"reward_multiple"`
	BreakevenTrigger float64 `yaml:"breakeven_trigger"`
	ThetaHold        string  `yaml:"theta_hold"`
	ThetaMinGain     float64 `yaml:"theta_min_gain"`
}

// StreamConfig defines the live feed connection.
type StreamConfig struct {
	URL          string `yaml:"url"`
	AccessToken  string `yaml:"access_token"`
	PingInterval string `yaml:"ping_interval"`
	ReadTimeout  string `yaml:"read_timeout"`
}

// AnalyticsConfig defines the option-chain analytics API.
type AnalyticsConfig struct {
	BaseURL           string `yaml:"base_url"`
	AccessToken       string `yaml:"access_token"`
	Timeout           string `yaml:"timeout"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	BurstSize         int    `yaml:"burst_size"`
}

// LedgerConfig defines where closed trades are appended.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the local observability server.
type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	AuthToken  string `yaml:"auth_token"`
}

// LoggingConfig defines structured log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // json | text
	Output     string `yaml:"output"` // stdout | stderr | file path
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads and parses the configuration file from the specified path.
// Overrides run after decoding and before defaults and validation, so a
// caller can force mock mode without the file carrying live credentials.
func Load(configPath string, overrides ...func(*Config)) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for _, override := range overrides {
		override(&config)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// applyDefaults fills unset keys with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Environment.Mode == "" {
		c.Environment.Mode = "live"
	}
	if c.Schedule.CycleInterval == "" {
		c.Schedule.CycleInterval = defaultCycleInterval
	}
	if c.Schedule.RotationInterval == "" {
		c.Schedule.RotationInterval = defaultRotationInterval
	}
	if c.Schedule.WarmupCandles == 0 {
		c.Schedule.WarmupCandles = defaultWarmupCandles
	}
	if c.Risk.BudgetPerTrade == 0 {
		c.Risk.BudgetPerTrade = defaultBudgetPerTrade
	}
	if c.Risk.LimitOffset == 0 {
		c.Risk.LimitOffset = defaultLimitOffset
	}
	if c.Risk.HardStopRatio == 0 {
		c.Risk.HardStopRatio = defaultHardStopRatio
	}
	if c.Risk.RewardMultiple == 0 {
		c.Risk.RewardMultiple = defaultRewardMultiple
	}
	if c.Risk.BreakevenTrigger == 0 {
		c.Risk.BreakevenTrigger = defaultBreakevenTrigger
	}
	if c.Risk.ThetaHold == "" {
		c.Risk.ThetaHold = defaultThetaHold
	}
	if c.Risk.ThetaMinGain == 0 {
		c.Risk.ThetaMinGain = defaultThetaMinGain
	}
	if c.Stream.PingInterval == "" {
		c.Stream.PingInterval = "15s"
	}
	if c.Stream.ReadTimeout == "" {
		c.Stream.ReadTimeout = "60s"
	}
	if c.Analytics.Timeout == "" {
		c.Analytics.Timeout = "10s"
	}
	if c.Analytics.RequestsPerSecond == 0 {
		c.Analytics.RequestsPerSecond = 5
	}
	if c.Analytics.BurstSize == 0 {
		c.Analytics.BurstSize = 10
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "data/trades.csv"
	}
	if c.Dashboard.ListenAddr == "" {
		c.Dashboard.ListenAddr = "127.0.0.1:8787"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "live" && c.Environment.Mode != "mock" {
		return fmt.Errorf("environment.mode must be 'live' or 'mock'")
	}

	// Underlying validation
	if c.Underlying.Name == "" {
		return fmt.Errorf("underlying.name is required")
	}
	if c.Underlying.StrikeStep < 0 {
		return fmt.Errorf("underlying.strike_step must be >= 0")
	}

	// Live-mode provider validation; mock mode runs entirely offline
	if c.Environment.Mode == "live" {
		if c.Underlying.InstrumentKey == "" {
			return fmt.Errorf("underlying.instrument_key is required in live mode")
		}
		if c.Stream.URL == "" {
			return fmt.Errorf("stream.url is required in live mode")
		}
		if c.Stream.AccessToken == "" {
			return fmt.Errorf("stream.access_token is required in live mode")
		}
		if c.Analytics.BaseURL == "" {
			return fmt.Errorf("analytics.base_url is required in live mode")
		}
	}

	// Schedule validation
	if _, err := time.ParseDuration(c.Schedule.CycleInterval); err != nil {
		return fmt.Errorf("schedule.cycle_interval invalid: %w", err)
	}
	if _, err := time.ParseDuration(c.Schedule.RotationInterval); err != nil {
		return fmt.Errorf("schedule.rotation_interval invalid: %w", err)
	}
	if c.Schedule.WarmupCandles < 20 {
		return fmt.Errorf("schedule.warmup_candles must be >= 20 for level detection")
	}

	// Risk validation
	if c.Risk.BudgetPerTrade <= 0 {
		return fmt.Errorf("risk.budget_per_trade must be > 0")
	}
	if c.Risk.LimitOffset < 0 {
		return fmt.Errorf("risk.limit_offset must be >= 0")
	}
	if c.Risk.HardStopRatio <= 0 || c.Risk.HardStopRatio >= 1 {
		return fmt.Errorf("risk.hard_stop_ratio must be in (0,1)")
	}
	if c.Risk.RewardMultiple <= 0 {
		return fmt.Errorf("risk.reward_multiple must be > 0")
	}
	if c.Risk.BreakevenTrigger <= 0 {
		return fmt.Errorf("risk.breakeven_trigger must be > 0")
	}
	if _, err := time.ParseDuration(c.Risk.ThetaHold); err != nil {
		return fmt.Errorf("risk.theta_hold invalid: %w", err)
	}
	if c.Risk.ThetaMinGain <= 0 {
		return fmt.Errorf("risk.theta_min_gain must be > 0")
	}

	// Stream validation
	if _, err := time.ParseDuration(c.Stream.PingInterval); err != nil {
		return fmt.Errorf("stream.ping_interval invalid: %w", err)
	}
	if _, err := time.ParseDuration(c.Stream.ReadTimeout); err != nil {
		return fmt.Errorf("stream.read_timeout invalid: %w", err)
	}

	// Analytics validation
	if _, err := time.ParseDuration(c.Analytics.Timeout); err != nil {
		return fmt.Errorf("analytics.timeout invalid: %w", err)
	}
	if c.Analytics.RequestsPerSecond <= 0 {
		return fmt.Errorf("analytics.requests_per_second must be > 0")
	}
	if c.Analytics.BurstSize <= 0 {
		return fmt.Errorf("analytics.burst_size must be > 0")
	}

	// Ledger validation
	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}

	return nil
}

// IsMockMode returns true if the engine runs on the scripted offline providers.
func (c *Config) IsMockMode() bool {
	return c.Environment.Mode == "mock"
}

// GetCycleInterval returns the signal/risk loop period.
func (c *Config) GetCycleInterval() time.Duration {
	return parseDurationOr(c.Schedule.CycleInterval, 500*time.Millisecond)
}

// GetRotationInterval returns the ATM re-anchoring loop period.
func (c *Config) GetRotationInterval() time.Duration {
	return parseDurationOr(c.Schedule.RotationInterval, time.Minute)
}

// GetThetaHold returns how long a stalled position is held before the
// time-based exit applies.
func (c *Config) GetThetaHold() time.Duration {
	return parseDurationOr(c.Risk.ThetaHold, 3*time.Minute)
}

// GetPingInterval returns the websocket keepalive period.
func (s StreamConfig) GetPingInterval() time.Duration {
	return parseDurationOr(s.PingInterval, 15*time.Second)
}

// GetReadTimeout returns the websocket read deadline.
func (s StreamConfig) GetReadTimeout() time.Duration {
	return parseDurationOr(s.ReadTimeout, 60*time.Second)
}

// GetTimeout returns the per-request analytics timeout.
func (a AnalyticsConfig) GetTimeout() time.Duration {
	return parseDurationOr(a.Timeout, 10*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Package config provides configuration management for the spread engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultMAWindow is used when monitor.ma_window is unset.
	defaultMAWindow = 10
	// defaultPollInterval is used when monitor.poll_interval is unset.
	defaultPollInterval = "1m"
	// defaultBackfillMinutes is used when monitor.backfill_minutes is unset.
	defaultBackfillMinutes = 30
	// defaultQuantity is used when strategy.quantity is unset.
	defaultQuantity = 1
	// defaultTimeInForce is used when strategy.time_in_force is unset.
	defaultTimeInForce = "day"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	// TradeEndpoint/DataEndpoint override the mode-derived defaults; leave
	// empty outside of tests.
	TradeEndpoint string `yaml:"trade_endpoint"`
	DataEndpoint  string `yaml:"data_endpoint"`
	Feed          string `yaml:"feed"` // opra | indicative
}

// StrategyConfig defines how a spread candidate is chosen and priced.
type StrategyConfig struct {
	Symbol     string `yaml:"symbol"`
	OptionType string `yaml:"option_type"` // call | put
	// Expiration pins a specific date (YYYY-MM-DD). Empty means pick the
	// soonest expiration with at least two strikes.
	Expiration string `yaml:"expiration"`
	// StrikeWindow bounds the chain fetch to price +/- this many dollars.
	StrikeWindow float64 `yaml:"strike_window"`
	// SpreadWidth is the target strike distance between the legs. Zero
	// means bracket the reference price instead.
	SpreadWidth float64 `yaml:"spread_width"`
	// LongStrike/ShortStrike pin exact strikes; both zero means use the
	// policy chain.
	LongStrike  float64 `yaml:"long_strike"`
	ShortStrike float64 `yaml:"short_strike"`
	MinCredit   float64 `yaml:"min_credit"`
	Quantity    int     `yaml:"quantity"`
	TimeInForce string  `yaml:"time_in_force"`
	// SubmitOrders gates live order submission; false prices and monitors
	// only.
	SubmitOrders bool `yaml:"submit_orders"`
}

// MonitorConfig defines the spread monitoring loop.
type MonitorConfig struct {
	MAWindow        int    `yaml:"ma_window"`
	PollInterval    string `yaml:"poll_interval"`
	BackfillMinutes int    `yaml:"backfill_minutes"`
}

// DashboardConfig defines the optional status HTTP server.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"` // host:port
	AuthToken string `yaml:"auth_token"`
}

// StorageConfig defines storage settings for session history.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
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

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent,
// and fills defaults for unset optional fields.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required")
	}
	if c.Broker.APISecret == "" {
		return fmt.Errorf("broker.api_secret is required")
	}
	if c.Broker.Feed != "" && c.Broker.Feed != "opra" && c.Broker.Feed != "indicative" {
		return fmt.Errorf("broker.feed must be 'opra' or 'indicative'")
	}

	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if c.Strategy.OptionType != "call" && c.Strategy.OptionType != "put" {
		return fmt.Errorf("strategy.option_type must be 'call' or 'put'")
	}
	if c.Strategy.Expiration != "" {
		if _, err := time.Parse("2006-01-02", c.Strategy.Expiration); err != nil {
			return fmt.Errorf("strategy.expiration must be YYYY-MM-DD: %w", err)
		}
	}
	if c.Strategy.StrikeWindow < 0 {
		return fmt.Errorf("strategy.strike_window must be >= 0")
	}
	if c.Strategy.SpreadWidth < 0 {
		return fmt.Errorf("strategy.spread_width must be >= 0")
	}
	if (c.Strategy.LongStrike == 0) != (c.Strategy.ShortStrike == 0) {
		return fmt.Errorf("strategy.long_strike and strategy.short_strike must be set together")
	}
	if c.Strategy.LongStrike != 0 && c.Strategy.LongStrike >= c.Strategy.ShortStrike {
		return fmt.Errorf("strategy.long_strike (%.2f) must be below strategy.short_strike (%.2f)",
			c.Strategy.LongStrike, c.Strategy.ShortStrike)
	}
	if c.Strategy.MinCredit < 0 {
		return fmt.Errorf("strategy.min_credit must be >= 0")
	}
	if c.Strategy.Quantity < 0 {
		return fmt.Errorf("strategy.quantity must be >= 0")
	}

	c.normalize()

	if c.Strategy.TimeInForce != "day" && c.Strategy.TimeInForce != "gtc" {
		return fmt.Errorf("strategy.time_in_force must be 'day' or 'gtc'")
	}

	if c.Monitor.MAWindow < 1 {
		return fmt.Errorf("monitor.ma_window must be >= 1")
	}
	if _, err := time.ParseDuration(c.Monitor.PollInterval); err != nil {
		return fmt.Errorf("monitor.poll_interval invalid: %w", err)
	}
	if c.Monitor.BackfillMinutes < 0 {
		return fmt.Errorf("monitor.backfill_minutes must be >= 0")
	}

	if c.Dashboard.Enabled && c.Dashboard.Listen == "" {
		return fmt.Errorf("dashboard.listen is required when the dashboard is enabled")
	}

	return nil
}

// IsPaperTrading returns true if the engine is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// PollInterval returns the configured monitor poll interval duration.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Monitor.PollInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// PinnedStrikes reports whether exact strikes are configured and returns
// them when so.
func (c *Config) PinnedStrikes() (long, short float64, ok bool) {
	if c.Strategy.LongStrike == 0 {
		return 0, 0, false
	}
	return c.Strategy.LongStrike, c.Strategy.ShortStrike, true
}

func (c *Config) normalize() {
	if c.Monitor.MAWindow == 0 {
		c.Monitor.MAWindow = defaultMAWindow
	}
	if c.Monitor.PollInterval == "" {
		c.Monitor.PollInterval = defaultPollInterval
	}
	if c.Monitor.BackfillMinutes == 0 {
		c.Monitor.BackfillMinutes = defaultBackfillMinutes
	}
	if c.Strategy.Quantity == 0 {
		c.Strategy.Quantity = defaultQuantity
	}
	if c.Strategy.TimeInForce == "" {
		c.Strategy.TimeInForce = defaultTimeInForce
	}
	if c.Broker.Feed == "" {
		c.Broker.Feed = "indicative"
	}
}

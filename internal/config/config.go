// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes REST/WebSocket connectivity and credentials. Keys are
// normally injected through the environment rather than committed to YAML.
type Exchange struct {
	BaseURL   string `yaml:"base_url"`
	WSURL     string `yaml:"ws_url"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Trading holds the accounting assumptions shared by backtest, paper, and live sizing.
type Trading struct {
	Cash     float64 `yaml:"cash"`
	Fee      float64 `yaml:"fee"`
	Slippage float64 `yaml:"slippage"`
}

// Risk encodes guard-rails: sizing fraction, session loss stop, and trade spacing.
type Risk struct {
	MaxFraction  float64 `yaml:"max_fraction"`
	MaxDailyLoss float64 `yaml:"max_daily_loss"`
	CooldownBars int     `yaml:"cooldown_bars"`
	StopDrawdown float64 `yaml:"stop_drawdown"`
}

// Strategy specifies which strategy is active along with numeric overrides.
type Strategy struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// Live configures the streaming session and the per-market decision loop.
type Live struct {
	Markets        []string `yaml:"markets"`
	AllowedHours   string   `yaml:"allowed_hours"`
	ATRTrailMult   float64  `yaml:"atr_trail_mult"`
	ATRPeriod      int      `yaml:"atr_period"`
	PartialTPPct   float64  `yaml:"partial_tp_pct"`
	PartialTPRatio float64  `yaml:"partial_tp_ratio"`
	PrefetchBars   int      `yaml:"prefetch_bars"`
	CandleUnit     int      `yaml:"candle_unit"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Trading  Trading  `yaml:"trading"`
	Risk     Risk     `yaml:"risk"`
	Strategy Strategy `yaml:"strategy"`
	Live     Live     `yaml:"live"`
}

// Load reads a YAML file from disk, hydrates a Config struct, and applies
// environment overrides on top.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyEnv()
	return &config, nil
}

// applyEnv overlays environment variables on the decoded file. Credentials
// in the environment always win over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("UPBIT_ACCESS_KEY"); v != "" {
		c.Exchange.AccessKey = v
	}
	if v := os.Getenv("UPBIT_SECRET_KEY"); v != "" {
		c.Exchange.SecretKey = v
	}
	if v := os.Getenv("UA_FEE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.Fee = f
		}
	}
	if v := os.Getenv("UA_SLIPPAGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.Slippage = f
		}
	}
}

// Validate rejects configurations that cannot produce a sane run.
func (c *Config) Validate() error {
	if c.Trading.Cash <= 0 {
		return fmt.Errorf("trading.cash must be positive, got %v", c.Trading.Cash)
	}
	if c.Trading.Fee < 0 || c.Trading.Fee >= 1 {
		return fmt.Errorf("trading.fee must be in [0,1), got %v", c.Trading.Fee)
	}
	if c.Trading.Slippage < 0 || c.Trading.Slippage >= 1 {
		return fmt.Errorf("trading.slippage must be in [0,1), got %v", c.Trading.Slippage)
	}
	if c.Risk.MaxFraction < 0 || c.Risk.MaxFraction > 1 {
		return fmt.Errorf("risk.max_fraction must be in [0,1], got %v", c.Risk.MaxFraction)
	}
	if c.Risk.MaxDailyLoss < 0 || c.Risk.MaxDailyLoss >= 1 {
		return fmt.Errorf("risk.max_daily_loss must be in [0,1), got %v", c.Risk.MaxDailyLoss)
	}
	if c.Risk.CooldownBars < 0 {
		return fmt.Errorf("risk.cooldown_bars must be >= 0, got %d", c.Risk.CooldownBars)
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if c.Live.PartialTPRatio < 0 || c.Live.PartialTPRatio >= 1 {
		return fmt.Errorf("live.partial_tp_ratio must be in [0,1), got %v", c.Live.PartialTPRatio)
	}
	if c.Live.PrefetchBars < 0 {
		return fmt.Errorf("live.prefetch_bars must be >= 0, got %d", c.Live.PrefetchBars)
	}
	return nil
}

// ValidateLive additionally requires credentials and at least one market.
func (c *Config) ValidateLive() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Exchange.AccessKey == "" || c.Exchange.SecretKey == "" {
		return fmt.Errorf("exchange credentials are required for live trading")
	}
	if len(c.Live.Markets) == 0 {
		return fmt.Errorf("live.markets must name at least one market")
	}
	return nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

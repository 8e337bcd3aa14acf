// Package config loads the process-wide configuration once at startup
// (spec.md §9 "Global state: the only process-wide state is
// configuration, loaded once and immutable"). Grounded on the pack's use
// of github.com/spf13/viper for exchange/bot configuration
// (0xtitan6-polymarket-mm, other_examples fd1az-arbitrage-bot).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// PriceFeedMode selects which adapter the orchestrator starts.
type PriceFeedMode string

const (
	ModeSimulation PriceFeedMode = "simulation"
	ModeExternal   PriceFeedMode = "external"
)

// Config is the fully-resolved, immutable configuration for one process
// (spec.md §6).
type Config struct {
	PriceFeedMode         PriceFeedMode
	PriceFeedInitial      decimal.Decimal
	PriceFeedVolatility   decimal.Decimal
	PriceFeedSeed         uint64
	PriceFeedSymbols      []string
	PriceFeedTickInterval time.Duration
	PriceFeedURL          string

	MaintenanceMarginRatio decimal.Decimal

	StorePath string

	MetricsPort int

	ShutdownGraceMs int
}

// Load reads configuration from path (if non-empty) plus environment
// variables prefixed CITADEL_, applying the defaults below, and validates
// the result. A validation failure is a configuration error (spec.md §6
// exit code 2).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CITADEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("price_feed.mode", string(ModeSimulation))
	v.SetDefault("price_feed.initial_price", "50000")
	v.SetDefault("price_feed.volatility", "0.001")
	v.SetDefault("price_feed.seed", 1)
	v.SetDefault("price_feed.symbols", []string{"BTC-USD"})
	v.SetDefault("price_feed.tick_interval_ms", 1000)
	v.SetDefault("price_feed.url", "")
	v.SetDefault("risk.maintenance_margin_ratio", "0.005")
	v.SetDefault("store.path", "citadel.db")
	v.SetDefault("metrics.port", 9100)
	v.SetDefault("shutdown.grace_ms", 5000)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	initial, err := decimal.NewFromString(v.GetString("price_feed.initial_price"))
	if err != nil {
		return Config{}, fmt.Errorf("config: price_feed.initial_price: %w", err)
	}
	vol, err := decimal.NewFromString(v.GetString("price_feed.volatility"))
	if err != nil {
		return Config{}, fmt.Errorf("config: price_feed.volatility: %w", err)
	}
	margin, err := decimal.NewFromString(v.GetString("risk.maintenance_margin_ratio"))
	if err != nil {
		return Config{}, fmt.Errorf("config: risk.maintenance_margin_ratio: %w", err)
	}

	cfg := Config{
		PriceFeedMode:          PriceFeedMode(v.GetString("price_feed.mode")),
		PriceFeedInitial:       initial,
		PriceFeedVolatility:    vol,
		PriceFeedSeed:          v.GetUint64("price_feed.seed"),
		PriceFeedSymbols:       v.GetStringSlice("price_feed.symbols"),
		PriceFeedTickInterval:  time.Duration(v.GetInt("price_feed.tick_interval_ms")) * time.Millisecond,
		PriceFeedURL:           v.GetString("price_feed.url"),
		MaintenanceMarginRatio: margin,
		StorePath:              v.GetString("store.path"),
		MetricsPort:            v.GetInt("metrics.port"),
		ShutdownGraceMs:        v.GetInt("shutdown.grace_ms"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.PriceFeedMode {
	case ModeSimulation, ModeExternal:
	default:
		return fmt.Errorf("config: unknown price_feed.mode %q", c.PriceFeedMode)
	}
	if c.PriceFeedMode == ModeExternal && c.PriceFeedURL == "" {
		return fmt.Errorf("config: price_feed.url required in external mode")
	}
	if len(c.PriceFeedSymbols) == 0 {
		return fmt.Errorf("config: price_feed.symbols must not be empty")
	}
	if c.StorePath == "" {
		return fmt.Errorf("config: store.path must not be empty")
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("config: metrics.port out of range: %d", c.MetricsPort)
	}
	if c.ShutdownGraceMs <= 0 {
		return fmt.Errorf("config: shutdown.grace_ms must be positive")
	}
	return nil
}

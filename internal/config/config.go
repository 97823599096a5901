// Package config defines the top-level configuration for the crossarb
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables.
type Config struct {
	Pair      PairConfig      `toml:"pair"`
	CEX       CEXConfig       `toml:"cex"`
	DEX       DEXConfig       `toml:"dex"`
	Redis     RedisConfig     `toml:"redis"`
	Feed      FeedConfig      `toml:"feed"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Notify    NotifyConfig    `toml:"notify"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Mode      string          `toml:"mode"` // "live" or "monitor"
	LogLevel  string          `toml:"log_level"`
}

// PairConfig identifies the single trading pair the engine operates on.
type PairConfig struct {
	Symbol     string `toml:"symbol"`      // e.g. "WETH/USDC"
	BaseAsset  string `toml:"base_asset"`  // e.g. "WETH"
	QuoteAsset string `toml:"quote_asset"` // e.g. "USDC"
}

// CEXConfig holds order-book exchange endpoints, credentials, and fees.
type CEXConfig struct {
	BaseURL   string `toml:"base_url"`
	WsURL     string `toml:"ws_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	// TakerFeePct is the only fee rate carried: the engine places market
	// orders exclusively, so the maker schedule never applies.
	TakerFeePct   float64 `toml:"taker_fee_pct"`
	StreamEnabled bool    `toml:"stream_enabled"`
}

// DEXConfig holds chain RPC, contract addresses, and wallet key material for
// the AMM venue.
type DEXConfig struct {
	RPCURL           string  `toml:"rpc_url"`
	ChainID          int64   `toml:"chain_id"`
	RouterAddress    string  `toml:"router_address"`
	PairAddress      string  `toml:"pair_address"`
	BaseTokenAddress string  `toml:"base_token_address"`
	QuoteTokenAddress string `toml:"quote_token_address"`
	BaseDecimals     int     `toml:"base_decimals"`
	QuoteDecimals    int     `toml:"quote_decimals"`
	SwapFeePct       float64 `toml:"swap_fee_pct"`
	GasEstimateUSD   float64 `toml:"gas_estimate_usd"`
	GasAsset         string  `toml:"gas_asset"`
	MinGasBalance    float64 `toml:"min_gas_balance"`

	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword     string `toml:"key_password"`
}

// RedisConfig holds Redis connection parameters. When Addr is empty the
// engine falls back to in-process cache and bus implementations.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// FeedConfig holds price-feed polling parameters.
type FeedConfig struct {
	PollInterval       duration `toml:"poll_interval"`
	StalenessThreshold duration `toml:"staleness_threshold"`
	// DEXSlipEstimatePct synthesizes bid/ask around the AMM mid price.
	DEXSlipEstimatePct float64 `toml:"dex_slip_estimate_pct"`
}

// ArbitrageConfig holds detection thresholds.
type ArbitrageConfig struct {
	MinSpreadPct       float64  `toml:"min_spread_pct"`
	MaxSpreadPct       float64  `toml:"max_spread_pct"`
	MinProfitThreshold float64  `toml:"min_profit_threshold"`
	MinTradeSize       float64  `toml:"min_trade_size"`
	MaxTradeSize       float64  `toml:"max_trade_size"`
	OpportunityTTL     duration `toml:"opportunity_ttl"`
}

// RiskConfig holds trade-rate, volume, and circuit-breaker limits.
type RiskConfig struct {
	MaxTradesPerHour  int      `toml:"max_trades_per_hour"`
	MaxDailyVolume    float64  `toml:"max_daily_volume"`
	MinProfitPct      float64  `toml:"min_profit_pct"`
	CooldownPeriod    duration `toml:"cooldown_period"`
	LotSize           float64  `toml:"lot_size"`
	MinNotional       float64  `toml:"min_notional"`
	BreakerThreshold  int      `toml:"breaker_threshold"`
	BreakerWindow     duration `toml:"breaker_window"`
}

// ExecutionConfig holds trade-pipeline timing parameters.
type ExecutionConfig struct {
	ScheduleInterval     duration `toml:"schedule_interval"`
	MinExecutionInterval duration `toml:"min_execution_interval"`
	FillPollInterval     duration `toml:"fill_poll_interval"`
	FillTimeout          duration `toml:"fill_timeout"`
	SlippageTolerance    float64  `toml:"slippage_tolerance"`
	HistorySize          int      `toml:"history_size"`
}

// StrategyConfig holds inventory-rebalancing parameters.
type StrategyConfig struct {
	Enabled             bool     `toml:"enabled"`
	Interval            duration `toml:"interval"`
	DivergenceSellPct   float64  `toml:"divergence_sell_pct"`   // sell high venue above this
	DivergenceSplitPct  float64  `toml:"divergence_split_pct"`  // split-sell band floor
	AccumulateQuoteShare float64 `toml:"accumulate_quote_share"` // accumulate below this share
	MinAmount           float64  `toml:"min_amount"`
	MaxAmount           float64  `toml:"max_amount"`
	MaxPortfolioPct     float64  `toml:"max_portfolio_pct"`
	ConfirmDelay        duration `toml:"confirm_delay"`
	MaxRetries          int      `toml:"max_retries"`
	RetryBackoff        duration `toml:"retry_backoff"`
	TrendSamples        int      `toml:"trend_samples"`
	TrendBandPct        float64  `toml:"trend_band_pct"`
}

// NotifyConfig holds alerting destinations.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// MonitorConfig seeds the virtual balances used in monitor mode. Live market
// data still drives prices; only order placement is simulated.
type MonitorConfig struct {
	CEXBase  float64 `toml:"cex_base"`
	CEXQuote float64 `toml:"cex_quote"`
	DEXBase  float64 `toml:"dex_base"`
	DEXQuote float64 `toml:"dex_quote"`
	Gas      float64 `toml:"gas"`
	// GasPerSwap is deducted from the gas balance on each simulated swap.
	GasPerSwap float64 `toml:"gas_per_swap"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5s" or "10m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Validate checks the configuration for internal consistency. It returns an
// error describing the first problem found.
func (c *Config) Validate() error {
	switch c.Mode {
	case "live", "monitor":
	default:
		return fmt.Errorf("config: mode must be \"live\" or \"monitor\", got %q", c.Mode)
	}
	if c.Pair.Symbol == "" || c.Pair.BaseAsset == "" || c.Pair.QuoteAsset == "" {
		return fmt.Errorf("config: pair symbol, base_asset, and quote_asset are required")
	}
	if c.Arbitrage.MinSpreadPct <= 0 {
		return fmt.Errorf("config: arbitrage.min_spread_pct must be positive")
	}
	if c.Arbitrage.MaxSpreadPct <= c.Arbitrage.MinSpreadPct {
		return fmt.Errorf("config: arbitrage.max_spread_pct must exceed min_spread_pct")
	}
	if c.Arbitrage.MaxTradeSize <= 0 {
		return fmt.Errorf("config: arbitrage.max_trade_size must be positive")
	}
	if c.Feed.PollInterval.Duration <= 0 {
		return fmt.Errorf("config: feed.poll_interval must be positive")
	}
	if c.Feed.StalenessThreshold.Duration <= 0 {
		return fmt.Errorf("config: feed.staleness_threshold must be positive")
	}
	if c.Execution.MinExecutionInterval.Duration <= 0 {
		return fmt.Errorf("config: execution.min_execution_interval must be positive")
	}
	if c.Execution.FillTimeout.Duration <= 0 {
		return fmt.Errorf("config: execution.fill_timeout must be positive")
	}
	if c.Mode == "live" {
		if c.CEX.APIKey == "" || c.CEX.APISecret == "" {
			return fmt.Errorf("config: cex api_key and api_secret are required in live mode")
		}
		if c.DEX.PrivateKey == "" && c.DEX.EncryptedKeyPath == "" {
			return fmt.Errorf("config: dex private_key or encrypted_key_path is required in live mode")
		}
		if !strings.HasPrefix(c.DEX.RPCURL, "http") && !strings.HasPrefix(c.DEX.RPCURL, "ws") {
			return fmt.Errorf("config: dex.rpc_url must be an http(s) or ws(s) URL")
		}
	}
	if c.Strategy.Enabled {
		if c.Strategy.MaxAmount < c.Strategy.MinAmount {
			return fmt.Errorf("config: strategy.max_amount must be >= min_amount")
		}
		if c.Strategy.MaxPortfolioPct <= 0 || c.Strategy.MaxPortfolioPct > 1 {
			return fmt.Errorf("config: strategy.max_portfolio_pct must be in (0,1]")
		}
	}
	return nil
}

// Monitoring reports whether the engine runs in simulation mode.
func (c *Config) Monitoring() bool { return c.Mode == "monitor" }

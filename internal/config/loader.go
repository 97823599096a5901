package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Pair ──
	setStr(&cfg.Pair.Symbol, "CROSSARB_PAIR_SYMBOL")
	setStr(&cfg.Pair.BaseAsset, "CROSSARB_PAIR_BASE_ASSET")
	setStr(&cfg.Pair.QuoteAsset, "CROSSARB_PAIR_QUOTE_ASSET")

	// ── CEX ──
	setStr(&cfg.CEX.BaseURL, "CROSSARB_CEX_BASE_URL")
	setStr(&cfg.CEX.WsURL, "CROSSARB_CEX_WS_URL")
	setStr(&cfg.CEX.APIKey, "CROSSARB_CEX_API_KEY")
	setStr(&cfg.CEX.APISecret, "CROSSARB_CEX_API_SECRET")
	setFloat64(&cfg.CEX.TakerFeePct, "CROSSARB_CEX_TAKER_FEE_PCT")
	setBool(&cfg.CEX.StreamEnabled, "CROSSARB_CEX_STREAM_ENABLED")

	// ── DEX ──
	setStr(&cfg.DEX.RPCURL, "CROSSARB_DEX_RPC_URL")
	setInt64(&cfg.DEX.ChainID, "CROSSARB_DEX_CHAIN_ID")
	setStr(&cfg.DEX.RouterAddress, "CROSSARB_DEX_ROUTER_ADDRESS")
	setStr(&cfg.DEX.PairAddress, "CROSSARB_DEX_PAIR_ADDRESS")
	setStr(&cfg.DEX.BaseTokenAddress, "CROSSARB_DEX_BASE_TOKEN_ADDRESS")
	setStr(&cfg.DEX.QuoteTokenAddress, "CROSSARB_DEX_QUOTE_TOKEN_ADDRESS")
	setFloat64(&cfg.DEX.SwapFeePct, "CROSSARB_DEX_SWAP_FEE_PCT")
	setFloat64(&cfg.DEX.GasEstimateUSD, "CROSSARB_DEX_GAS_ESTIMATE_USD")
	setFloat64(&cfg.DEX.MinGasBalance, "CROSSARB_DEX_MIN_GAS_BALANCE")
	setStr(&cfg.DEX.PrivateKey, "CROSSARB_DEX_PRIVATE_KEY")
	setStr(&cfg.DEX.EncryptedKeyPath, "CROSSARB_DEX_ENCRYPTED_KEY_PATH")
	setStr(&cfg.DEX.KeyPassword, "CROSSARB_DEX_KEY_PASSWORD")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")

	// ── Feed ──
	setDuration(&cfg.Feed.PollInterval, "CROSSARB_FEED_POLL_INTERVAL")
	setDuration(&cfg.Feed.StalenessThreshold, "CROSSARB_FEED_STALENESS_THRESHOLD")
	setFloat64(&cfg.Feed.DEXSlipEstimatePct, "CROSSARB_FEED_DEX_SLIP_ESTIMATE_PCT")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.MinSpreadPct, "CROSSARB_ARBITRAGE_MIN_SPREAD_PCT")
	setFloat64(&cfg.Arbitrage.MaxSpreadPct, "CROSSARB_ARBITRAGE_MAX_SPREAD_PCT")
	setFloat64(&cfg.Arbitrage.MinProfitThreshold, "CROSSARB_ARBITRAGE_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Arbitrage.MinTradeSize, "CROSSARB_ARBITRAGE_MIN_TRADE_SIZE")
	setFloat64(&cfg.Arbitrage.MaxTradeSize, "CROSSARB_ARBITRAGE_MAX_TRADE_SIZE")
	setDuration(&cfg.Arbitrage.OpportunityTTL, "CROSSARB_ARBITRAGE_OPPORTUNITY_TTL")

	// ── Risk ──
	setInt(&cfg.Risk.MaxTradesPerHour, "CROSSARB_RISK_MAX_TRADES_PER_HOUR")
	setFloat64(&cfg.Risk.MaxDailyVolume, "CROSSARB_RISK_MAX_DAILY_VOLUME")
	setFloat64(&cfg.Risk.MinProfitPct, "CROSSARB_RISK_MIN_PROFIT_PCT")
	setDuration(&cfg.Risk.CooldownPeriod, "CROSSARB_RISK_COOLDOWN_PERIOD")
	setInt(&cfg.Risk.BreakerThreshold, "CROSSARB_RISK_BREAKER_THRESHOLD")
	setDuration(&cfg.Risk.BreakerWindow, "CROSSARB_RISK_BREAKER_WINDOW")

	// ── Execution ──
	setDuration(&cfg.Execution.ScheduleInterval, "CROSSARB_EXECUTION_SCHEDULE_INTERVAL")
	setDuration(&cfg.Execution.MinExecutionInterval, "CROSSARB_EXECUTION_MIN_EXECUTION_INTERVAL")
	setDuration(&cfg.Execution.FillPollInterval, "CROSSARB_EXECUTION_FILL_POLL_INTERVAL")
	setDuration(&cfg.Execution.FillTimeout, "CROSSARB_EXECUTION_FILL_TIMEOUT")
	setFloat64(&cfg.Execution.SlippageTolerance, "CROSSARB_EXECUTION_SLIPPAGE_TOLERANCE")

	// ── Strategy ──
	setBool(&cfg.Strategy.Enabled, "CROSSARB_STRATEGY_ENABLED")
	setDuration(&cfg.Strategy.Interval, "CROSSARB_STRATEGY_INTERVAL")
	setFloat64(&cfg.Strategy.MinAmount, "CROSSARB_STRATEGY_MIN_AMOUNT")
	setFloat64(&cfg.Strategy.MaxAmount, "CROSSARB_STRATEGY_MAX_AMOUNT")
	setDuration(&cfg.Strategy.ConfirmDelay, "CROSSARB_STRATEGY_CONFIRM_DELAY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

package config

import "time"

// Defaults returns the built-in configuration. Load decodes the TOML file on
// top of these values, so the file only needs to state what differs.
func Defaults() Config {
	return Config{
		Pair: PairConfig{
			Symbol:     "WETH/USDC",
			BaseAsset:  "WETH",
			QuoteAsset: "USDC",
		},
		CEX: CEXConfig{
			BaseURL:     "https://api.exchange.example.com",
			TakerFeePct: 0.10,
		},
		DEX: DEXConfig{
			ChainID:        1,
			BaseDecimals:   18,
			QuoteDecimals:  6,
			SwapFeePct:     0.30,
			GasEstimateUSD: 4.0,
			GasAsset:       "ETH",
			MinGasBalance:  0.01,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
		},
		Feed: FeedConfig{
			PollInterval:       duration{5 * time.Second},
			StalenessThreshold: duration{10 * time.Second},
			DEXSlipEstimatePct: 0.20,
		},
		Arbitrage: ArbitrageConfig{
			MinSpreadPct:       1.0,
			MaxSpreadPct:       10.0,
			MinProfitThreshold: 0.5,
			MinTradeSize:       10,
			MaxTradeSize:       500,
			OpportunityTTL:     duration{30 * time.Second},
		},
		Risk: RiskConfig{
			MaxTradesPerHour: 10,
			MaxDailyVolume:   5000,
			MinProfitPct:     0.5,
			CooldownPeriod:   duration{60 * time.Second},
			LotSize:          1,
			MinNotional:      10,
			BreakerThreshold: 3,
			BreakerWindow:    duration{10 * time.Minute},
		},
		Execution: ExecutionConfig{
			ScheduleInterval:     duration{10 * time.Second},
			MinExecutionInterval: duration{3 * time.Second},
			FillPollInterval:     duration{1 * time.Second},
			FillTimeout:          duration{30 * time.Second},
			SlippageTolerance:    0.5,
			HistorySize:          256,
		},
		Strategy: StrategyConfig{
			Enabled:              true,
			Interval:             duration{60 * time.Second},
			DivergenceSellPct:    2.0,
			DivergenceSplitPct:   0.8,
			AccumulateQuoteShare: 0.20,
			MinAmount:            5,
			MaxAmount:            100,
			MaxPortfolioPct:      0.20,
			ConfirmDelay:         duration{5 * time.Second},
			MaxRetries:           3,
			RetryBackoff:         duration{2 * time.Second},
			TrendSamples:         5,
			TrendBandPct:         1.0,
		},
		Monitor: MonitorConfig{
			CEXBase:    10,
			CEXQuote:   10000,
			DEXBase:    10,
			DEXQuote:   10000,
			Gas:        1.0,
			GasPerSwap: 0.002,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sable-labs/crossarb/internal/bus"
	cachememory "github.com/sable-labs/crossarb/internal/cache/memory"
	cacheredis "github.com/sable-labs/crossarb/internal/cache/redis"
	"github.com/sable-labs/crossarb/internal/config"
	"github.com/sable-labs/crossarb/internal/coordinator"
	"github.com/sable-labs/crossarb/internal/crypto"
	"github.com/sable-labs/crossarb/internal/detector"
	"github.com/sable-labs/crossarb/internal/domain"
	"github.com/sable-labs/crossarb/internal/executor"
	"github.com/sable-labs/crossarb/internal/notify"
	"github.com/sable-labs/crossarb/internal/risk"
	"github.com/sable-labs/crossarb/internal/strategy"
	"github.com/sable-labs/crossarb/internal/venue/cex"
	"github.com/sable-labs/crossarb/internal/venue/dex"
	"github.com/sable-labs/crossarb/internal/venue/paper"
)

// Deps is the wired object graph behind one App.
type Deps struct {
	CEX      domain.CEXClient
	DEX      domain.DEXClient
	Cache    domain.QuoteCache
	EventBus domain.EventBus
	Clock    domain.Clock

	Detector *detector.Detector
	Holder   *detector.Holder
	Risk     *risk.Manager
	Coord    *coordinator.Coordinator
	Executor *executor.Executor
	History  *executor.History
	Strategy *strategy.Engine
	Notifier *notify.Notifier

	closers []func() error
}

// Close releases wired resources in reverse order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

// Wire builds the full dependency graph from configuration. Monitor mode
// wraps both venue clients in paper simulators seeded with virtual
// balances; live market data still flows through them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{Clock: domain.RealClock{}}

	if err := d.wireCacheAndBus(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := d.wireVenues(cfg); err != nil {
		d.Close()
		return nil, err
	}

	if cfg.Monitoring() {
		d.CEX = paper.NewCEX(d.CEX, cfg.CEX.TakerFeePct, domain.VenueBalances{
			cfg.Pair.BaseAsset:  {Asset: cfg.Pair.BaseAsset, Free: cfg.Monitor.CEXBase},
			cfg.Pair.QuoteAsset: {Asset: cfg.Pair.QuoteAsset, Free: cfg.Monitor.CEXQuote},
		})
		d.DEX = paper.NewDEX(d.DEX, cfg.DEX.GasAsset, cfg.Monitor.GasPerSwap, domain.VenueBalances{
			cfg.Pair.BaseAsset:  {Asset: cfg.Pair.BaseAsset, Free: cfg.Monitor.DEXBase},
			cfg.Pair.QuoteAsset: {Asset: cfg.Pair.QuoteAsset, Free: cfg.Monitor.DEXQuote},
			cfg.DEX.GasAsset:    {Asset: cfg.DEX.GasAsset, Free: cfg.Monitor.Gas},
		})
	}

	d.Detector = detector.New(detector.Config{
		MinSpreadPct:       cfg.Arbitrage.MinSpreadPct,
		MaxSpreadPct:       cfg.Arbitrage.MaxSpreadPct,
		MinProfitThreshold: cfg.Arbitrage.MinProfitThreshold,
		MinTradeSize:       cfg.Arbitrage.MinTradeSize,
		MaxTradeSize:       cfg.Arbitrage.MaxTradeSize,
		OpportunityTTL:     cfg.Arbitrage.OpportunityTTL.Duration,
		StalenessThreshold: cfg.Feed.StalenessThreshold.Duration,
		CEXTakerFeePct:     cfg.CEX.TakerFeePct,
		DEXSwapFeePct:      cfg.DEX.SwapFeePct,
		GasEstimateUSD:     cfg.DEX.GasEstimateUSD,
	}, d.Clock, logger)
	d.Holder = detector.NewHolder(d.EventBus, d.Clock, logger)

	breaker := risk.NewBreaker(cfg.Risk.BreakerThreshold, cfg.Risk.BreakerWindow.Duration, d.Clock, d.EventBus, logger)
	d.Risk = risk.NewManager(risk.Config{
		MaxTradesPerHour: cfg.Risk.MaxTradesPerHour,
		MaxDailyVolume:   cfg.Risk.MaxDailyVolume,
		MinProfitPct:     cfg.Risk.MinProfitPct,
		CooldownPeriod:   cfg.Risk.CooldownPeriod.Duration,
		LotSize:          cfg.Risk.LotSize,
		MinNotional:      cfg.Risk.MinNotional,
		MaxTradeSize:     cfg.Arbitrage.MaxTradeSize,
	}, breaker, d.Clock, d.EventBus, logger)

	d.Coord = coordinator.New(cfg.Execution.MinExecutionInterval.Duration, d.Clock, logger)
	d.History = executor.NewHistory(cfg.Execution.HistorySize)
	d.Executor = executor.New(executor.Config{
		Symbol:            cfg.Pair.Symbol,
		BaseAsset:         cfg.Pair.BaseAsset,
		QuoteAsset:        cfg.Pair.QuoteAsset,
		GasAsset:          cfg.DEX.GasAsset,
		MinGasBalance:     cfg.DEX.MinGasBalance,
		FillPollInterval:  cfg.Execution.FillPollInterval.Duration,
		FillTimeout:       cfg.Execution.FillTimeout.Duration,
		SlippageTolerance: cfg.Execution.SlippageTolerance,
	}, d.CEX, d.DEX, d.EventBus, d.Clock, d.History, logger)

	if cfg.Strategy.Enabled {
		trend := strategy.NewTrendTracker(cfg.Strategy.TrendSamples, cfg.Strategy.TrendBandPct)
		d.Strategy = strategy.NewEngine(strategy.Config{
			Symbol:               cfg.Pair.Symbol,
			BaseAsset:            cfg.Pair.BaseAsset,
			QuoteAsset:           cfg.Pair.QuoteAsset,
			DivergenceSellPct:    cfg.Strategy.DivergenceSellPct,
			DivergenceSplitPct:   cfg.Strategy.DivergenceSplitPct,
			AccumulateQuoteShare: cfg.Strategy.AccumulateQuoteShare,
			MinAmount:            cfg.Strategy.MinAmount,
			MaxAmount:            cfg.Strategy.MaxAmount,
			MaxPortfolioPct:      cfg.Strategy.MaxPortfolioPct,
			ConfirmDelay:         cfg.Strategy.ConfirmDelay.Duration,
			MaxRetries:           cfg.Strategy.MaxRetries,
			RetryBackoff:         cfg.Strategy.RetryBackoff.Duration,
			SlippageTolerance:    cfg.Execution.SlippageTolerance,
			Monitoring:           cfg.Monitoring(),
		}, d.CEX, d.DEX, d.Cache, d.Coord, trend, d.Clock, d.EventBus, logger)
	}

	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		sender := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		d.Notifier = notify.New(sender, d.EventBus, cfg.Notify.Events, logger)
	}

	return d, nil
}

// wireCacheAndBus picks Redis-backed implementations when an address is
// configured and in-process ones otherwise.
func (d *Deps) wireCacheAndBus(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Redis.Addr == "" {
		d.Cache = cachememory.NewQuoteCache()
		d.EventBus = bus.NewMemory(logger)
		return nil
	}
	client, err := cacheredis.New(ctx, cacheredis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("app: connect redis: %w", err)
	}
	d.closers = append(d.closers, client.Close)
	d.Cache = cacheredis.NewQuoteCache(client)
	d.EventBus = cacheredis.NewEventBus(client)
	return nil
}

// wireVenues builds the real venue clients. The DEX wallet key is only
// loaded in live mode; monitor mode reads the chain without signing.
func (d *Deps) wireVenues(cfg *config.Config) error {
	d.CEX = cex.NewClient(cfg.CEX.BaseURL, cfg.CEX.APIKey, cfg.CEX.APISecret)

	dexCfg := dex.ClientConfig{
		RPCURL:  cfg.DEX.RPCURL,
		ChainID: cfg.DEX.ChainID,
		Router:  cfg.DEX.RouterAddress,
		Pair:    cfg.DEX.PairAddress,
		Base: dex.Token{
			Symbol:   cfg.Pair.BaseAsset,
			Address:  dex.HexAddress(cfg.DEX.BaseTokenAddress),
			Decimals: cfg.DEX.BaseDecimals,
		},
		Quote: dex.Token{
			Symbol:   cfg.Pair.QuoteAsset,
			Address:  dex.HexAddress(cfg.DEX.QuoteTokenAddress),
			Decimals: cfg.DEX.QuoteDecimals,
		},
		GasAsset: cfg.DEX.GasAsset,
	}
	if !cfg.Monitoring() {
		key, err := crypto.LoadECDSAKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.DEX.PrivateKey,
			EncryptedKeyPath: cfg.DEX.EncryptedKeyPath,
			KeyPassword:      cfg.DEX.KeyPassword,
		})
		if err != nil {
			return fmt.Errorf("app: load dex wallet key: %w", err)
		}
		dexCfg.PrivateKey = key
	}

	dexClient, err := dex.NewClient(dexCfg)
	if err != nil {
		return fmt.Errorf("app: dial dex: %w", err)
	}
	d.closers = append(d.closers, func() error { dexClient.Close(); return nil })
	d.DEX = dexClient
	return nil
}

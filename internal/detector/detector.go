// Package detector derives arbitrage opportunities from one CEX quote and
// one DEX quote, and owns the single "current" opportunity with its expiry.
package detector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sable-labs/crossarb/internal/domain"
)

// Config holds detection thresholds and the fee model.
type Config struct {
	MinSpreadPct       float64
	MaxSpreadPct       float64
	MinProfitThreshold float64
	MinTradeSize       float64
	MaxTradeSize       float64
	OpportunityTTL     time.Duration
	StalenessThreshold time.Duration

	CEXTakerFeePct float64
	DEXSwapFeePct  float64
	GasEstimateUSD float64
}

// Detector evaluates quote pairs and classifies accepted opportunities.
type Detector struct {
	cfg    Config
	clock  domain.Clock
	logger *slog.Logger
}

// New creates a Detector.
func New(cfg Config, clock domain.Clock, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		clock:  clock,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Detect compares the two venue quotes and returns the best accepted
// directional opportunity, or nil when no direction clears the filters.
// It returns domain.ErrStalePrice when either quote is missing or older
// than the staleness threshold; callers must treat that as fatal to this
// detection cycle only.
func (d *Detector) Detect(cexQuote, dexQuote domain.Quote) (*domain.Opportunity, error) {
	now := d.clock.Now()

	for _, q := range []domain.Quote{cexQuote, dexQuote} {
		if q.Stale(now, d.cfg.StalenessThreshold) {
			return nil, fmt.Errorf("%w: %s quote is %s old (threshold %s)",
				domain.ErrStalePrice, q.Venue, q.Age(now).Round(time.Millisecond), d.cfg.StalenessThreshold)
		}
		if !q.Valid() {
			return nil, fmt.Errorf("%w: %s quote has bid %.6f ask %.6f",
				domain.ErrStalePrice, q.Venue, q.BidPrice, q.AskPrice)
		}
	}

	// Evaluate both directions using the buy venue's ask and the sell
	// venue's bid, the only two-sided prices actually achievable.
	buyCEX := d.evaluate(cexQuote, dexQuote, now)
	buyDEX := d.evaluate(dexQuote, cexQuote, now)

	best := buyCEX
	if best == nil || (buyDEX != nil && buyDEX.NetProfitPct > best.NetProfitPct) {
		best = buyDEX
	}
	if best == nil {
		return nil, nil
	}

	d.logger.Debug("opportunity candidate",
		slog.String("buy_venue", string(best.BuyVenue)),
		slog.String("sell_venue", string(best.SellVenue)),
		slog.Float64("spread_pct", best.SpreadPct),
		slog.Float64("net_profit_pct", best.NetProfitPct),
		slog.String("confidence", string(best.Confidence)),
	)
	return best, nil
}

// evaluate prices one direction: buy at buyQuote's ask, sell at sellQuote's
// bid. It returns nil when the direction fails any acceptance filter.
func (d *Detector) evaluate(buyQuote, sellQuote domain.Quote, now time.Time) *domain.Opportunity {
	buyPrice := buyQuote.AskPrice
	sellPrice := sellQuote.BidPrice
	if buyPrice <= 0 || sellPrice <= buyPrice {
		return nil
	}

	spreadPct := (sellPrice - buyPrice) / buyPrice * 100
	if spreadPct < d.cfg.MinSpreadPct {
		return nil
	}
	// A spread above the ceiling signals bad or zero-liquidity data, not
	// free money.
	if spreadPct > d.cfg.MaxSpreadPct {
		d.logger.Warn("spread above safety ceiling, rejecting",
			slog.Float64("spread_pct", spreadPct),
			slog.Float64("max_spread_pct", d.cfg.MaxSpreadPct),
		)
		return nil
	}

	size := d.maxTradeSize(buyQuote, sellQuote)
	if size < d.cfg.MinTradeSize {
		return nil
	}

	fees := d.feeBreakdown(buyQuote.Venue, size)
	netProfitPct := spreadPct - fees.TotalPct
	if netProfitPct < d.cfg.MinProfitThreshold {
		return nil
	}

	confidence := classifyConfidence(netProfitPct, spreadPct)
	riskLevel := classifyRisk(spreadPct, size)
	if confidence == domain.ConfidenceLow || riskLevel == domain.RiskHigh {
		return nil
	}

	return &domain.Opportunity{
		ID:           uuid.New().String(),
		Symbol:       buyQuote.Symbol,
		BuyVenue:     buyQuote.Venue,
		SellVenue:    sellQuote.Venue,
		BuyPrice:     buyPrice,
		SellPrice:    sellPrice,
		SpreadPct:    spreadPct,
		Fees:         fees,
		NetProfitPct: netProfitPct,
		MaxTradeSize: size,
		Confidence:   confidence,
		RiskLevel:    riskLevel,
		Timestamp:    now,
		ExpiresAt:    now.Add(d.cfg.OpportunityTTL),
	}
}

// maxTradeSize caps the configured maximum by available CEX liquidity: at
// most 1% of 24h quote volume when the order-book leg reports volume.
func (d *Detector) maxTradeSize(a, b domain.Quote) float64 {
	size := d.cfg.MaxTradeSize
	for _, q := range []domain.Quote{a, b} {
		if q.Venue == domain.VenueCEX && q.Volume > 0 {
			if cap := q.Volume * 0.01; cap < size {
				size = cap
			}
		}
	}
	return size
}

// feeBreakdown prices both legs plus estimated gas against the reference
// notional, so netProfitPct reflects what the sized trade would pay.
func (d *Detector) feeBreakdown(buyVenue domain.Venue, notional float64) domain.FeeBreakdown {
	fees := domain.FeeBreakdown{GasCostUSD: d.cfg.GasEstimateUSD}
	if buyVenue == domain.VenueCEX {
		fees.BuyFeePct = d.cfg.CEXTakerFeePct
		fees.SellFeePct = d.cfg.DEXSwapFeePct
	} else {
		fees.BuyFeePct = d.cfg.DEXSwapFeePct
		fees.SellFeePct = d.cfg.CEXTakerFeePct
	}
	gasPct := 0.0
	if notional > 0 {
		gasPct = fees.GasCostUSD / notional * 100
	}
	fees.TotalPct = fees.BuyFeePct + fees.SellFeePct + gasPct
	return fees
}

func classifyConfidence(netProfitPct, spreadPct float64) domain.Confidence {
	switch {
	case netProfitPct > 2 && spreadPct > 3:
		return domain.ConfidenceHigh
	case netProfitPct > 1 && spreadPct > 2:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func classifyRisk(spreadPct, size float64) domain.RiskLevel {
	switch {
	case spreadPct > 5 || size > 1000:
		return domain.RiskHigh
	case spreadPct > 2 || size > 500:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Package strategy rebalances inventory between the two venues: it watches
// price divergence and trend, decides when to shift base holdings into
// quote, and executes the resulting orders under the same execution lock as
// arbitrage trades.
package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sable-labs/crossarb/internal/coordinator"
	"github.com/sable-labs/crossarb/internal/domain"
)

// ActionType names a rebalancing decision.
type ActionType string

const (
	ActionWait       ActionType = "WAIT"
	ActionSellHigh   ActionType = "SELL_HIGH"
	ActionSplitSell  ActionType = "SPLIT_SELL"
	ActionAccumulate ActionType = "ACCUMULATE"
)

// Leg is one venue order inside a rebalancing plan. Rebalancing only ever
// sells base for quote; the arbitrage path is the only buyer of base.
type Leg struct {
	Venue  domain.Venue `json:"venue"`
	Amount float64      `json:"amount"`
}

// Plan is the outcome of one evaluation.
type Plan struct {
	Action ActionType `json:"action"`
	Legs   []Leg      `json:"legs,omitempty"`
	Reason string     `json:"reason"`
}

// Config holds the rebalancing policy parameters.
type Config struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	DivergenceSellPct    float64
	DivergenceSplitPct   float64
	AccumulateQuoteShare float64

	MinAmount       float64
	MaxAmount       float64
	MaxPortfolioPct float64

	ConfirmDelay time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	SlippageTolerance float64

	// Monitoring skips the confirm delay; simulated orders need no second
	// look at the market.
	Monitoring bool
}

// Engine evaluates the rebalancing policy on a fixed cadence.
type Engine struct {
	cfg      Config
	cex      domain.CEXClient
	dex      domain.DEXClient
	cache    domain.QuoteCache
	coord    *coordinator.Coordinator
	trend    *TrendTracker
	clock    domain.Clock
	eventBus domain.EventBus
	logger   *slog.Logger
}

// NewEngine creates the rebalancing engine.
func NewEngine(cfg Config, cex domain.CEXClient, dex domain.DEXClient, cache domain.QuoteCache, coord *coordinator.Coordinator, trend *TrendTracker, clock domain.Clock, eventBus domain.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		cex:      cex,
		dex:      dex,
		cache:    cache,
		coord:    coord,
		trend:    trend,
		clock:    clock,
		eventBus: eventBus,
		logger:   logger.With(slog.String("component", "strategy")),
	}
}

// Run evaluates the policy every interval until the context ends.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Evaluate(ctx); err != nil {
				e.logger.Warn("evaluation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Evaluate runs one decision cycle: snapshot prices and balances, decide,
// confirm, and execute. A WAIT decision is not an error.
func (e *Engine) Evaluate(ctx context.Context) error {
	cexQuote, dexQuote, err := e.quotes(ctx)
	if err != nil {
		return err
	}
	e.trend.Observe(cexQuote.MidPrice())

	snap, err := SnapshotPortfolio(ctx, e.cex, e.dex, e.clock, e.cfg.BaseAsset, e.cfg.QuoteAsset, cexQuote.MidPrice())
	if err != nil {
		return err
	}

	plan := e.decide(cexQuote, dexQuote, snap)
	if plan.Action == ActionWait {
		e.logger.Debug("holding", slog.String("reason", plan.Reason))
		return nil
	}
	e.logger.Info("rebalance planned",
		slog.String("action", string(plan.Action)),
		slog.String("reason", plan.Reason),
		slog.Int("legs", len(plan.Legs)),
	)

	if !e.cfg.Monitoring && e.cfg.ConfirmDelay > 0 {
		if err := e.clock.Sleep(ctx, e.cfg.ConfirmDelay); err != nil {
			return err
		}
		cexQuote, dexQuote, err = e.quotes(ctx)
		if err != nil {
			return err
		}
		confirm := e.decide(cexQuote, dexQuote, snap)
		if confirm.Action != plan.Action {
			e.logger.Info("rebalance abandoned after confirm delay",
				slog.String("planned", string(plan.Action)),
				slog.String("now", string(confirm.Action)),
			)
			return nil
		}
		plan = confirm
	}

	id := "rebalance-" + uuid.NewString()
	err = e.coord.RunExclusive(ctx, id, func(ctx context.Context) error {
		return e.execute(ctx, plan)
	})
	if errors.Is(err, domain.ErrLockHeld) || errors.Is(err, coordinator.ErrThrottled) {
		e.logger.Info("rebalance yielded to active execution", slog.String("id", id))
		return nil
	}
	return err
}

// quotes loads the latest quote from each venue, rejecting missing data.
func (e *Engine) quotes(ctx context.Context) (cexQuote, dexQuote domain.Quote, err error) {
	cexQuote, err = e.cache.GetQuote(ctx, domain.VenueCEX)
	if err != nil {
		return cexQuote, dexQuote, fmt.Errorf("strategy: cex quote: %w", err)
	}
	dexQuote, err = e.cache.GetQuote(ctx, domain.VenueDEX)
	if err != nil {
		return cexQuote, dexQuote, fmt.Errorf("strategy: dex quote: %w", err)
	}
	if !cexQuote.Valid() || !dexQuote.Valid() {
		return cexQuote, dexQuote, fmt.Errorf("strategy: invalid quote: %w", domain.ErrStalePrice)
	}
	return cexQuote, dexQuote, nil
}

// decide applies the policy against fresh prices and the balance snapshot.
func (e *Engine) decide(cexQuote, dexQuote domain.Quote, snap domain.PortfolioSnapshot) Plan {
	cexMid, dexMid := cexQuote.MidPrice(), dexQuote.MidPrice()
	low := math.Min(cexMid, dexMid)
	if low <= 0 {
		return Plan{Action: ActionWait, Reason: "no usable prices"}
	}
	divergence := math.Abs(cexMid-dexMid) / low * 100

	high := domain.VenueCEX
	if dexMid > cexMid {
		high = domain.VenueDEX
	}

	switch {
	case divergence > e.cfg.DivergenceSellPct:
		amount := e.gate(snap, high, e.cfg.MaxPortfolioPct*snap.TotalBase)
		if amount == 0 {
			return Plan{Action: ActionWait, Reason: "divergence sell below minimum size"}
		}
		return Plan{
			Action: ActionSellHigh,
			Legs:   []Leg{{Venue: high, Amount: amount}},
			Reason: fmt.Sprintf("divergence %.2f%% above %.2f%%", divergence, e.cfg.DivergenceSellPct),
		}

	case divergence > e.cfg.DivergenceSplitPct:
		// Weight the split toward the better price.
		total := e.cfg.MaxPortfolioPct * snap.TotalBase / 2
		cexShare := cexMid / (cexMid + dexMid)
		legs := make([]Leg, 0, 2)
		if a := e.gate(snap, domain.VenueCEX, total*cexShare); a > 0 {
			legs = append(legs, Leg{Venue: domain.VenueCEX, Amount: a})
		}
		if a := e.gate(snap, domain.VenueDEX, total*(1-cexShare)); a > 0 {
			legs = append(legs, Leg{Venue: domain.VenueDEX, Amount: a})
		}
		if len(legs) == 0 {
			return Plan{Action: ActionWait, Reason: "split sell below minimum size"}
		}
		return Plan{
			Action: ActionSplitSell,
			Legs:   legs,
			Reason: fmt.Sprintf("divergence %.2f%% in split band", divergence),
		}

	case e.trend.Direction() == TrendRising && snap.QuoteShare() < e.cfg.AccumulateQuoteShare:
		amount := e.gate(snap, high, e.cfg.MaxPortfolioPct*snap.TotalBase/2)
		if amount == 0 {
			return Plan{Action: ActionWait, Reason: "accumulation below minimum size"}
		}
		return Plan{
			Action: ActionAccumulate,
			Legs:   []Leg{{Venue: high, Amount: amount}},
			Reason: fmt.Sprintf("rising trend with quote share %.2f below %.2f", snap.QuoteShare(), e.cfg.AccumulateQuoteShare),
		}
	}
	return Plan{Action: ActionWait, Reason: "no trigger"}
}

// gate clamps a proposed base amount to the size limits and the venue's
// available balance. It returns 0 when the clamped amount is below the
// minimum.
func (e *Engine) gate(snap domain.PortfolioSnapshot, venue domain.Venue, proposed float64) float64 {
	amount := math.Min(proposed, e.cfg.MaxAmount)
	amount = math.Min(amount, snap.BaseOn(venue, e.cfg.BaseAsset))
	if amount < e.cfg.MinAmount {
		return 0
	}
	return amount
}

// execute places every leg of the plan, retrying transient failures with a
// fixed backoff. A leg that exhausts its retries fails the whole plan.
func (e *Engine) execute(ctx context.Context, plan Plan) error {
	for _, leg := range plan.Legs {
		if err := e.retry(ctx, func(ctx context.Context) error {
			return e.sell(ctx, leg)
		}); err != nil {
			return fmt.Errorf("strategy: %s leg on %s: %w", plan.Action, leg.Venue, err)
		}
	}
	e.publishResult(ctx, plan)
	return nil
}

func (e *Engine) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	attempts := e.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		e.logger.Warn("rebalance leg attempt failed",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()),
		)
		if i < attempts-1 {
			if serr := e.clock.Sleep(ctx, e.cfg.RetryBackoff); serr != nil {
				return serr
			}
		}
	}
	return err
}

func (e *Engine) sell(ctx context.Context, leg Leg) error {
	switch leg.Venue {
	case domain.VenueCEX:
		order, err := e.cex.PlaceOrder(ctx, e.cfg.Symbol, domain.SideSell, "MARKET", leg.Amount, 0)
		if err != nil {
			return err
		}
		e.logger.Info("rebalance sold on cex",
			slog.String("order_id", order.ID),
			slog.Float64("amount", leg.Amount),
		)
		return nil
	case domain.VenueDEX:
		_, minOut, err := e.dex.Quote(ctx, e.cfg.BaseAsset, e.cfg.QuoteAsset, leg.Amount, e.cfg.SlippageTolerance)
		if err != nil {
			return err
		}
		result, err := e.dex.Swap(ctx, e.cfg.BaseAsset, e.cfg.QuoteAsset, leg.Amount, minOut)
		if err != nil {
			return err
		}
		e.logger.Info("rebalance sold on dex",
			slog.String("tx_hash", result.TxHash),
			slog.Float64("amount", leg.Amount),
		)
		return nil
	}
	return fmt.Errorf("unknown venue %q: %w", leg.Venue, domain.ErrInvalidOrder)
}

func (e *Engine) publishResult(ctx context.Context, plan Plan) {
	payload, err := json.Marshal(plan)
	if err != nil {
		return
	}
	if err := e.eventBus.Publish(ctx, domain.TopicSystemStatus, payload); err != nil {
		e.logger.Warn("rebalance event publish failed", slog.String("error", err.Error()))
	}
}

// Package executor runs approved opportunities as two sequential legs, one
// per venue, and owns the trade lifecycle state machine.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sable-labs/crossarb/internal/domain"
)

// Config holds the execution parameters for one trading pair.
type Config struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	// GasAsset and MinGasBalance guard DEX legs: a swap is never attempted
	// when the wallet's native balance is below the floor.
	GasAsset      string
	MinGasBalance float64

	FillPollInterval  time.Duration
	FillTimeout       time.Duration
	SlippageTolerance float64
}

// Executor places the buy leg, waits for the fill, then places the sell leg
// for the filled quantity. Legs are strictly sequential. A first-leg failure
// aborts cleanly; a second-leg failure after a filled first leg marks the
// trade Unreconciled and leaves the inventory imbalance to manual handling.
type Executor struct {
	cfg      Config
	cex      domain.CEXClient
	dex      domain.DEXClient
	eventBus domain.EventBus
	clock    domain.Clock
	history  *History
	logger   *slog.Logger

	mu          sync.Mutex
	active      *domain.Trade
	openOrderID string
	cancelled   bool
}

// New creates an Executor.
func New(cfg Config, cex domain.CEXClient, dex domain.DEXClient, eventBus domain.EventBus, clock domain.Clock, history *History, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:      cfg,
		cex:      cex,
		dex:      dex,
		eventBus: eventBus,
		clock:    clock,
		history:  history,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// Execute runs one trade for the opportunity at the given base amount. The
// returned Trade is always non-nil and terminal; the error mirrors the
// trade's failure reason when the trade did not complete.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, amount float64) (*domain.Trade, error) {
	start := e.clock.Now()
	trade := &domain.Trade{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		Symbol:        opp.Symbol,
		Amount:        amount,
		Status:        domain.TradePending,
		CreatedAt:     start,
	}

	e.mu.Lock()
	e.active = trade
	e.openOrderID = ""
	e.cancelled = false
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active = nil
		e.openOrderID = ""
		e.mu.Unlock()
	}()

	e.logger.Info("trade started",
		slog.String("trade_id", trade.ID),
		slog.String("opportunity_id", opp.ID),
		slog.String("buy_venue", string(opp.BuyVenue)),
		slog.String("sell_venue", string(opp.SellVenue)),
		slog.Float64("amount", amount),
	)
	e.publishTrade(ctx, domain.TopicTradeStarted, trade)

	if err := e.precheck(ctx, opp, amount); err != nil {
		return e.fail(ctx, trade, fmt.Errorf("executor: balance precheck: %w", err))
	}

	trade.Status = domain.TradeExecuting

	var err error
	if opp.BuyVenue == domain.VenueCEX {
		err = e.runCEXThenDEX(ctx, trade, opp, amount)
	} else {
		err = e.runDEXThenCEX(ctx, trade, opp, amount)
	}
	if err != nil {
		if errors.Is(err, errTradeCancelled) {
			return e.cancel(ctx, trade, err)
		}
		return e.fail(ctx, trade, err)
	}

	e.settle(trade)
	trade.Status = domain.TradeCompleted
	trade.CompletedAt = e.clock.Now()
	trade.ExecutionTime = trade.CompletedAt.Sub(start)
	e.history.Add(trade)
	e.logger.Info("trade completed",
		slog.String("trade_id", trade.ID),
		slog.Float64("net_profit", trade.NetProfit),
		slog.Duration("execution_time", trade.ExecutionTime),
	)
	e.publishTrade(ctx, domain.TopicTradeCompleted, trade)
	return trade, nil
}

// Cancel requests cancellation of the active trade. Only an executing trade
// with an open CEX order that has not yet filled can be cancelled; a DEX leg
// in flight is not interruptible.
func (e *Executor) Cancel(ctx context.Context, tradeID string) error {
	e.mu.Lock()
	if e.active == nil || e.active.ID != tradeID {
		e.mu.Unlock()
		return fmt.Errorf("executor: cancel %s: %w", tradeID, domain.ErrNotFound)
	}
	e.cancelled = true
	orderID := e.openOrderID
	e.mu.Unlock()

	if orderID == "" {
		return nil
	}
	if err := e.cex.CancelOrder(ctx, e.cfg.Symbol, orderID); err != nil {
		return fmt.Errorf("executor: cancel %s: %w", tradeID, err)
	}
	return nil
}

// Active returns the in-flight trade, or nil.
func (e *Executor) Active() *domain.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return nil
	}
	copied := *e.active
	return &copied
}

var errTradeCancelled = errors.New("trade cancelled")

// precheck verifies that both venues hold enough inventory before any order
// is placed. A shortfall aborts the trade with ErrInsufficientBalance and no
// side effects on either venue.
func (e *Executor) precheck(ctx context.Context, opp domain.Opportunity, amount float64) error {
	if opp.BuyVenue == domain.VenueCEX {
		if err := e.checkCEX(ctx, e.cfg.QuoteAsset, amount*opp.BuyPrice); err != nil {
			return err
		}
		if err := e.checkDEX(ctx, e.cfg.BaseAsset, amount); err != nil {
			return err
		}
	} else {
		if err := e.checkDEX(ctx, e.cfg.QuoteAsset, amount*opp.BuyPrice); err != nil {
			return err
		}
		if err := e.checkCEX(ctx, e.cfg.BaseAsset, amount); err != nil {
			return err
		}
	}
	return e.checkGas(ctx)
}

func (e *Executor) checkCEX(ctx context.Context, asset string, need float64) error {
	balances, err := e.cex.GetBalances(ctx)
	if err != nil {
		return err
	}
	have := balances[asset].Free
	if have < need {
		return fmt.Errorf("%w: cex %s %.6f < %.6f", domain.ErrInsufficientBalance, asset, have, need)
	}
	return nil
}

func (e *Executor) checkDEX(ctx context.Context, asset string, need float64) error {
	have, err := e.dex.GetBalance(ctx, asset)
	if err != nil {
		return err
	}
	if have < need {
		return fmt.Errorf("%w: dex %s %.6f < %.6f", domain.ErrInsufficientBalance, asset, have, need)
	}
	return nil
}

func (e *Executor) checkGas(ctx context.Context) error {
	gas, err := e.dex.GetBalance(ctx, e.cfg.GasAsset)
	if err != nil {
		return err
	}
	if gas < e.cfg.MinGasBalance {
		return fmt.Errorf("%w: gas %s %.6f < %.6f", domain.ErrInsufficientBalance, e.cfg.GasAsset, gas, e.cfg.MinGasBalance)
	}
	return nil
}

// runCEXThenDEX buys on the CEX book, then sells the filled quantity into
// the AMM pool.
func (e *Executor) runCEXThenDEX(ctx context.Context, trade *domain.Trade, opp domain.Opportunity, amount float64) error {
	leg, err := e.cexLeg(ctx, domain.SideBuy, amount)
	if err != nil {
		return fmt.Errorf("executor: buy leg (cex): %w", err)
	}
	trade.BuyLeg = leg

	sell, err := e.dexLeg(ctx, domain.SideSell, leg.FilledQty)
	if err != nil {
		trade.Unreconciled = true
		e.publishTrade(ctx, domain.TopicTradeUnreconciled, trade)
		return fmt.Errorf("executor: sell leg (dex) after filled buy: %w", err)
	}
	trade.SellLeg = sell
	return nil
}

// runDEXThenCEX buys from the AMM pool, then sells the swap output on the
// CEX book.
func (e *Executor) runDEXThenCEX(ctx context.Context, trade *domain.Trade, opp domain.Opportunity, amount float64) error {
	leg, err := e.dexLeg(ctx, domain.SideBuy, amount*opp.BuyPrice)
	if err != nil {
		return fmt.Errorf("executor: buy leg (dex): %w", err)
	}
	trade.BuyLeg = leg

	sell, err := e.cexLeg(ctx, domain.SideSell, leg.FilledQty)
	if err != nil {
		trade.Unreconciled = true
		e.publishTrade(ctx, domain.TopicTradeUnreconciled, trade)
		return fmt.Errorf("executor: sell leg (cex) after filled buy: %w", err)
	}
	trade.SellLeg = sell
	return nil
}

// cexLeg places a market order and polls until the exchange reports a final
// status or the fill timeout elapses. A timed-out order is cancelled best
// effort before the leg fails.
func (e *Executor) cexLeg(ctx context.Context, side domain.OrderSide, qty float64) (*domain.TradeLeg, error) {
	started := e.clock.Now()
	order, err := e.cex.PlaceOrder(ctx, e.cfg.Symbol, side, "MARKET", qty, 0)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.openOrderID = order.ID
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.openOrderID = ""
		e.mu.Unlock()
	}()

	deadline := started.Add(e.cfg.FillTimeout)
	for !order.Status.Final() {
		if e.cancelRequested() {
			return nil, fmt.Errorf("%w: order %s", errTradeCancelled, order.ID)
		}
		if !e.clock.Now().Before(deadline) {
			if cerr := e.cex.CancelOrder(ctx, e.cfg.Symbol, order.ID); cerr != nil {
				e.logger.Warn("cancel after fill timeout failed",
					slog.String("order_id", order.ID),
					slog.String("error", cerr.Error()),
				)
			}
			return nil, fmt.Errorf("order %s not filled within %s: %w", order.ID, e.cfg.FillTimeout, domain.ErrExecutionTimeout)
		}
		if err := e.clock.Sleep(ctx, e.cfg.FillPollInterval); err != nil {
			return nil, err
		}
		order, err = e.cex.GetOrder(ctx, e.cfg.Symbol, order.ID)
		if err != nil {
			return nil, err
		}
	}
	if order.Status != domain.OrderStatusFilled {
		if e.cancelRequested() && order.Status == domain.OrderStatusCanceled {
			return nil, fmt.Errorf("%w: order %s", errTradeCancelled, order.ID)
		}
		return nil, fmt.Errorf("order %s ended %s: %w", order.ID, order.Status, domain.ErrInvalidOrder)
	}

	return &domain.TradeLeg{
		Venue:       domain.VenueCEX,
		Side:        side,
		OrderID:     order.ID,
		Price:       order.AvgPrice,
		FilledQty:   order.FilledQty,
		FeeUSD:      order.FeeUSD,
		StartedAt:   started,
		CompletedAt: e.clock.Now(),
	}, nil
}

// dexLeg swaps amountIn through the pool with a slippage-bounded minimum
// out. Side determines direction: a buy spends quote for base, a sell
// spends base for quote. FilledQty is the amount received.
func (e *Executor) dexLeg(ctx context.Context, side domain.OrderSide, amountIn float64) (*domain.TradeLeg, error) {
	started := e.clock.Now()
	tokenIn, tokenOut := e.cfg.BaseAsset, e.cfg.QuoteAsset
	if side == domain.SideBuy {
		tokenIn, tokenOut = e.cfg.QuoteAsset, e.cfg.BaseAsset
	}

	_, minOut, err := e.dex.Quote(ctx, tokenIn, tokenOut, amountIn, e.cfg.SlippageTolerance)
	if err != nil {
		return nil, err
	}
	result, err := e.dex.Swap(ctx, tokenIn, tokenOut, amountIn, minOut)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("swap %s reverted: %w", result.TxHash, domain.ErrInvalidOrder)
	}

	price := 0.0
	if side == domain.SideBuy {
		if result.AmountOut > 0 {
			price = amountIn / result.AmountOut
		}
	} else if amountIn > 0 {
		price = result.AmountOut / amountIn
	}

	return &domain.TradeLeg{
		Venue:       domain.VenueDEX,
		Side:        side,
		TxHash:      result.TxHash,
		Price:       price,
		FilledQty:   result.AmountOut,
		FeeUSD:      result.GasUsed,
		StartedAt:   started,
		CompletedAt: e.clock.Now(),
	}, nil
}

// settle computes realized economics from actual fills. Proceeds and cost
// are both in quote terms regardless of leg ordering.
func (e *Executor) settle(trade *domain.Trade) {
	buy, sell := trade.BuyLeg, trade.SellLeg
	if buy == nil || sell == nil {
		return
	}
	var cost, proceeds float64
	if buy.Venue == domain.VenueCEX {
		cost = buy.FilledQty * buy.Price
		proceeds = sell.FilledQty
	} else {
		cost = buy.FilledQty * buy.Price
		proceeds = sell.FilledQty * sell.Price
	}
	trade.TotalProfit = proceeds - cost
	trade.TotalFees = buy.FeeUSD + sell.FeeUSD
	trade.NetProfit = trade.TotalProfit - trade.TotalFees
}

func (e *Executor) cancelRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *Executor) fail(ctx context.Context, trade *domain.Trade, err error) (*domain.Trade, error) {
	trade.Status = domain.TradeFailed
	trade.Error = err.Error()
	trade.CompletedAt = e.clock.Now()
	trade.ExecutionTime = trade.CompletedAt.Sub(trade.CreatedAt)
	e.history.Add(trade)
	e.logger.Error("trade failed",
		slog.String("trade_id", trade.ID),
		slog.Bool("unreconciled", trade.Unreconciled),
		slog.String("error", err.Error()),
	)
	e.publishTrade(ctx, domain.TopicTradeFailed, trade)
	return trade, err
}

func (e *Executor) cancel(ctx context.Context, trade *domain.Trade, err error) (*domain.Trade, error) {
	trade.Status = domain.TradeCancelled
	trade.Error = err.Error()
	trade.CompletedAt = e.clock.Now()
	trade.ExecutionTime = trade.CompletedAt.Sub(trade.CreatedAt)
	e.history.Add(trade)
	e.logger.Info("trade cancelled", slog.String("trade_id", trade.ID))
	e.publishTrade(ctx, domain.TopicTradeFailed, trade)
	return trade, err
}

func (e *Executor) publishTrade(ctx context.Context, topic string, trade *domain.Trade) {
	payload, err := json.Marshal(trade)
	if err != nil {
		return
	}
	if err := e.eventBus.Publish(ctx, topic, payload); err != nil {
		e.logger.Warn("trade event publish failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}

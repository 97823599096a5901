// Package paper provides monitoring-mode wrappers for both venue clients.
// Market-data reads pass through to the real client; order placement and
// swaps become in-memory simulations that mutate a virtual balance sheet
// and return synthetic fills, so the rest of the engine runs identically.
package paper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sable-labs/crossarb/internal/domain"
)

// MarketData is the read-only subset of the CEX client the paper wrapper
// delegates to.
type MarketData interface {
	GetTicker(ctx context.Context, symbol string) (price, volume float64, err error)
	GetBookTicker(ctx context.Context, symbol string) (bid, ask float64, err error)
}

// CEX simulates the order-book venue on top of live market data.
type CEX struct {
	md       MarketData
	feePct   float64
	mu       sync.Mutex
	balances domain.VenueBalances
	orders   map[string]domain.Order
	nextID   int64
}

// NewCEX creates a paper CEX wrapper seeded with the given virtual balances.
func NewCEX(md MarketData, takerFeePct float64, seed domain.VenueBalances) *CEX {
	balances := make(domain.VenueBalances, len(seed))
	for k, v := range seed {
		balances[k] = v
	}
	return &CEX{
		md:       md,
		feePct:   takerFeePct,
		balances: balances,
		orders:   make(map[string]domain.Order),
	}
}

// GetTicker passes through to the live market data source.
func (c *CEX) GetTicker(ctx context.Context, symbol string) (float64, float64, error) {
	return c.md.GetTicker(ctx, symbol)
}

// GetBookTicker passes through to the live market data source.
func (c *CEX) GetBookTicker(ctx context.Context, symbol string) (float64, float64, error) {
	return c.md.GetBookTicker(ctx, symbol)
}

// PlaceOrder fills a simulated market order instantly at the current best
// bid or ask and mutates the virtual balances.
func (c *CEX) PlaceOrder(ctx context.Context, symbol string, side domain.OrderSide, typ string, qty, price float64) (domain.Order, error) {
	if qty <= 0 {
		return domain.Order{}, domain.NewVenueError("paper_cex", "place_order", domain.ErrInvalidOrder)
	}
	bid, ask, err := c.md.GetBookTicker(ctx, symbol)
	if err != nil {
		return domain.Order{}, err
	}

	fillPrice := ask
	if side == domain.SideSell {
		fillPrice = bid
	}
	base, quote := splitSymbol(symbol)
	notional := fillPrice * qty
	fee := notional * c.feePct / 100

	c.mu.Lock()
	defer c.mu.Unlock()

	switch side {
	case domain.SideBuy:
		if c.balances[quote].Free < notional+fee {
			return domain.Order{}, fmt.Errorf("paper_cex: %w: need %.4f %s, have %.4f",
				domain.ErrInsufficientBalance, notional+fee, quote, c.balances[quote].Free)
		}
		c.credit(quote, -(notional + fee))
		c.credit(base, qty)
	case domain.SideSell:
		if c.balances[base].Free < qty {
			return domain.Order{}, fmt.Errorf("paper_cex: %w: need %.4f %s, have %.4f",
				domain.ErrInsufficientBalance, qty, base, c.balances[base].Free)
		}
		c.credit(base, -qty)
		c.credit(quote, notional-fee)
	default:
		return domain.Order{}, domain.NewVenueError("paper_cex", "place_order", domain.ErrInvalidOrder)
	}

	c.nextID++
	order := domain.Order{
		ID:        strconv.FormatInt(c.nextID, 10),
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Status:    domain.OrderStatusFilled,
		Quantity:  qty,
		FilledQty: qty,
		AvgPrice:  fillPrice,
		FeeUSD:    fee,
	}
	c.orders[order.ID] = order
	return order, nil
}

// GetOrder returns a previously simulated order.
func (c *CEX) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("paper_cex: order %s: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

// CancelOrder cancels a simulated order. Market orders fill instantly, so
// this only succeeds for orders that are somehow still open.
func (c *CEX) CancelOrder(ctx context.Context, symbol, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[orderID]
	if !ok {
		return fmt.Errorf("paper_cex: order %s: %w", orderID, domain.ErrNotFound)
	}
	if order.Status.Final() {
		return fmt.Errorf("paper_cex: order %s already %s", orderID, order.Status)
	}
	order.Status = domain.OrderStatusCanceled
	c.orders[orderID] = order
	return nil
}

// GetBalances returns a copy of the virtual balances.
func (c *CEX) GetBalances(ctx context.Context) (domain.VenueBalances, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(domain.VenueBalances, len(c.balances))
	for k, v := range c.balances {
		out[k] = v
	}
	return out, nil
}

// credit adjusts an asset's free balance by delta.
func (c *CEX) credit(asset string, delta float64) {
	b := c.balances[asset]
	b.Asset = asset
	b.Free += delta
	c.balances[asset] = b
}

// splitSymbol splits "BASE/QUOTE" into its two assets.
func splitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return symbol, ""
	}
	return parts[0], parts[1]
}

// Compile-time interface check.
var _ domain.CEXClient = (*CEX)(nil)

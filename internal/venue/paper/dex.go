package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sable-labs/crossarb/internal/domain"
)

// PoolData is the read-only subset of the DEX client the paper wrapper
// delegates to.
type PoolData interface {
	GetReserves(ctx context.Context) (reserveBase, reserveQuote float64, err error)
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn, slippage float64) (expectedOut, minOut float64, err error)
}

// DEX simulates the AMM venue on top of live pool data.
type DEX struct {
	pool       PoolData
	gasAsset   string
	gasPerSwap float64
	mu         sync.Mutex
	balances   domain.VenueBalances
}

// NewDEX creates a paper DEX wrapper seeded with the given virtual balances.
// gasPerSwap is deducted from the gas asset on every simulated swap.
func NewDEX(pool PoolData, gasAsset string, gasPerSwap float64, seed domain.VenueBalances) *DEX {
	balances := make(domain.VenueBalances, len(seed))
	for k, v := range seed {
		balances[k] = v
	}
	return &DEX{
		pool:       pool,
		gasAsset:   gasAsset,
		gasPerSwap: gasPerSwap,
		balances:   balances,
	}
}

// GetReserves passes through to the live pool.
func (d *DEX) GetReserves(ctx context.Context) (float64, float64, error) {
	return d.pool.GetReserves(ctx)
}

// Quote passes through to the live pool.
func (d *DEX) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn, slippage float64) (float64, float64, error) {
	return d.pool.Quote(ctx, tokenIn, tokenOut, amountIn, slippage)
}

// Swap simulates a swap at the live expected output, mutating the virtual
// balances and charging simulated gas.
func (d *DEX) Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, minOut float64) (domain.SwapResult, error) {
	expected, _, err := d.pool.Quote(ctx, tokenIn, tokenOut, amountIn, 0)
	if err != nil {
		return domain.SwapResult{}, err
	}
	if expected < minOut {
		return domain.SwapResult{Success: false}, domain.NewVenueError("paper_dex", "swap",
			fmt.Errorf("expected out %.6f below minimum %.6f", expected, minOut))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.balances[tokenIn].Free < amountIn {
		return domain.SwapResult{}, fmt.Errorf("paper_dex: %w: need %.6f %s, have %.6f",
			domain.ErrInsufficientBalance, amountIn, tokenIn, d.balances[tokenIn].Free)
	}
	if d.balances[d.gasAsset].Free < d.gasPerSwap {
		return domain.SwapResult{}, fmt.Errorf("paper_dex: %w: gas asset %s below %.6f",
			domain.ErrInsufficientBalance, d.gasAsset, d.gasPerSwap)
	}

	d.credit(tokenIn, -amountIn)
	d.credit(tokenOut, expected)
	d.credit(d.gasAsset, -d.gasPerSwap)

	return domain.SwapResult{
		TxHash:    "sim-" + uuid.New().String(),
		AmountOut: expected,
		GasUsed:   d.gasPerSwap,
		Success:   true,
	}, nil
}

// GetBalance returns the virtual balance of a token.
func (d *DEX) GetBalance(ctx context.Context, token string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if token == "" {
		token = d.gasAsset
	}
	return d.balances[token].Free, nil
}

// credit adjusts an asset's free balance by delta.
func (d *DEX) credit(asset string, delta float64) {
	b := d.balances[asset]
	b.Asset = asset
	b.Free += delta
	d.balances[asset] = b
}

// Compile-time interface check.
var _ domain.DEXClient = (*DEX)(nil)

package domain

import "context"

// CEXClient is the capability surface of the order-book exchange. The
// concrete implementation owns auth, signing, and retries; rate-limit and
// auth failures must surface as ErrRateLimited / ErrUnauthorized so callers
// can distinguish them from transport errors.
type CEXClient interface {
	// GetTicker returns last price and 24h volume for the symbol.
	GetTicker(ctx context.Context, symbol string) (price, volume float64, err error)
	// GetBookTicker returns the current best bid and ask.
	GetBookTicker(ctx context.Context, symbol string) (bid, ask float64, err error)
	// PlaceOrder submits an order. Price is ignored for market orders.
	PlaceOrder(ctx context.Context, symbol string, side OrderSide, typ string, qty, price float64) (Order, error)
	// GetOrder fetches the current state of an order.
	GetOrder(ctx context.Context, symbol, orderID string) (Order, error)
	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, symbol, orderID string) error
	// GetBalances returns all non-zero account balances.
	GetBalances(ctx context.Context) (VenueBalances, error)
}

// DEXClient is the capability surface of the AMM venue. The implementation
// owns RPC management, gas pricing, and swap mechanics.
type DEXClient interface {
	// GetReserves returns the pool reserves for the trading pair, adjusted
	// for token decimals.
	GetReserves(ctx context.Context) (reserveBase, reserveQuote float64, err error)
	// Quote returns the expected output and the slippage-bounded minimum
	// output for swapping amountIn of tokenIn.
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn, slippage float64) (expectedOut, minOut float64, err error)
	// Swap executes a swap with a minimum-out bound.
	Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, minOut float64) (SwapResult, error)
	// GetBalance returns the wallet balance of a token ("" or the gas-asset
	// symbol returns the native gas balance).
	GetBalance(ctx context.Context, token string) (float64, error)
}

// QuoteCache stores the latest normalized Quote per venue.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	// GetQuote returns ErrNotFound when no quote has been stored yet.
	GetQuote(ctx context.Context, venue Venue) (Quote, error)
}

// Package feed normalizes per-venue market data into domain.Quote values on
// a fixed polling interval, one isolated poller per venue.
package feed

import (
	"context"

	"github.com/sable-labs/crossarb/internal/domain"
)

// Source produces a fresh normalized Quote for one venue.
type Source interface {
	Venue() domain.Venue
	Refresh(ctx context.Context) (domain.Quote, error)
}

// CEXSource normalizes order-book data: last price and volume from the
// ticker call, best bid/ask from the book-ticker call. The quote timestamp
// is the local receipt time.
type CEXSource struct {
	client domain.CEXClient
	symbol string
	clock  domain.Clock
}

// NewCEXSource creates a Source for the order-book venue.
func NewCEXSource(client domain.CEXClient, symbol string, clock domain.Clock) *CEXSource {
	return &CEXSource{client: client, symbol: symbol, clock: clock}
}

// Venue returns domain.VenueCEX.
func (s *CEXSource) Venue() domain.Venue { return domain.VenueCEX }

// Refresh fetches ticker volume and best bid/ask and combines them.
func (s *CEXSource) Refresh(ctx context.Context) (domain.Quote, error) {
	_, volume, err := s.client.GetTicker(ctx, s.symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	bid, ask, err := s.client.GetBookTicker(ctx, s.symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Venue:     domain.VenueCEX,
		Symbol:    s.symbol,
		BidPrice:  bid,
		AskPrice:  ask,
		Volume:    volume,
		Timestamp: s.clock.Now(),
		Source:    domain.QuoteSourceOrderbook,
	}, nil
}

// DEXSource normalizes AMM reserves: mid = reserveQuote/reserveBase (the
// client already adjusts for decimals), with bid/ask synthesized around the
// mid using the configured slippage estimate. Volume is 0; it has no
// meaning for a reserve read.
type DEXSource struct {
	client  domain.DEXClient
	symbol  string
	slipPct float64
	clock   domain.Clock
}

// NewDEXSource creates a Source for the AMM venue. slipPct is the synthetic
// half-spread percentage, e.g. 0.2 for ±0.2%.
func NewDEXSource(client domain.DEXClient, symbol string, slipPct float64, clock domain.Clock) *DEXSource {
	return &DEXSource{client: client, symbol: symbol, slipPct: slipPct, clock: clock}
}

// Venue returns domain.VenueDEX.
func (s *DEXSource) Venue() domain.Venue { return domain.VenueDEX }

// Refresh reads pool reserves and synthesizes a two-sided quote.
func (s *DEXSource) Refresh(ctx context.Context) (domain.Quote, error) {
	reserveBase, reserveQuote, err := s.client.GetReserves(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	if reserveBase <= 0 {
		return domain.Quote{}, domain.NewVenueError(string(domain.VenueDEX), "refresh",
			domain.ErrNotFound)
	}
	mid := reserveQuote / reserveBase
	slip := s.slipPct / 100
	return domain.Quote{
		Venue:     domain.VenueDEX,
		Symbol:    s.symbol,
		BidPrice:  mid * (1 - slip),
		AskPrice:  mid * (1 + slip),
		Volume:    0,
		Timestamp: s.clock.Now(),
		Source:    domain.QuoteSourceReserves,
	}, nil
}

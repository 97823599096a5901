package strategy

import (
	"context"
	"fmt"

	"github.com/sable-labs/crossarb/internal/domain"
)

// SnapshotPortfolio queries both venues and builds a fresh balance picture.
// Value totals use midPrice to convert base holdings to quote terms.
func SnapshotPortfolio(ctx context.Context, cex domain.CEXClient, dex domain.DEXClient, clock domain.Clock, baseAsset, quoteAsset string, midPrice float64) (domain.PortfolioSnapshot, error) {
	cexBalances, err := cex.GetBalances(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("strategy: snapshot cex balances: %w", err)
	}

	dexBase, err := dex.GetBalance(ctx, baseAsset)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("strategy: snapshot dex %s balance: %w", baseAsset, err)
	}
	dexQuote, err := dex.GetBalance(ctx, quoteAsset)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("strategy: snapshot dex %s balance: %w", quoteAsset, err)
	}

	snap := domain.PortfolioSnapshot{
		Timestamp: clock.Now(),
		CEX:       cexBalances,
		DEX: domain.VenueBalances{
			baseAsset:  {Asset: baseAsset, Free: dexBase},
			quoteAsset: {Asset: quoteAsset, Free: dexQuote},
		},
	}
	snap.TotalBase = cexBalances[baseAsset].Free + cexBalances[baseAsset].Locked + dexBase
	snap.TotalQuote = cexBalances[quoteAsset].Free + cexBalances[quoteAsset].Locked + dexQuote
	snap.TotalValueUSD = snap.TotalQuote + snap.TotalBase*midPrice
	return snap, nil
}

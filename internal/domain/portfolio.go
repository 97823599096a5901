package domain

import "time"

// Balance is a single asset balance on one venue.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// VenueBalances maps asset symbol to balance for one venue.
type VenueBalances map[string]Balance

// PortfolioSnapshot is the live balance picture across both venues, rebuilt
// from venue queries immediately before each strategy decision and never
// reused across decisions.
type PortfolioSnapshot struct {
	Timestamp     time.Time     `json:"timestamp"`
	CEX           VenueBalances `json:"cex"`
	DEX           VenueBalances `json:"dex"`
	TotalBase     float64       `json:"total_base"`
	TotalQuote    float64       `json:"total_quote"`
	TotalValueUSD float64       `json:"total_value_usd"`
}

// BaseOn returns the free base-asset balance on the given venue.
func (p PortfolioSnapshot) BaseOn(v Venue, baseAsset string) float64 {
	switch v {
	case VenueCEX:
		return p.CEX[baseAsset].Free
	case VenueDEX:
		return p.DEX[baseAsset].Free
	}
	return 0
}

// QuoteShare returns the quote asset's share of total portfolio value, in
// the range [0,1]. It returns 0 when the portfolio is empty.
func (p PortfolioSnapshot) QuoteShare() float64 {
	if p.TotalValueUSD <= 0 {
		return 0
	}
	return p.TotalQuote / p.TotalValueUSD
}

// Package domain defines the core types, capability interfaces, and sentinel
// errors shared by every component of the crossarb engine.
package domain

import "time"

// Venue identifies a trading location.
type Venue string

const (
	// VenueCEX is the order-book centralized exchange.
	VenueCEX Venue = "cex"
	// VenueDEX is the constant-product decentralized exchange.
	VenueDEX Venue = "dex"
)

// QuoteSource names where a quote's numbers came from.
type QuoteSource string

const (
	QuoteSourceOrderbook QuoteSource = "orderbook"
	QuoteSourceReserves  QuoteSource = "amm_reserves"
	QuoteSourceStream    QuoteSource = "ws_stream"
)

// Quote is a normalized two-sided price snapshot for one venue. A Quote is
// replaced wholesale on every refresh and never mutated in place; consumers
// must apply a staleness threshold to Timestamp instead of nil-checking.
type Quote struct {
	Venue     Venue       `json:"venue"`
	Symbol    string      `json:"symbol"`
	BidPrice  float64     `json:"bid_price"`
	AskPrice  float64     `json:"ask_price"`
	Volume    float64     `json:"volume"`
	Timestamp time.Time   `json:"timestamp"`
	Source    QuoteSource `json:"source"`
}

// MidPrice returns the bid/ask midpoint, or 0 when either side is unset.
func (q Quote) MidPrice() float64 {
	if q.BidPrice <= 0 || q.AskPrice <= 0 {
		return 0
	}
	return (q.BidPrice + q.AskPrice) / 2
}

// Age returns how long ago the quote was captured relative to now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.Timestamp)
}

// Stale reports whether the quote is older than threshold at now. A zero
// Timestamp is always stale.
func (q Quote) Stale(now time.Time, threshold time.Duration) bool {
	if q.Timestamp.IsZero() {
		return true
	}
	return q.Age(now) > threshold
}

// Valid reports whether the quote satisfies ask >= bid >= 0.
func (q Quote) Valid() bool {
	return q.BidPrice >= 0 && q.AskPrice >= q.BidPrice
}

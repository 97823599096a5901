package domain

import "time"

// Confidence classifies how reliable a detected opportunity looks.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// RiskLevel classifies the exposure a detected opportunity carries.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// FeeBreakdown itemizes the estimated costs of a two-leg trade, quoted
// against the reference notional used for net-profit math.
type FeeBreakdown struct {
	BuyFeePct  float64 `json:"buy_fee_pct"`
	SellFeePct float64 `json:"sell_fee_pct"`
	GasCostUSD float64 `json:"gas_cost_usd"`
	TotalPct   float64 `json:"total_pct"`
}

// Opportunity is a directional cross-venue spread that cleared every
// detector filter. Exactly one opportunity is "current" at a time; it is
// destroyed by consumption, supersession, or expiry (an explicit event).
type Opportunity struct {
	ID               string       `json:"id"`
	Symbol           string       `json:"symbol"`
	BuyVenue         Venue        `json:"buy_venue"`
	SellVenue        Venue        `json:"sell_venue"`
	BuyPrice         float64      `json:"buy_price"`  // buy-venue ask
	SellPrice        float64      `json:"sell_price"` // sell-venue bid
	SpreadPct        float64      `json:"spread_pct"`
	Fees             FeeBreakdown `json:"fees"`
	NetProfitPct     float64      `json:"net_profit_pct"`
	MaxTradeSize     float64      `json:"max_trade_size"`
	Confidence       Confidence   `json:"confidence"`
	RiskLevel        RiskLevel    `json:"risk_level"`
	Timestamp        time.Time    `json:"timestamp"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

// Expired reports whether the opportunity's validity window has passed.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

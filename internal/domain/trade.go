package domain

import "time"

// TradeStatus is the lifecycle state of a trade. Transitions are monotonic:
// once COMPLETED, FAILED, or CANCELLED a trade never changes state again.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeExecuting TradeStatus = "EXECUTING"
	TradeCompleted TradeStatus = "COMPLETED"
	TradeFailed    TradeStatus = "FAILED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// Terminal reports whether the status is one a trade can never leave.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeCompleted, TradeFailed, TradeCancelled:
		return true
	}
	return false
}

// OrderSide is the direction of one leg.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// TradeLeg records the outcome of one side of a two-leg trade. A FAILED or
// CANCELLED trade keeps whatever leg data was filled before the failure.
type TradeLeg struct {
	Venue       Venue     `json:"venue"`
	Side        OrderSide `json:"side"`
	OrderID     string    `json:"order_id,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Price       float64   `json:"price"`
	FilledQty   float64   `json:"filled_qty"`
	FeeUSD      float64   `json:"fee_usd"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Trade is the full record of one arbitrage execution, including per-leg
// fills and realized economics computed from actual fill prices.
type Trade struct {
	ID            string      `json:"id"`
	OpportunityID string      `json:"opportunity_id"`
	Symbol        string      `json:"symbol"`
	Amount        float64     `json:"amount"`
	Status        TradeStatus `json:"status"`
	BuyLeg        *TradeLeg   `json:"buy_leg,omitempty"`
	SellLeg       *TradeLeg   `json:"sell_leg,omitempty"`
	TotalProfit   float64     `json:"total_profit"`
	TotalFees     float64     `json:"total_fees"`
	NetProfit     float64     `json:"net_profit"`
	ExecutionTime time.Duration `json:"execution_time"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   time.Time   `json:"completed_at,omitempty"`
	Error         string      `json:"error,omitempty"`

	// Unreconciled marks a trade whose first leg filled but whose second
	// leg failed. The filled leg is not unwound automatically; inventory
	// must be reconciled manually.
	Unreconciled bool `json:"unreconciled,omitempty"`
}

// Order is a CEX order as reported by the exchange.
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Type      string      `json:"type"`
	Status    OrderStatus `json:"status"`
	Quantity  float64     `json:"quantity"`
	FilledQty float64     `json:"filled_qty"`
	AvgPrice  float64     `json:"avg_price"`
	FeeUSD    float64     `json:"fee_usd"`
}

// OrderStatus is the exchange-reported state of a CEX order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// Final reports whether the exchange will never change this status again.
func (s OrderStatus) Final() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	}
	return false
}

// SwapResult is the outcome of a DEX swap transaction.
type SwapResult struct {
	TxHash    string  `json:"tx_hash"`
	AmountOut float64 `json:"amount_out"`
	GasUsed   float64 `json:"gas_used"`
	Success   bool    `json:"success"`
}

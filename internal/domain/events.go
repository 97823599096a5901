package domain

import "context"

// Event bus topics. Payloads are JSON encodings of the domain types noted.
const (
	TopicQuoteUpdated        = "quote.updated"        // Quote
	TopicOpportunityDetected = "opportunity.detected" // Opportunity
	TopicOpportunityExpired  = "opportunity.expired"  // Opportunity
	TopicTradeStarted        = "trade.started"        // Trade
	TopicTradeCompleted      = "trade.completed"      // Trade
	TopicTradeFailed         = "trade.failed"         // Trade
	TopicTradeUnreconciled   = "trade.unreconciled"   // Trade
	TopicRiskExceeded        = "risk.exceeded"        // RiskEvent
	TopicAlertTriggered      = "alert.triggered"      // Alert
	TopicSystemStatus        = "system.status"        // status snapshot
)

// Alert is the payload published on alert.triggered.
type Alert struct {
	Severity string `json:"severity"` // "info", "warning", "critical"
	Source   string `json:"source"`
	Message  string `json:"message"`
}

// RiskEvent is the payload published on risk.exceeded.
type RiskEvent struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// EventBus is a fire-and-forget publish/subscribe fan-out. Publish never
// returns handler errors; subscriber failures are logged by the bus
// implementation and never reach the publisher.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns a channel of raw payloads for the topic. The
	// channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
}

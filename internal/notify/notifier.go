// Package notify relays selected engine events to an external messenger.
// Delivery is best effort; a failed send is logged and dropped.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sable-labs/crossarb/internal/domain"
)

// Sender delivers one formatted message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Notifier subscribes to event topics and forwards formatted summaries.
type Notifier struct {
	sender   Sender
	eventBus domain.EventBus
	topics   []string
	logger   *slog.Logger
}

// DefaultTopics are the events worth a human's attention.
var DefaultTopics = []string{
	domain.TopicTradeFailed,
	domain.TopicTradeUnreconciled,
	domain.TopicAlertTriggered,
}

// New creates a Notifier for the given topics; nil or empty topics selects
// DefaultTopics.
func New(sender Sender, eventBus domain.EventBus, topics []string, logger *slog.Logger) *Notifier {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	return &Notifier{
		sender:   sender,
		eventBus: eventBus,
		topics:   topics,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Run consumes all subscribed topics until the context ends.
func (n *Notifier) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range n.topics {
		ch, err := n.eventBus.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("notify: subscribe %s: %w", topic, err)
		}
		topic := topic
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case payload, ok := <-ch:
					if !ok {
						return nil
					}
					n.deliver(ctx, topic, payload)
				}
			}
		})
	}
	return g.Wait()
}

func (n *Notifier) deliver(ctx context.Context, topic string, payload []byte) {
	text := format(topic, payload)
	if text == "" {
		return
	}
	if err := n.sender.Send(ctx, text); err != nil {
		n.logger.Warn("notification delivery failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}

// format renders a concise human-readable line per topic. Unknown payloads
// fall back to the topic name.
func format(topic string, payload []byte) string {
	switch topic {
	case domain.TopicTradeFailed, domain.TopicTradeUnreconciled, domain.TopicTradeCompleted:
		var t domain.Trade
		if err := json.Unmarshal(payload, &t); err != nil {
			return topic
		}
		switch {
		case t.Unreconciled:
			return fmt.Sprintf("UNRECONCILED trade %s (%s): first leg filled, second leg failed: %s", t.ID, t.Symbol, t.Error)
		case t.Status == domain.TradeFailed:
			return fmt.Sprintf("Trade %s (%s) failed: %s", t.ID, t.Symbol, t.Error)
		case t.Status == domain.TradeCompleted:
			return fmt.Sprintf("Trade %s (%s) completed, net %.4f", t.ID, t.Symbol, t.NetProfit)
		}
		return fmt.Sprintf("Trade %s (%s): %s", t.ID, t.Symbol, t.Status)
	case domain.TopicAlertTriggered:
		var a domain.Alert
		if err := json.Unmarshal(payload, &a); err != nil {
			return topic
		}
		return fmt.Sprintf("[%s] %s: %s", a.Severity, a.Source, a.Message)
	case domain.TopicRiskExceeded:
		var r domain.RiskEvent
		if err := json.Unmarshal(payload, &r); err != nil {
			return topic
		}
		return fmt.Sprintf("Risk limit hit (%s): %s", r.Rule, r.Message)
	}
	return topic
}

package detector

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/sable-labs/crossarb/internal/domain"
)

// Holder owns the single "current" opportunity. An opportunity leaves the
// holder in exactly three ways: consumption by the trade pipeline,
// supersession by a newer one, or expiry. Expiry is published as an explicit
// opportunity.expired event, never a silent drop.
type Holder struct {
	eventBus domain.EventBus
	clock    domain.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	current *domain.Opportunity
}

// NewHolder creates an empty Holder.
func NewHolder(eventBus domain.EventBus, clock domain.Clock, logger *slog.Logger) *Holder {
	return &Holder{
		eventBus: eventBus,
		clock:    clock,
		logger:   logger.With(slog.String("component", "opportunity_holder")),
	}
}

// Set installs opp as the current opportunity, superseding any previous one,
// publishes opportunity.detected, and arms the expiry timer.
func (h *Holder) Set(ctx context.Context, opp domain.Opportunity) {
	h.mu.Lock()
	superseded := h.current
	h.current = &opp
	h.mu.Unlock()

	if superseded != nil {
		h.logger.Info("opportunity superseded",
			slog.String("old_id", superseded.ID),
			slog.String("new_id", opp.ID),
		)
	}

	h.publish(ctx, domain.TopicOpportunityDetected, opp)
	h.logger.Info("opportunity detected",
		slog.String("id", opp.ID),
		slog.String("buy_venue", string(opp.BuyVenue)),
		slog.String("sell_venue", string(opp.SellVenue)),
		slog.Float64("spread_pct", opp.SpreadPct),
		slog.Float64("net_profit_pct", opp.NetProfitPct),
	)

	go h.expireAfterTTL(ctx, opp)
}

// expireAfterTTL waits out the opportunity's validity window and expires it
// if it is still current. The ID comparison makes supersession and
// consumption both disarm the timer.
func (h *Holder) expireAfterTTL(ctx context.Context, opp domain.Opportunity) {
	if err := h.clock.Sleep(ctx, opp.ExpiresAt.Sub(opp.Timestamp)); err != nil {
		return
	}

	h.mu.Lock()
	stillCurrent := h.current != nil && h.current.ID == opp.ID
	if stillCurrent {
		h.current = nil
	}
	h.mu.Unlock()

	if !stillCurrent {
		return
	}

	h.publish(ctx, domain.TopicOpportunityExpired, opp)
	h.logger.Info("opportunity expired",
		slog.String("id", opp.ID),
		slog.Float64("net_profit_pct", opp.NetProfitPct),
	)
}

// Current returns a copy of the current opportunity, if any.
func (h *Holder) Current() (domain.Opportunity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return domain.Opportunity{}, false
	}
	return *h.current, true
}

// Consume hands the current opportunity to the caller exactly once,
// clearing the holder. Expired opportunities are not handed out; their
// expiry timer will publish the event.
func (h *Holder) Consume() (domain.Opportunity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil || h.current.Expired(h.clock.Now()) {
		return domain.Opportunity{}, false
	}
	opp := *h.current
	h.current = nil
	return opp, true
}

func (h *Holder) publish(ctx context.Context, topic string, opp domain.Opportunity) {
	payload, err := json.Marshal(opp)
	if err != nil {
		h.logger.Warn("opportunity marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := h.eventBus.Publish(ctx, topic, payload); err != nil {
		h.logger.Warn("opportunity publish failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}

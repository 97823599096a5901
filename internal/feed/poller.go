package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sable-labs/crossarb/internal/domain"
)

// Poller refreshes one venue's quote on a fixed interval. Each venue gets
// its own Poller and goroutine so one venue's failure never blocks or
// clears the other's quote.
type Poller struct {
	source   Source
	cache    domain.QuoteCache
	eventBus domain.EventBus
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a Poller for the given source.
func NewPoller(source Source, cache domain.QuoteCache, eventBus domain.EventBus, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		source:   source,
		cache:    cache,
		eventBus: eventBus,
		interval: interval,
		logger: logger.With(
			slog.String("component", "feed_poller"),
			slog.String("venue", string(source.Venue())),
		),
	}
}

// Run polls until ctx is cancelled. An immediate refresh runs before the
// first tick so the engine does not wait a full interval for its first
// quote.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("feed poller started", slog.Duration("interval", p.interval))
	defer p.logger.Info("feed poller stopped")

	p.refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

// refresh fetches one quote. On failure it logs and returns, leaving the
// previously cached quote in place; staleness checks downstream are the
// defense against a venue that stays down.
func (p *Poller) refresh(ctx context.Context) {
	quote, err := p.source.Refresh(ctx)
	if err != nil {
		p.logger.Warn("quote refresh failed, keeping previous quote",
			slog.String("error", err.Error()),
		)
		return
	}
	if !quote.Valid() {
		p.logger.Warn("quote refresh produced invalid prices, keeping previous quote",
			slog.Float64("bid", quote.BidPrice),
			slog.Float64("ask", quote.AskPrice),
		)
		return
	}
	p.Store(ctx, quote)
}

// Store writes a normalized quote to the cache and publishes quote.updated.
// The websocket stream uses the same path so stream and poll updates are
// indistinguishable downstream.
func (p *Poller) Store(ctx context.Context, quote domain.Quote) {
	if err := p.cache.SetQuote(ctx, quote); err != nil {
		p.logger.Warn("quote cache write failed",
			slog.String("error", err.Error()),
		)
		return
	}

	payload, err := json.Marshal(quote)
	if err != nil {
		p.logger.Warn("quote marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := p.eventBus.Publish(ctx, domain.TopicQuoteUpdated, payload); err != nil {
		p.logger.Warn("quote publish failed", slog.String("error", err.Error()))
	}

	p.logger.Debug("quote updated",
		slog.Float64("bid", quote.BidPrice),
		slog.Float64("ask", quote.AskPrice),
		slog.String("source", string(quote.Source)),
	)
}

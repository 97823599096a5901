package risk

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sable-labs/crossarb/internal/domain"
)

// Breaker pauses the whole engine after repeated trade failures inside a
// trailing window. The pause is distinct from the per-trade execution lock
// and is only cleared by an explicit Resume.
type Breaker struct {
	threshold int
	window    time.Duration
	clock     domain.Clock
	eventBus  domain.EventBus
	logger    *slog.Logger

	mu       sync.Mutex
	failures []time.Time
	paused   bool
}

// NewBreaker creates a Breaker that trips at threshold failures within
// window.
func NewBreaker(threshold int, window time.Duration, clock domain.Clock, eventBus domain.EventBus, logger *slog.Logger) *Breaker {
	return &Breaker{
		threshold: threshold,
		window:    window,
		clock:     clock,
		eventBus:  eventBus,
		logger:    logger.With(slog.String("component", "circuit_breaker")),
	}
}

// RecordFailure registers one FAILED trade and trips the breaker when the
// trailing window reaches the threshold.
func (b *Breaker) RecordFailure(ctx context.Context) {
	now := b.clock.Now()

	b.mu.Lock()
	b.failures = append(b.failures, now)
	b.trim(now)
	shouldTrip := !b.paused && len(b.failures) >= b.threshold
	if shouldTrip {
		b.paused = true
	}
	count := len(b.failures)
	b.mu.Unlock()

	if !shouldTrip {
		return
	}

	b.logger.Error("circuit breaker tripped, engine paused",
		slog.Int("failures", count),
		slog.Duration("window", b.window),
	)
	b.publishAlert(ctx, domain.Alert{
		Severity: "critical",
		Source:   "circuit_breaker",
		Message:  "engine paused after repeated trade failures; call Resume to continue",
	})
}

// Paused reports whether the engine is paused.
func (b *Breaker) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Resume clears the pause and the failure window, so a stale failure
// cannot re-trip the breaker immediately.
func (b *Breaker) Resume(ctx context.Context) {
	b.mu.Lock()
	wasPaused := b.paused
	b.paused = false
	b.failures = nil
	b.mu.Unlock()

	if wasPaused {
		b.logger.Info("circuit breaker resumed")
		b.publishAlert(ctx, domain.Alert{
			Severity: "info",
			Source:   "circuit_breaker",
			Message:  "engine resumed",
		})
	}
}

// trim drops failures older than the trailing window. Callers hold b.mu.
func (b *Breaker) trim(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) publishAlert(ctx context.Context, alert domain.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return
	}
	if err := b.eventBus.Publish(ctx, domain.TopicAlertTriggered, payload); err != nil {
		b.logger.Warn("alert publish failed", slog.String("error", err.Error()))
	}
}

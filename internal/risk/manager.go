// Package risk enforces trade-rate, volume, and profitability limits, sizes
// positions, and hosts the engine-wide circuit breaker.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sable-labs/crossarb/internal/domain"
)

// Confidence and risk sizing factors applied to the base position size.
var (
	confidenceFactors = map[domain.Confidence]float64{
		domain.ConfidenceHigh:   1.0,
		domain.ConfidenceMedium: 0.7,
		domain.ConfidenceLow:    0.5,
	}
	riskFactors = map[domain.RiskLevel]float64{
		domain.RiskLow:    1.0,
		domain.RiskMedium: 0.8,
		domain.RiskHigh:   0.5,
	}
)

// Config holds the tunable parameters for pre-trade risk checks and sizing.
type Config struct {
	MaxTradesPerHour int
	MaxDailyVolume   float64
	MinProfitPct     float64
	CooldownPeriod   time.Duration
	LotSize          float64
	MinNotional      float64
	MaxTradeSize     float64
}

// Manager owns the process-wide RiskState: rolling trade and volume
// counters, the last trade time, and the circuit breaker.
type Manager struct {
	cfg      Config
	breaker  *Breaker
	clock    domain.Clock
	eventBus domain.EventBus
	logger   *slog.Logger

	mu            sync.Mutex
	tradeTimes    []time.Time
	dailyVolume   float64
	volumeDay     time.Time
	lastTradeTime time.Time
}

// NewManager creates a Manager with all required dependencies.
func NewManager(cfg Config, breaker *Breaker, clock domain.Clock, eventBus domain.EventBus, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		breaker:  breaker,
		clock:    clock,
		eventBus: eventBus,
		logger:   logger.With(slog.String("component", "risk_manager")),
	}
}

// Approve validates an opportunity against the configured limits. It
// returns a non-nil error wrapping domain.ErrRiskLimitExceeded (or
// domain.ErrEnginePaused) describing the first failed check.
//
// Checks performed, in order:
//  1. Circuit breaker not tripped
//  2. Hourly trade count below limit
//  3. Daily volume below limit
//  4. Opportunity net profit above minimum
//  5. Cooldown since last trade elapsed
func (m *Manager) Approve(ctx context.Context, opp domain.Opportunity) error {
	if m.breaker.Paused() {
		return m.reject(ctx, "breaker", fmt.Errorf("%w: circuit breaker tripped", domain.ErrEnginePaused))
	}

	now := m.clock.Now()
	m.mu.Lock()
	m.rollWindows(now)
	hourly := len(m.tradeTimes)
	daily := m.dailyVolume
	last := m.lastTradeTime
	m.mu.Unlock()

	if hourly >= m.cfg.MaxTradesPerHour {
		return m.reject(ctx, "hourly_trades", fmt.Errorf("%w: %d trades this hour (max %d)",
			domain.ErrRiskLimitExceeded, hourly, m.cfg.MaxTradesPerHour))
	}
	if daily >= m.cfg.MaxDailyVolume {
		return m.reject(ctx, "daily_volume", fmt.Errorf("%w: %.2f volume today (max %.2f)",
			domain.ErrRiskLimitExceeded, daily, m.cfg.MaxDailyVolume))
	}
	if opp.NetProfitPct < m.cfg.MinProfitPct {
		return m.reject(ctx, "min_profit", fmt.Errorf("%w: net profit %.2f%% below minimum %.2f%%",
			domain.ErrRiskLimitExceeded, opp.NetProfitPct, m.cfg.MinProfitPct))
	}
	if !last.IsZero() && now.Sub(last) < m.cfg.CooldownPeriod {
		return m.reject(ctx, "cooldown", fmt.Errorf("%w: %s since last trade (cooldown %s)",
			domain.ErrRiskLimitExceeded, now.Sub(last).Round(time.Second), m.cfg.CooldownPeriod))
	}
	return nil
}

// Size computes the position size for an approved opportunity.
//
// The base size is the minimum of the opportunity's own cap, the configured
// cap, and the remaining daily volume; it is then scaled by the confidence
// and risk factors, floored to the lot size, and rejected below the minimum
// notional.
func (m *Manager) Size(opp domain.Opportunity) (float64, error) {
	m.mu.Lock()
	remaining := m.cfg.MaxDailyVolume - m.dailyVolume
	m.mu.Unlock()

	size := math.Min(opp.MaxTradeSize, m.cfg.MaxTradeSize)
	size = math.Min(size, remaining)
	size *= confidenceFactors[opp.Confidence]
	size *= riskFactors[opp.RiskLevel]

	if m.cfg.LotSize > 0 {
		size = math.Floor(size/m.cfg.LotSize) * m.cfg.LotSize
	}
	if size < m.cfg.MinNotional {
		return 0, fmt.Errorf("%w: sized position %.2f below minimum notional %.2f",
			domain.ErrRiskLimitExceeded, size, m.cfg.MinNotional)
	}
	return size, nil
}

// RecordTrade updates the rolling counters after a trade starts executing.
func (m *Manager) RecordTrade(volume float64) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollWindows(now)
	m.tradeTimes = append(m.tradeTimes, now)
	m.dailyVolume += volume
	m.lastTradeTime = now
}

// RecordOutcome feeds trade outcomes to the circuit breaker.
func (m *Manager) RecordOutcome(ctx context.Context, status domain.TradeStatus) {
	if status == domain.TradeFailed {
		m.breaker.RecordFailure(ctx)
	}
}

// Paused reports whether the circuit breaker has paused the engine.
func (m *Manager) Paused() bool { return m.breaker.Paused() }

// Resume clears an engine pause.
func (m *Manager) Resume(ctx context.Context) { m.breaker.Resume(ctx) }

// rollWindows expires hourly trade marks and resets the daily volume when
// the UTC day changes. Callers hold m.mu.
func (m *Manager) rollWindows(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := m.tradeTimes[:0]
	for _, t := range m.tradeTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.tradeTimes = kept

	day := now.Truncate(24 * time.Hour)
	if !day.Equal(m.volumeDay) {
		m.volumeDay = day
		m.dailyVolume = 0
	}
}

// reject logs the failed rule, publishes risk.exceeded, and returns err.
func (m *Manager) reject(ctx context.Context, rule string, err error) error {
	m.logger.Warn("risk check failed",
		slog.String("rule", rule),
		slog.String("error", err.Error()),
	)
	payload, merr := json.Marshal(domain.RiskEvent{Rule: rule, Message: err.Error()})
	if merr == nil {
		if perr := m.eventBus.Publish(ctx, domain.TopicRiskExceeded, payload); perr != nil {
			m.logger.Warn("risk event publish failed", slog.String("error", perr.Error()))
		}
	}
	return err
}

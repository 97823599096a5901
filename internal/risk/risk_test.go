package risk

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sable-labs/crossarb/internal/domain"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error { return nil }

type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newRecordingBus() *recordingBus {
	return &recordingBus{published: make(map[string][][]byte)}
}

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[topic] = append(b.published[topic], payload)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *recordingBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[topic])
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		MaxTradesPerHour: 3,
		MaxDailyVolume:   1000,
		MinProfitPct:     0.5,
		CooldownPeriod:   60 * time.Second,
		LotSize:          1,
		MinNotional:      10,
		MaxTradeSize:     500,
	}
}

func newTestManager(clock *fakeClock, bus *recordingBus) *Manager {
	breaker := NewBreaker(3, 10*time.Minute, clock, bus, testLogger())
	return NewManager(testConfig(), breaker, clock, bus, testLogger())
}

func goodOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:           "opp-1",
		NetProfitPct: 1.8,
		MaxTradeSize: 400,
		Confidence:   domain.ConfidenceHigh,
		RiskLevel:    domain.RiskLow,
	}
}

func TestApproveAccepts(t *testing.T) {
	clock := &fakeClock{now: testTime}
	m := newTestManager(clock, newRecordingBus())
	assert.NoError(t, m.Approve(context.Background(), goodOpportunity()))
}

func TestApproveHourlyLimit(t *testing.T) {
	clock := &fakeClock{now: testTime}
	bus := newRecordingBus()
	m := newTestManager(clock, bus)

	for i := 0; i < 3; i++ {
		m.RecordTrade(50)
		clock.Advance(2 * time.Minute)
	}

	err := m.Approve(context.Background(), goodOpportunity())
	require.ErrorIs(t, err, domain.ErrRiskLimitExceeded)
	assert.Equal(t, 1, bus.count(domain.TopicRiskExceeded))

	// The window is trailing: old trades roll off after an hour.
	clock.Advance(time.Hour)
	assert.NoError(t, m.Approve(context.Background(), goodOpportunity()))
}

func TestApproveDailyVolumeLimit(t *testing.T) {
	clock := &fakeClock{now: testTime}
	m := newTestManager(clock, newRecordingBus())

	m.RecordTrade(600)
	clock.Advance(2 * time.Hour)
	m.RecordTrade(500)
	clock.Advance(2 * time.Hour)

	err := m.Approve(context.Background(), goodOpportunity())
	assert.ErrorIs(t, err, domain.ErrRiskLimitExceeded)
}

func TestApproveMinProfit(t *testing.T) {
	clock := &fakeClock{now: testTime}
	m := newTestManager(clock, newRecordingBus())

	opp := goodOpportunity()
	opp.NetProfitPct = 0.3
	assert.ErrorIs(t, m.Approve(context.Background(), opp), domain.ErrRiskLimitExceeded)
}

func TestApproveCooldown(t *testing.T) {
	clock := &fakeClock{now: testTime}
	m := newTestManager(clock, newRecordingBus())

	m.RecordTrade(50)
	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, m.Approve(context.Background(), goodOpportunity()), domain.ErrRiskLimitExceeded)

	clock.Advance(31 * time.Second)
	assert.NoError(t, m.Approve(context.Background(), goodOpportunity()))
}

func TestBreakerTripsAndResumes(t *testing.T) {
	clock := &fakeClock{now: testTime}
	bus := newRecordingBus()
	m := newTestManager(clock, bus)
	ctx := context.Background()

	m.RecordOutcome(ctx, domain.TradeFailed)
	m.RecordOutcome(ctx, domain.TradeCompleted) // successes never count
	clock.Advance(time.Minute)
	m.RecordOutcome(ctx, domain.TradeFailed)
	assert.False(t, m.Paused())

	clock.Advance(time.Minute)
	m.RecordOutcome(ctx, domain.TradeFailed)
	assert.True(t, m.Paused())
	assert.Equal(t, 1, bus.count(domain.TopicAlertTriggered))

	err := m.Approve(ctx, goodOpportunity())
	assert.ErrorIs(t, err, domain.ErrEnginePaused)

	m.Resume(ctx)
	assert.False(t, m.Paused())
	assert.NoError(t, m.Approve(ctx, goodOpportunity()))

	// Resume cleared the failure window; one new failure must not re-trip.
	m.RecordOutcome(ctx, domain.TradeFailed)
	assert.False(t, m.Paused())
}

func TestBreakerWindowExpiry(t *testing.T) {
	clock := &fakeClock{now: testTime}
	m := newTestManager(clock, newRecordingBus())
	ctx := context.Background()

	m.RecordOutcome(ctx, domain.TradeFailed)
	m.RecordOutcome(ctx, domain.TradeFailed)
	clock.Advance(11 * time.Minute)
	m.RecordOutcome(ctx, domain.TradeFailed)
	assert.False(t, m.Paused())
}

func TestSizeAppliesFactors(t *testing.T) {
	clock := &fakeClock{now: testTime}
	m := newTestManager(clock, newRecordingBus())

	opp := goodOpportunity() // HIGH confidence, LOW risk: no scaling
	size, err := m.Size(opp)
	require.NoError(t, err)
	assert.Equal(t, 400.0, size)

	opp.Confidence = domain.ConfidenceMedium
	opp.RiskLevel = domain.RiskMedium
	size, err = m.Size(opp)
	require.NoError(t, err)
	// 400 * 0.7 * 0.8 = 224, already on the lot grid.
	assert.Equal(t, 224.0, size)
}

func TestSizeCapsAtRemainingDailyVolume(t *testing.T) {
	clock := &fakeClock{now: testTime}
	m := newTestManager(clock, newRecordingBus())

	m.RecordTrade(900)
	size, err := m.Size(goodOpportunity())
	require.NoError(t, err)
	assert.Equal(t, 100.0, size)
}

func TestSizeFloorsToLot(t *testing.T) {
	clock := &fakeClock{now: testTime}
	breaker := NewBreaker(3, 10*time.Minute, clock, newRecordingBus(), testLogger())
	cfg := testConfig()
	cfg.LotSize = 5
	m := NewManager(cfg, breaker, clock, newRecordingBus(), testLogger())

	opp := goodOpportunity()
	opp.Confidence = domain.ConfidenceMedium // 400 * 0.7 = 280
	size, err := m.Size(opp)
	require.NoError(t, err)
	assert.Equal(t, 280.0, size)

	opp.RiskLevel = domain.RiskMedium // 280 * 0.8 = 224 -> floored to 220
	size, err = m.Size(opp)
	require.NoError(t, err)
	assert.Equal(t, 220.0, size)
}

func TestSizeRejectsBelowMinNotional(t *testing.T) {
	clock := &fakeClock{now: testTime}
	m := newTestManager(clock, newRecordingBus())

	opp := goodOpportunity()
	opp.MaxTradeSize = 12
	opp.Confidence = domain.ConfidenceLow // 12 * 0.5 = 6 < 10
	_, err := m.Size(opp)
	assert.ErrorIs(t, err, domain.ErrRiskLimitExceeded)
}

// Package coordinator provides the process-wide single-flight lock that
// arbitrates the periodic scheduler and the price-event trigger. It is a
// critical section over asynchronous work, not a queue: losing callers are
// dropped, and the next tick or event retries naturally.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sable-labs/crossarb/internal/domain"
)

// ErrThrottled is returned when a call lands inside the minimum
// inter-start interval and is dropped without running.
var ErrThrottled = errors.New("execution throttled")

// Coordinator is the single ExecutionLock owner. Exactly one instance is
// constructed per process and injected into both the scheduler and the
// event handler.
type Coordinator struct {
	minInterval time.Duration
	clock       domain.Clock
	logger      *slog.Logger

	mu        sync.Mutex
	executing bool
	currentID string
	lastStart time.Time
}

// Snapshot is a read-only view of the lock state for status reporting.
type Snapshot struct {
	Executing   bool      `json:"executing"`
	ExecutionID string    `json:"execution_id,omitempty"`
	LastStart   time.Time `json:"last_start,omitempty"`
}

// New creates a Coordinator with the given minimum inter-start interval.
func New(minInterval time.Duration, clock domain.Clock, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		minInterval: minInterval,
		clock:       clock,
		logger:      logger.With(slog.String("component", "coordinator")),
	}
}

// RunExclusive runs fn while holding the execution lock.
//
// It skips fn with ErrThrottled when less than the minimum interval has
// passed since the last start: a throttle, not a buffer, so stale attempts
// are dropped rather than queued. It skips fn with domain.ErrLockHeld when
// another execution holds the lock. Otherwise it
// records executionID and the start time, runs fn, and releases the lock
// unconditionally regardless of fn's outcome.
func (c *Coordinator) RunExclusive(ctx context.Context, executionID string, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	now := c.clock.Now()
	if !c.lastStart.IsZero() && now.Sub(c.lastStart) < c.minInterval {
		sinceLast := now.Sub(c.lastStart)
		c.mu.Unlock()
		c.logger.Debug("execution throttled",
			slog.String("execution_id", executionID),
			slog.Duration("since_last_start", sinceLast),
			slog.Duration("min_interval", c.minInterval),
		)
		return ErrThrottled
	}
	if c.executing {
		blocking := c.currentID
		c.mu.Unlock()
		c.logger.Info("execution lock held, skipping",
			slog.String("execution_id", executionID),
			slog.String("blocking_execution_id", blocking),
		)
		return domain.ErrLockHeld
	}
	c.executing = true
	c.currentID = executionID
	c.lastStart = now
	c.mu.Unlock()

	c.logger.Info("execution lock acquired", slog.String("execution_id", executionID))

	defer func() {
		c.mu.Lock()
		c.executing = false
		c.currentID = ""
		c.mu.Unlock()
		c.logger.Info("execution lock released", slog.String("execution_id", executionID))
	}()

	return fn(ctx)
}

// Snapshot returns the current lock state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Executing:   c.executing,
		ExecutionID: c.currentID,
		LastStart:   c.lastStart,
	}
}

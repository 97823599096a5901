// Package bus provides an in-process implementation of domain.EventBus used
// in monitoring mode and tests, with the same fan-out contract as the
// redis-backed bus.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sable-labs/crossarb/internal/domain"
)

// subscriberBuf bounds each subscriber channel; slow subscribers drop
// messages rather than block the publisher.
const subscriberBuf = 128

// Memory is a channel-based publish/subscribe fan-out. Publish never blocks
// on or fails because of a subscriber.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]chan []byte
	logger *slog.Logger
}

// NewMemory creates an in-process event bus.
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		subs:   make(map[string][]chan []byte),
		logger: logger.With(slog.String("component", "memory_bus")),
	}
}

// Publish delivers payload to every current subscriber of topic. Full
// subscriber buffers are skipped and logged, never waited on. The read lock
// is held across the sends so a channel can never be closed mid-delivery:
// channels are only closed under the write lock.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.subs[topic] {
		select {
		case ch <- payload:
		default:
			m.logger.Warn("subscriber buffer full, dropping event",
				slog.String("topic", topic),
			)
		}
	}
	return nil
}

// Subscribe registers a new subscriber for topic. The returned channel is
// closed and deregistered when ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuf)

	m.mu.Lock()
	m.subs[topic] = append(m.subs[topic], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		subs := m.subs[topic]
		// Copy-on-write removal: the registered slice is never mutated in
		// place, and the channel is closed while the write lock excludes
		// in-flight publishers.
		kept := make([]chan []byte, 0, len(subs))
		for _, sub := range subs {
			if sub != ch {
				kept = append(kept, sub)
			}
		}
		m.subs[topic] = kept
		close(ch)
		m.mu.Unlock()
	}()

	return ch, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*Memory)(nil)

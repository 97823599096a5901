// Package memory provides the in-process quote cache used when Redis is not
// configured.
package memory

import (
	"context"
	"sync"

	"github.com/sable-labs/crossarb/internal/domain"
)

// QuoteCache is a mutex-guarded map of the latest quote per venue.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[domain.Venue]domain.Quote
}

// NewQuoteCache creates an empty in-process quote cache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{quotes: make(map[domain.Venue]domain.Quote)}
}

// SetQuote replaces the venue's quote wholesale.
func (c *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Venue] = q
	return nil
}

// GetQuote returns domain.ErrNotFound when the venue has no quote yet.
func (c *QuoteCache) GetQuote(ctx context.Context, venue domain.Venue) (domain.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[venue]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sable-labs/crossarb/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each venue's
// latest quote is stored as a hash at key "quote:{venue}".
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venue domain.Venue) string {
	return "quote:" + string(venue)
}

// SetQuote stores the latest quote for its venue, replacing the previous
// one wholesale.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	fields := map[string]interface{}{
		"symbol": q.Symbol,
		"bid":    strconv.FormatFloat(q.BidPrice, 'f', -1, 64),
		"ask":    strconv.FormatFloat(q.AskPrice, 'f', -1, 64),
		"volume": strconv.FormatFloat(q.Volume, 'f', -1, 64),
		"ts":     strconv.FormatInt(q.Timestamp.UnixNano(), 10),
		"source": string(q.Source),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(q.Venue), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Venue, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a venue. It returns
// domain.ErrNotFound when no quote has been stored yet.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue domain.Venue) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(venue)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", venue, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	q := domain.Quote{
		Venue:  venue,
		Symbol: vals["symbol"],
		Source: domain.QuoteSource(vals["source"]),
	}
	if q.BidPrice, err = strconv.ParseFloat(vals["bid"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse bid %s: %w", venue, err)
	}
	if q.AskPrice, err = strconv.ParseFloat(vals["ask"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ask %s: %w", venue, err)
	}
	if q.Volume, err = strconv.ParseFloat(vals["volume"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse volume %s: %w", venue, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s: %w", venue, err)
	}
	q.Timestamp = time.Unix(0, tsNano).UTC()
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)

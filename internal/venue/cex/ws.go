package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sable-labs/crossarb/internal/domain"
)

const (
	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before reconnecting.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookTickerHandler receives a normalized Quote for every best-bid/ask
// update on the stream.
type BookTickerHandler func(domain.Quote)

// Stream is a websocket client for the exchange's book-ticker feed. It
// reconnects with exponential backoff and dispatches every update to the
// registered handler as a normalized Quote.
type Stream struct {
	wsURL   string
	symbol  string
	handler BookTickerHandler
}

// NewStream creates a book-ticker stream for one pair symbol. wsURL is the
// stream root, e.g. "wss://stream.exchange.example.com/ws".
func NewStream(wsURL, symbol string, handler BookTickerHandler) *Stream {
	return &Stream{
		wsURL:   strings.TrimRight(wsURL, "/"),
		symbol:  symbol,
		handler: handler,
	}
}

// bookTickerJSON is the exchange's stream payload.
type bookTickerJSON struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

// Run connects and consumes the stream until ctx is cancelled, reconnecting
// on failure.
func (s *Stream) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}
		delay = reconnectDelay
	}
}

// consume dials the stream endpoint and reads updates until the connection
// drops or ctx is cancelled.
func (s *Stream) consume(ctx context.Context) error {
	endpoint := s.wsURL + "/" + strings.ToLower(ExchangeSymbol(s.symbol)) + "@bookTicker"

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("cex/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("cex/ws: read: %w", err)
		}

		var tick bookTickerJSON
		if err := json.Unmarshal(data, &tick); err != nil {
			continue
		}
		bid, err1 := strconv.ParseFloat(tick.BidPrice, 64)
		ask, err2 := strconv.ParseFloat(tick.AskPrice, 64)
		if err1 != nil || err2 != nil || bid <= 0 || ask < bid {
			continue
		}

		s.handler(domain.Quote{
			Venue:     domain.VenueCEX,
			Symbol:    s.symbol,
			BidPrice:  bid,
			AskPrice:  ask,
			Timestamp: time.Now().UTC(),
			Source:    domain.QuoteSourceStream,
		})
	}
}

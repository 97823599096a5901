package executor

import (
	"sync"

	"github.com/sable-labs/crossarb/internal/domain"
)

// History keeps the most recent terminal trades in memory. When the ring is
// full the oldest entry is dropped. Entries are copies; callers never see a
// trade the executor can still mutate.
type History struct {
	mu     sync.RWMutex
	trades []domain.Trade
	max    int
}

// NewHistory creates a ring holding at most max trades.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 256
	}
	return &History{max: max}
}

// Add records a terminal trade.
func (h *History) Add(t *domain.Trade) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trades = append(h.trades, *t)
	if len(h.trades) > h.max {
		h.trades = h.trades[len(h.trades)-h.max:]
	}
}

// Get returns the trade with the given ID, or false.
func (h *History) Get(id string) (domain.Trade, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.trades) - 1; i >= 0; i-- {
		if h.trades[i].ID == id {
			return h.trades[i], true
		}
	}
	return domain.Trade{}, false
}

// Recent returns up to n trades, newest first.
func (h *History) Recent(n int) []domain.Trade {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > len(h.trades) {
		n = len(h.trades)
	}
	out := make([]domain.Trade, 0, n)
	for i := len(h.trades) - 1; i >= len(h.trades)-n; i-- {
		out = append(out, h.trades[i])
	}
	return out
}

// Stats summarizes the retained trades.
type Stats struct {
	Total        int     `json:"total"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	Unreconciled int     `json:"unreconciled"`
	NetProfit    float64 `json:"net_profit"`
}

// Summary aggregates outcomes over the retained window.
func (h *History) Summary() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var s Stats
	for _, t := range h.trades {
		s.Total++
		switch t.Status {
		case domain.TradeCompleted:
			s.Completed++
			s.NetProfit += t.NetProfit
		case domain.TradeFailed:
			s.Failed++
		}
		if t.Unreconciled {
			s.Unreconciled++
		}
	}
	return s
}

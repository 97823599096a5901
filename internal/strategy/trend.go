package strategy

import "sync"

// Direction classifies recent price movement.
type Direction string

const (
	TrendRising  Direction = "RISING"
	TrendFalling Direction = "FALLING"
	TrendStable  Direction = "STABLE"
)

// TrendTracker keeps a sliding window of mid prices and classifies the
// trend by comparing the average of the newest samples against the average
// of the samples before them. Inside the band the trend is STABLE.
type TrendTracker struct {
	mu      sync.Mutex
	samples []float64
	size    int
	bandPct float64
}

// NewTrendTracker creates a tracker comparing windows of size samples, with
// a symmetric stability band of bandPct percent.
func NewTrendTracker(size int, bandPct float64) *TrendTracker {
	if size <= 0 {
		size = 5
	}
	return &TrendTracker{size: size, bandPct: bandPct}
}

// Observe records a mid price. Non-positive prices are ignored.
func (t *TrendTracker) Observe(mid float64) {
	if mid <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, mid)
	if len(t.samples) > 2*t.size {
		t.samples = t.samples[len(t.samples)-2*t.size:]
	}
}

// Direction returns the current classification. With fewer than two full
// windows of samples the trend is STABLE.
func (t *TrendTracker) Direction() Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) < 2*t.size {
		return TrendStable
	}
	recent := average(t.samples[t.size:])
	prior := average(t.samples[:t.size])
	if prior <= 0 {
		return TrendStable
	}
	changePct := (recent - prior) / prior * 100
	switch {
	case changePct > t.bandPct:
		return TrendRising
	case changePct < -t.bandPct:
		return TrendFalling
	}
	return TrendStable
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

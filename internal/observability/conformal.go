package observability

import (
	"sort"
	"sync"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// minConformalSamples is the smallest window size Predict will produce
// an interval for (spec.md §4.8: "once >=30 samples exist").
const minConformalSamples = 30

// ConformalPrediction is the (lower, upper, coverage) interval
// returned once enough samples have accumulated.
type ConformalPrediction struct {
	Lower    float64
	Upper    float64
	Coverage float64
}

// ConformalPredictor maintains a rolling window of the last N observed
// latencies per tool and derives a distribution-free prediction
// interval from it via split conformal prediction: the interval is
// bounded by the empirical quantiles of the window at the configured
// coverage level, which guarantees (asymptotically, under
// exchangeability) that a future sample falls inside it with at least
// that probability — no parametric assumption about the latency
// distribution is required.
type ConformalPredictor struct {
	mu       sync.Mutex
	window   []float64
	capacity int
	coverage float64
}

// NewConformalPredictor builds a predictor from the observability
// config.
func NewConformalPredictor(cfg config.ObservabilityConfig) *ConformalPredictor {
	return &ConformalPredictor{
		capacity: cfg.ConformalWindow,
		coverage: cfg.ConformalCoverage,
	}
}

// Observe records one latency sample, evicting the oldest once the
// window is full.
func (c *ConformalPredictor) Observe(latency float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = append(c.window, latency)
	if c.capacity > 0 && len(c.window) > c.capacity {
		c.window = c.window[len(c.window)-c.capacity:]
	}
}

// Predict returns the current prediction interval. It fails with
// Unavailable until at least 30 samples have been observed — asking
// for an interval from fewer points would understate its own
// uncertainty.
func (c *ConformalPredictor) Predict() (*ConformalPrediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.window) < minConformalSamples {
		return nil, errs.New(errs.Unavailable, "observability: fewer than 30 samples in conformal window")
	}

	sorted := append([]float64(nil), c.window...)
	sort.Float64s(sorted)

	tail := (1 - c.coverage) / 2
	lower := quantile(sorted, tail)
	upper := quantile(sorted, 1-tail)

	return &ConformalPrediction{Lower: lower, Upper: upper, Coverage: c.coverage}, nil
}

// quantile returns the linear-interpolated p-quantile (0<=p<=1) of a
// pre-sorted slice.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

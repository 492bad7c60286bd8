package signal

import (
	"math"

	"quote_core/internal/config"
	"quote_core/internal/state"
)

// VolatilityTracker maintains the EWMA variance of mid-price log returns in
// the per-book state.
type VolatilityTracker struct {
	cfg config.VolatilityConfig
}

func NewVolatilityTracker(cfg config.VolatilityConfig) *VolatilityTracker {
	return &VolatilityTracker{cfg: cfg}
}

// Observe records the current mid and returns the updated volatility. The
// first valid observation for a book only seeds last_mid; variance stays at
// its initialized zero until a return can be computed. Non-positive mids
// leave the state untouched.
func (t *VolatilityTracker) Observe(bs *state.BookState, mid float64) float64 {
	if mid <= 0 {
		return t.Volatility(bs)
	}

	if bs.LastMid > 0 {
		r := math.Log(mid / bs.LastMid)
		a := t.cfg.EwmaAlpha
		bs.EwmaVariance = (1-a)*bs.EwmaVariance + a*r*r
	}
	bs.LastMid = mid
	bs.PushMid(mid)

	return t.Volatility(bs)
}

// Volatility returns sqrt(max(variance, 0)) without mutating state
func (t *VolatilityTracker) Volatility(bs *state.BookState) float64 {
	return math.Sqrt(math.Max(bs.EwmaVariance, 0))
}

// Floored bounds volatility away from zero before it is used as a pricing
// denominator
func (t *VolatilityTracker) Floored(vol float64) float64 {
	return math.Max(vol, t.cfg.Floor)
}

// Multiplier maps volatility to the spread widening factor, capped so the
// spread never widens without bound
func (t *VolatilityTracker) Multiplier(vol float64) float64 {
	m := 1.0 + t.cfg.MultiplierScale*vol
	return math.Min(m, t.cfg.MultiplierCap)
}

// Package pricing turns per-tick signals into a two-sided quote decision.
package pricing

import (
	"math"
	"time"

	"quote_core/internal/config"
	"quote_core/internal/core"
	"quote_core/internal/risk"
	apperrors "quote_core/pkg/errors"
	"quote_core/pkg/quant"

	"github.com/shopspring/decimal"
)

// Sizes are halved on a toxic tick before the inventory shrink applies
const toxicSizeFactor = 0.5

// Engine prices one book per tick. Stateless; every input arrives in the
// call and the per-book persistence lives with the caller.
type Engine struct {
	pricing config.PricingConfig
	sizing  config.SizingConfig
	expiry  config.ExpiryConfig
}

func NewEngine(p config.Profile) *Engine {
	return &Engine{
		pricing: p.Pricing,
		sizing:  p.Sizing,
		expiry:  p.Expiry,
	}
}

// DetectToxicity flags adverse selection from two independent rules: trade
// flow aligned with the recent price move, both past their thresholds, or
// trade flow diverging far from the book imbalance. The aligned rule names
// the side being picked off; divergence alone widens both sides.
func (e *Engine) DetectToxicity(sig *core.Signals, recentReturn float64) {
	sig.Toxic = false
	sig.ToxicSide = ""

	flow := sig.TradeFlow
	aligned := math.Abs(flow) > e.pricing.ToxicFlowThreshold &&
		math.Abs(recentReturn) > e.pricing.ToxicReturnThreshold &&
		flow*recentReturn > 0
	if aligned {
		sig.Toxic = true
		if flow > 0 {
			sig.ToxicSide = core.SideSell
		} else {
			sig.ToxicSide = core.SideBuy
		}
		return
	}

	if e.pricing.ToxicDivergenceThreshold > 0 &&
		math.Abs(flow-sig.Imbalance) > e.pricing.ToxicDivergenceThreshold {
		sig.Toxic = true
	}
}

// Quote derives the bid/ask prices, per-side quantities and expiry for one
// book. volMult is the volatility spread multiplier, already capped. The
// returned decision may have either side disabled; both disabled means the
// book only cancels this tick.
func (e *Engine) Quote(book *core.BookSnapshot, mkt core.MarketConfig, acct *core.AccountState, sig *core.Signals, a risk.Assessment, volMult float64) (core.QuoteDecision, error) {
	bid, okB := book.BestBid()
	ask, okA := book.BestAsk()
	if !okB || !okA {
		return core.QuoteDecision{}, apperrors.ErrEmptyBook
	}

	tick := mkt.Tick()
	tickF := tick.InexactFloat64()
	bestBid := bid.Price.InexactFloat64()
	bestAsk := ask.Price.InexactFloat64()
	spread := bestAsk - bestBid
	if sig.Microprice <= 0 || spread <= 0 {
		return core.QuoteDecision{}, apperrors.ErrDegeneratePrice
	}

	halfSpread := math.Max(float64(e.pricing.MinHalfSpreadTicks)*tickF,
		e.pricing.BaseSpreadFraction*spread) * volMult

	reservation := sig.Microprice +
		(e.pricing.ImbalanceWeight*sig.Imbalance+e.pricing.FlowWeight*sig.TradeFlow)*halfSpread -
		e.pricing.InventoryWeight*quant.ClampSignal(sig.InventoryDeviation)*halfSpread

	bidHalf, askHalf := halfSpread, halfSpread
	if sig.Toxic {
		extra := float64(e.pricing.ToxicExtraTicks) * tickF
		switch sig.ToxicSide {
		case core.SideBuy:
			bidHalf += extra
		case core.SideSell:
			askHalf += extra
		default:
			bidHalf += extra
			askHalf += extra
		}
	}

	// Stay behind the touch: quoting through it would take liquidity
	bidPrice := math.Min(reservation-bidHalf, bestAsk-tickF)
	askPrice := math.Max(reservation+askHalf, bestBid+tickF)

	bidD := quant.RoundPrice(decimal.NewFromFloat(bidPrice), mkt.PriceDecimals)
	askD := quant.RoundPrice(decimal.NewFromFloat(askPrice), mkt.PriceDecimals)
	if bidD.GreaterThanOrEqual(askD) {
		bidD = bidD.Sub(tick)
		askD = askD.Add(tick)
	}

	d := core.QuoteDecision{
		BidPrice: bidD,
		AskPrice: askD,
		QuoteBid: bidD.IsPositive() && bidD.LessThan(askD),
		QuoteAsk: askD.IsPositive() && bidD.LessThan(askD),
		Expiry:   e.adaptiveExpiry(volMult),
	}
	if !d.QuoteBid && !d.QuoteAsk {
		return d, nil
	}

	e.applySuppression(&d, sig, a)
	e.applySizes(&d, bid, ask, sig, a, mkt)
	return d, nil
}

// applySuppression drops the sides that must not quote this tick: the
// hard-cap risk side and, past the drop threshold, the toxic side
func (e *Engine) applySuppression(d *core.QuoteDecision, sig *core.Signals, a risk.Assessment) {
	if a.Regime == risk.RegimeHard {
		e.dropSide(d, a.RiskSide)
	}
	if sig.Toxic && sig.ToxicSide != "" &&
		e.pricing.ToxicDropSideThreshold > 0 &&
		math.Abs(sig.TradeFlow) >= e.pricing.ToxicDropSideThreshold {
		e.dropSide(d, sig.ToxicSide)
	}
}

func (e *Engine) dropSide(d *core.QuoteDecision, side core.Side) {
	if side == core.SideBuy {
		d.QuoteBid = false
	} else if side == core.SideSell {
		d.QuoteAsk = false
	}
}

// applySizes picks the base size for the configured mode, boosts the side
// favored by imbalance, shrinks on toxicity and elevated inventory, then
// clamps to the configured bounds. A side whose clamped size hits zero is
// disabled.
func (e *Engine) applySizes(d *core.QuoteDecision, bid, ask core.PriceLevel, sig *core.Signals, a risk.Assessment, mkt core.MarketConfig) {
	bidBase, askBase := e.baseSize(bid, ask, sig.Microprice)

	boost := e.sizing.ImbalanceBoost
	if boost > 0 {
		bidBase *= 1 + boost*math.Max(sig.Imbalance, 0)
		askBase *= 1 + boost*math.Max(-sig.Imbalance, 0)
	}
	if sig.Toxic {
		bidBase *= toxicSizeFactor
		askBase *= toxicSizeFactor
	}
	if a.Regime == risk.RegimeSoft {
		if a.RiskSide == core.SideBuy {
			bidBase *= a.ShrinkFactor
		} else {
			askBase *= a.ShrinkFactor
		}
	}

	min := decimal.NewFromFloat(e.sizing.MinQty)
	max := decimal.NewFromFloat(e.sizing.MaxQty)
	d.BidQty = quant.ClampQuantity(decimal.NewFromFloat(bidBase), min, max, mkt.QuantityDecimals)
	d.AskQty = quant.ClampQuantity(decimal.NewFromFloat(askBase), min, max, mkt.QuantityDecimals)
	if d.BidQty.IsZero() {
		d.QuoteBid = false
	}
	if d.AskQty.IsZero() {
		d.QuoteAsk = false
	}
}

func (e *Engine) baseSize(bid, ask core.PriceLevel, micro float64) (float64, float64) {
	switch e.sizing.Mode {
	case config.SizingModeBookFraction:
		return e.sizing.BookFraction * bid.Quantity.InexactFloat64(),
			e.sizing.BookFraction * ask.Quantity.InexactFloat64()
	case config.SizingModeNotional:
		if micro <= 0 {
			return 0, 0
		}
		q := e.sizing.Notional / micro
		return q, q
	default:
		return e.sizing.BaseQty, e.sizing.BaseQty
	}
}

// adaptiveExpiry shrinks the order TTL as volatility widens the spread,
// bounded to the configured window
func (e *Engine) adaptiveExpiry(volMult float64) time.Duration {
	ms := float64(e.expiry.BaseMillis)
	if volMult > 1 {
		ms /= volMult
	}
	ms = quant.Clamp(ms, float64(e.expiry.MinMillis), float64(e.expiry.MaxMillis))
	return time.Duration(ms) * time.Millisecond
}

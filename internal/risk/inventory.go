// Package risk holds the inventory controls and the drawdown kill switch.
package risk

import (
	"quote_core/internal/config"
	"quote_core/internal/core"
	"quote_core/internal/state"
	"quote_core/pkg/quant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Regime classifies how far inventory has drifted from target
type Regime int

const (
	RegimeNormal Regime = iota
	RegimeSoft
	RegimeHard
)

// Assessment is the per-tick inventory verdict for one book
type Assessment struct {
	// Deviation is signed: positive when too long, negative when too short.
	// Units follow the configured mode (base units or fraction of wealth).
	Deviation float64
	Regime    Regime
	// RiskSide is the side whose fills would grow the deviation. Empty in
	// the normal regime.
	RiskSide core.Side
	// ShrinkFactor scales quote size on RiskSide in the soft regime
	ShrinkFactor float64
}

// InventoryRiskController measures inventory deviation against the soft and
// hard caps and produces de-risking intents when the hard cap is breached.
type InventoryRiskController struct {
	cfg config.InventoryConfig
}

func NewInventoryRiskController(cfg config.InventoryConfig) *InventoryRiskController {
	return &InventoryRiskController{cfg: cfg}
}

// Deviation measures how far the account's base exposure sits from target.
// In base_units mode the book's first-tick exposure is the zero point; in
// wealth_fraction mode deviation is the fraction of current wealth held in
// base terms.
func (c *InventoryRiskController) Deviation(acct *core.AccountState, bs *state.BookState, mid float64) float64 {
	exposure := acct.BaseExposure().InexactFloat64()

	switch c.cfg.Mode {
	case config.InventoryModeWealthFraction:
		if mid <= 0 {
			return 0
		}
		wealth := acct.Wealth(decimal.NewFromFloat(mid)).InexactFloat64()
		if wealth <= 0 {
			return 0
		}
		return exposure*mid/wealth - c.cfg.Target
	default:
		return exposure - bs.InventoryBaseline - c.cfg.Target
	}
}

// Assess maps a deviation onto a regime. The hard cap comparison is strictly
// exclusive: a deviation sitting exactly on the cap is still soft.
func (c *InventoryRiskController) Assess(dev float64) Assessment {
	a := Assessment{Deviation: dev, Regime: RegimeNormal, ShrinkFactor: 1}

	abs := dev
	if abs < 0 {
		abs = -abs
	}
	if abs <= c.cfg.SoftCap {
		return a
	}

	if dev > 0 {
		a.RiskSide = core.SideBuy
	} else {
		a.RiskSide = core.SideSell
	}

	if abs > c.cfg.HardCap {
		a.Regime = RegimeHard
		a.ShrinkFactor = 0
		return a
	}

	a.Regime = RegimeSoft
	span := c.cfg.HardCap - c.cfg.SoftCap
	if span > 0 {
		a.ShrinkFactor = quant.Clamp(1-(abs-c.cfg.SoftCap)/span, 0, 1)
	}
	return a
}

// DeriskIntents produces the hard-cap response for one book: cancel every
// resting order on the risk-increasing side and fire an IOC limit priced
// through the touch for a fraction of the excess exposure.
func (c *InventoryRiskController) DeriskIntents(bookID string, acct *core.AccountState, book *core.BookSnapshot, a Assessment, mkt core.MarketConfig, mid float64) []core.OrderIntent {
	if a.Regime != RegimeHard {
		return nil
	}

	var intents []core.OrderIntent

	var cancelIDs []int64
	for _, o := range acct.OpenOrders {
		if o.Side == a.RiskSide {
			cancelIDs = append(cancelIDs, o.ID)
		}
	}
	if len(cancelIDs) > 0 {
		intents = append(intents, core.OrderIntent{
			Type:     core.IntentCancel,
			BookID:   bookID,
			OrderIDs: cancelIDs,
		})
	}

	qty := c.deriskQuantity(acct, a, mid)
	qty = quant.RoundQuantity(qty, mkt.QuantityDecimals)
	if !qty.IsPositive() {
		return intents
	}

	// Reducing exposure trades opposite to the risk side
	side := a.RiskSide.Opposite()
	price, ok := c.deriskPrice(book, side, mkt)
	if !ok {
		return intents
	}

	intents = append(intents, core.OrderIntent{
		Type:          core.IntentPlaceLimit,
		BookID:        bookID,
		Side:          side,
		Quantity:      qty,
		Price:         price,
		TimeInForce:   core.TIFImmediateOrCancel,
		STP:           core.STPCancelResting,
		ClientOrderID: uuid.NewString(),
	})
	return intents
}

// deriskQuantity converts the configured fraction of the excess deviation
// into base units
func (c *InventoryRiskController) deriskQuantity(acct *core.AccountState, a Assessment, mid float64) decimal.Decimal {
	excess := a.Deviation
	if excess < 0 {
		excess = -excess
	}
	excess -= c.cfg.HardCap
	if excess <= 0 {
		return decimal.Zero
	}
	target := excess * c.cfg.DeriskFraction

	if c.cfg.Mode == config.InventoryModeWealthFraction {
		if mid <= 0 {
			return decimal.Zero
		}
		wealth := acct.Wealth(decimal.NewFromFloat(mid)).InexactFloat64()
		if wealth <= 0 {
			return decimal.Zero
		}
		target = target * wealth / mid
	}
	return decimal.NewFromFloat(target)
}

// deriskPrice crosses the configured number of ticks through the touch so
// the IOC actually trades
func (c *InventoryRiskController) deriskPrice(book *core.BookSnapshot, side core.Side, mkt core.MarketConfig) (decimal.Decimal, bool) {
	through := mkt.Tick().Mul(decimal.NewFromInt(int64(c.cfg.DeriskThroughTicks)))
	if side == core.SideSell {
		bid, ok := book.BestBid()
		if !ok {
			return decimal.Zero, false
		}
		return quant.RoundPrice(bid.Price.Sub(through), mkt.PriceDecimals), true
	}
	ask, ok := book.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return quant.RoundPrice(ask.Price.Add(through), mkt.PriceDecimals), true
}

// LossCooldown checks the book's wealth against its cooldown reference,
// arming the cooldown timer on a breach. Returns true while the book must
// not quote. The reference moves down with each breach so a book is not
// punished twice for the same loss; the session-start wealth baseline the
// drawdown stop measures against is never touched here.
func (c *InventoryRiskController) LossCooldown(bs *state.BookState, wealth float64, now int64, tickInterval int64) bool {
	if now < bs.LossCooldownUntil {
		return true
	}
	if c.cfg.LossCooldownFraction <= 0 {
		return false
	}
	if bs.LossCooldownRef <= 0 {
		bs.LossCooldownRef = bs.WealthBaseline
	}
	if bs.LossCooldownRef <= 0 {
		return false
	}
	if wealth < bs.LossCooldownRef*(1-c.cfg.LossCooldownFraction) {
		bs.LossCooldownUntil = now + int64(c.cfg.LossCooldownTicks)*tickInterval
		bs.LossCooldownRef = wealth
		return true
	}
	return false
}

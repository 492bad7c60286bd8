// Package lifecycle reconciles resting orders against the tick's quote
// decision: cancel what is stale or unsafe, place what is missing.
package lifecycle

import (
	"quote_core/internal/config"
	"quote_core/internal/core"
	"quote_core/pkg/logging"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Manager drives the per-(book, side) order state machine. It never talks
// to the venue; it only emits intents.
type Manager struct {
	cfg config.LifecycleConfig
}

func NewManager(cfg config.LifecycleConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Reconcile compares the account's resting orders with the desired quote
// and returns the cancellations and placements for this tick. now is the
// tick timestamp on the same clock as OpenOrder.PlacedAt.
func (m *Manager) Reconcile(bookID string, acct *core.AccountState, d core.QuoteDecision, mkt core.MarketConfig, now int64) []core.OrderIntent {
	// Near the venue's open-order limit incremental management risks
	// tripping it mid-batch. One bulk cancel, no placements, start clean
	// next tick.
	if mkt.MaxOpenOrders > 0 && len(acct.OpenOrders) >= mkt.MaxOpenOrders-m.cfg.OrderCountMargin {
		logging.Warn("open order count near venue limit, bulk cancelling",
			"book_id", bookID,
			"open_orders", len(acct.OpenOrders),
			"max_open_orders", mkt.MaxOpenOrders)
		return m.bulkCancel(bookID, acct)
	}

	// Fees above the ceiling make every quote value-negative
	feeUnsafe := m.cfg.MakerFeeCeiling > 0 &&
		acct.MakerFeeRate.InexactFloat64() > m.cfg.MakerFeeCeiling
	if feeUnsafe {
		return m.bulkCancel(bookID, acct)
	}

	var cancelIDs []int64
	keepBid, keepAsk := false, false

	maxAge := int64(m.cfg.MaxAgeTicks) * mkt.TickInterval.Nanoseconds()
	tolerance := mkt.Tick().Mul(decimal.NewFromInt(int64(m.cfg.ToleranceTicks)))

	for _, o := range acct.OpenOrders {
		want, price, qty := m.desiredFor(o.Side, d)
		switch {
		case !want:
			// Side suppressed this tick: resting order is unsafe
			cancelIDs = append(cancelIDs, o.ID)
		case maxAge > 0 && now-o.PlacedAt > maxAge:
			cancelIDs = append(cancelIDs, o.ID)
		case o.Price.Sub(price).Abs().GreaterThan(tolerance):
			cancelIDs = append(cancelIDs, o.ID)
		case m.tiny(o.Quantity, qty):
			cancelIDs = append(cancelIDs, o.ID)
		default:
			// Acceptable resting order; keep it and do not churn
			if o.Side == core.SideBuy {
				keepBid = true
			} else {
				keepAsk = true
			}
		}
	}

	var intents []core.OrderIntent
	if len(cancelIDs) > 0 {
		intents = append(intents, core.OrderIntent{
			Type:     core.IntentCancel,
			BookID:   bookID,
			OrderIDs: cancelIDs,
		})
	}

	if d.QuoteBid && !keepBid {
		intents = append(intents, m.placement(bookID, core.SideBuy, d.BidPrice, d.BidQty, d))
	}
	if d.QuoteAsk && !keepAsk {
		intents = append(intents, m.placement(bookID, core.SideSell, d.AskPrice, d.AskQty, d))
	}
	return intents
}

func (m *Manager) bulkCancel(bookID string, acct *core.AccountState) []core.OrderIntent {
	if len(acct.OpenOrders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(acct.OpenOrders))
	for _, o := range acct.OpenOrders {
		ids = append(ids, o.ID)
	}
	return []core.OrderIntent{{
		Type:     core.IntentCancel,
		BookID:   bookID,
		OrderIDs: ids,
	}}
}

func (m *Manager) desiredFor(side core.Side, d core.QuoteDecision) (bool, decimal.Decimal, decimal.Decimal) {
	if side == core.SideBuy {
		return d.QuoteBid, d.BidPrice, d.BidQty
	}
	return d.QuoteAsk, d.AskPrice, d.AskQty
}

// tiny flags leftovers from partial fills too small to be worth the queue
// position they hold
func (m *Manager) tiny(resting, desired decimal.Decimal) bool {
	if m.cfg.TinyOrderFraction <= 0 || !desired.IsPositive() {
		return false
	}
	threshold := desired.Mul(decimal.NewFromFloat(m.cfg.TinyOrderFraction))
	return resting.LessThan(threshold)
}

// placement builds a post-only GTT limit with its own expiry, so staleness
// is bounded even if a future tick never arrives
func (m *Manager) placement(bookID string, side core.Side, price, qty decimal.Decimal, d core.QuoteDecision) core.OrderIntent {
	return core.OrderIntent{
		Type:          core.IntentPlaceLimit,
		BookID:        bookID,
		Side:          side,
		Quantity:      qty,
		Price:         price,
		TimeInForce:   core.TIFGoodTillTime,
		Expiry:        d.Expiry,
		PostOnly:      true,
		STP:           core.STPCancelResting,
		ClientOrderID: uuid.NewString(),
	}
}

package lifecycle

import (
	"testing"
	"time"

	"quote_core/internal/config"
	"quote_core/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		MaxAgeTicks:       5,
		ToleranceTicks:    3,
		TinyOrderFraction: 0.25,
		OrderCountMargin:  5,
		MakerFeeCeiling:   0.001,
	}
}

func testMarket() core.MarketConfig {
	return core.MarketConfig{
		PriceDecimals:    2,
		QuantityDecimals: 4,
		TickInterval:     time.Second,
		MaxOpenOrders:    50,
	}
}

func twoSided() core.QuoteDecision {
	return core.QuoteDecision{
		BidPrice: decimal.NewFromFloat(99.50),
		AskPrice: decimal.NewFromFloat(100.50),
		BidQty:   decimal.NewFromFloat(1),
		AskQty:   decimal.NewFromFloat(1),
		QuoteBid: true,
		QuoteAsk: true,
		Expiry:   30 * time.Second,
	}
}

func placements(intents []core.OrderIntent) []core.OrderIntent {
	var out []core.OrderIntent
	for _, in := range intents {
		if in.Type == core.IntentPlaceLimit {
			out = append(out, in)
		}
	}
	return out
}

func cancelledIDs(intents []core.OrderIntent) []int64 {
	var out []int64
	for _, in := range intents {
		if in.Type == core.IntentCancel {
			out = append(out, in.OrderIDs...)
		}
	}
	return out
}

func TestReconcile_EmptyBookPlacesBothSides(t *testing.T) {
	m := NewManager(testConfig())

	intents := m.Reconcile("BTC-0", &core.AccountState{}, twoSided(), testMarket(), 0)
	require.Len(t, intents, 2)

	for _, in := range intents {
		assert.Equal(t, core.IntentPlaceLimit, in.Type)
		assert.Equal(t, core.TIFGoodTillTime, in.TimeInForce)
		assert.Equal(t, 30*time.Second, in.Expiry)
		assert.True(t, in.PostOnly)
		assert.Equal(t, core.STPCancelResting, in.STP)
		assert.NotEmpty(t, in.ClientOrderID)
	}
	assert.NotEqual(t, intents[0].ClientOrderID, intents[1].ClientOrderID)
}

func TestReconcile_AcceptableOrdersAreKept(t *testing.T) {
	m := NewManager(testConfig())
	acct := &core.AccountState{OpenOrders: []core.OpenOrder{
		{ID: 1, Side: core.SideBuy, Price: decimal.NewFromFloat(99.49), Quantity: decimal.NewFromFloat(1)},
		{ID: 2, Side: core.SideSell, Price: decimal.NewFromFloat(100.52), Quantity: decimal.NewFromFloat(1)},
	}}

	intents := m.Reconcile("BTC-0", acct, twoSided(), testMarket(), 0)
	assert.Empty(t, intents, "both sides within tolerance, nothing to do")
}

func TestReconcile_Idempotent(t *testing.T) {
	m := NewManager(testConfig())
	d := twoSided()

	first := m.Reconcile("BTC-0", &core.AccountState{}, d, testMarket(), 0)
	require.Len(t, placements(first), 2)

	// Venue acked the placements; same decision next tick
	acct := &core.AccountState{OpenOrders: []core.OpenOrder{
		{ID: 1, Side: core.SideBuy, Price: d.BidPrice, Quantity: d.BidQty, PlacedAt: 0},
		{ID: 2, Side: core.SideSell, Price: d.AskPrice, Quantity: d.AskQty, PlacedAt: 0},
	}}
	second := m.Reconcile("BTC-0", acct, d, testMarket(), time.Second.Nanoseconds())
	assert.Empty(t, second, "no churn when the book already matches")
}

func TestReconcile_StaleByAge(t *testing.T) {
	m := NewManager(testConfig())
	d := twoSided()
	acct := &core.AccountState{OpenOrders: []core.OpenOrder{
		{ID: 1, Side: core.SideBuy, Price: d.BidPrice, Quantity: d.BidQty, PlacedAt: 0},
	}}

	now := (6 * time.Second).Nanoseconds() // past 5 tick max age
	intents := m.Reconcile("BTC-0", acct, d, testMarket(), now)
	assert.Equal(t, []int64{1}, cancelledIDs(intents))
	require.Len(t, placements(intents), 2, "replaced plus the missing ask")
}

func TestReconcile_StaleByDrift(t *testing.T) {
	m := NewManager(testConfig())
	d := twoSided()
	acct := &core.AccountState{OpenOrders: []core.OpenOrder{
		// 4 ticks off the desired bid, tolerance is 3
		{ID: 1, Side: core.SideBuy, Price: decimal.NewFromFloat(99.46), Quantity: d.BidQty},
		{ID: 2, Side: core.SideSell, Price: d.AskPrice, Quantity: d.AskQty},
	}}

	intents := m.Reconcile("BTC-0", acct, d, testMarket(), 0)
	assert.Equal(t, []int64{1}, cancelledIDs(intents))

	places := placements(intents)
	require.Len(t, places, 1)
	assert.Equal(t, core.SideBuy, places[0].Side)
}

func TestReconcile_TinyOrderCleanup(t *testing.T) {
	m := NewManager(testConfig())
	d := twoSided()
	acct := &core.AccountState{OpenOrders: []core.OpenOrder{
		// Partial fill leftover at 10% of desired size
		{ID: 1, Side: core.SideBuy, Price: d.BidPrice, Quantity: decimal.NewFromFloat(0.1)},
	}}

	intents := m.Reconcile("BTC-0", acct, d, testMarket(), 0)
	assert.Equal(t, []int64{1}, cancelledIDs(intents))
}

func TestReconcile_SuppressedSideIsCancelledNotReplaced(t *testing.T) {
	m := NewManager(testConfig())
	d := twoSided()
	d.QuoteBid = false
	acct := &core.AccountState{OpenOrders: []core.OpenOrder{
		{ID: 1, Side: core.SideBuy, Price: d.BidPrice, Quantity: d.BidQty},
		{ID: 2, Side: core.SideSell, Price: d.AskPrice, Quantity: d.AskQty},
	}}

	intents := m.Reconcile("BTC-0", acct, d, testMarket(), 0)
	assert.Equal(t, []int64{1}, cancelledIDs(intents))
	assert.Empty(t, placements(intents))
}

func TestReconcile_BulkCancelNearOrderLimit(t *testing.T) {
	m := NewManager(testConfig())
	acct := &core.AccountState{}
	for i := 0; i < 45; i++ { // 50 max, margin 5
		acct.OpenOrders = append(acct.OpenOrders, core.OpenOrder{ID: int64(i), Side: core.SideBuy})
	}

	intents := m.Reconcile("BTC-0", acct, twoSided(), testMarket(), 0)
	require.Len(t, intents, 1)
	assert.Equal(t, core.IntentCancel, intents[0].Type)
	assert.Len(t, intents[0].OrderIDs, 45)
	assert.Empty(t, placements(intents), "no placements on a bulk cancel tick")
}

func TestReconcile_MakerFeeGuard(t *testing.T) {
	m := NewManager(testConfig())
	acct := &core.AccountState{
		MakerFeeRate: decimal.NewFromFloat(0.002), // above the 0.001 ceiling
		OpenOrders: []core.OpenOrder{
			{ID: 7, Side: core.SideSell, Price: decimal.NewFromFloat(100.50), Quantity: decimal.NewFromFloat(1)},
		},
	}

	intents := m.Reconcile("BTC-0", acct, twoSided(), testMarket(), 0)
	assert.Equal(t, []int64{7}, cancelledIDs(intents))
	assert.Empty(t, placements(intents))
}

package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of an order or trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PriceLevel is one aggregated level of an order book
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// TradeEvent is one recent execution on a book
type TradeEvent struct {
	Side      Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp int64 // simulation nanoseconds
}

// BookSnapshot is the per-tick view of one book: bids descending, asks
// ascending, plus a bounded window of recent trades
type BookSnapshot struct {
	BookID    string
	Sequence  int64
	Timestamp int64
	Bids      []PriceLevel
	Asks      []PriceLevel
	Events    []TradeEvent
}

// BestBid returns the top bid level, false if the side is empty
func (b *BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level, false if the side is empty
func (b *BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Mid returns the midpoint of the touch, false when either side is empty
func (b *BookSnapshot) Mid() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Spread returns bestAsk - bestBid, false when either side is empty
func (b *BookSnapshot) Spread() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// OpenOrder is one resting order owned by the responding party
type OpenOrder struct {
	ID       int64
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	PlacedAt int64
}

// AccountState is the per-book account view supplied each tick
type AccountState struct {
	BaseTotal      decimal.Decimal
	BaseFree       decimal.Decimal
	BaseLoan       decimal.Decimal
	BaseCollateral decimal.Decimal
	QuoteTotal     decimal.Decimal
	QuoteFree      decimal.Decimal
	QuoteLoan      decimal.Decimal
	MakerFeeRate   decimal.Decimal
	OpenOrders     []OpenOrder
}

// BaseExposure is the net base position, loans and collateral netted out
func (a *AccountState) BaseExposure() decimal.Decimal {
	return a.BaseTotal.Add(a.BaseCollateral).Sub(a.BaseLoan)
}

// Wealth marks the account to the given mid price
func (a *AccountState) Wealth(mid decimal.Decimal) decimal.Decimal {
	return a.QuoteTotal.Sub(a.QuoteLoan).Add(a.BaseExposure().Mul(mid))
}

// MarketConfig carries the global precision and venue limits for a session
type MarketConfig struct {
	PriceDecimals    int
	QuantityDecimals int
	TickInterval     time.Duration
	MaxOpenOrders    int
	WealthReference  decimal.Decimal
}

// Tick returns the smallest price increment
func (c MarketConfig) Tick() decimal.Decimal {
	return decimal.New(1, int32(-c.PriceDecimals))
}

// StateUpdate is one inbound tick from the transport collaborator
type StateUpdate struct {
	SessionID string
	Timestamp int64
	Config    MarketConfig
	Books     map[string]*BookSnapshot
	Accounts  map[string]*AccountState
}

// Signals holds the transient per-tick features; recomputed every tick,
// never persisted
type Signals struct {
	Imbalance          float64 // [-1, 1]
	TradeFlow          float64 // [-1, 1]
	Microprice         float64
	Volatility         float64 // >= 0
	InventoryDeviation float64
	Toxic              bool
	ToxicSide          Side // side facing adverse selection; empty when !Toxic
}

// QuoteDecision is the pricing engine output for one book
type QuoteDecision struct {
	BidPrice decimal.Decimal
	AskPrice decimal.Decimal
	BidQty   decimal.Decimal
	AskQty   decimal.Decimal
	QuoteBid bool
	QuoteAsk bool
	Expiry   time.Duration
}

// TimeInForce classifies order lifetime at the venue
type TimeInForce string

const (
	TIFGoodTillTime      TimeInForce = "GTT"
	TIFImmediateOrCancel TimeInForce = "IOC"
)

// SelfTradePolicy resolves an order crossing the same party's resting order
type SelfTradePolicy string

const (
	STPCancelResting  SelfTradePolicy = "CANCEL_RESTING"
	STPCancelIncoming SelfTradePolicy = "CANCEL_INCOMING"
	STPCancelBoth     SelfTradePolicy = "CANCEL_BOTH"
)

// IntentType tags the OrderIntent variant
type IntentType string

const (
	IntentPlaceLimit  IntentType = "PLACE_LIMIT"
	IntentPlaceMarket IntentType = "PLACE_MARKET"
	IntentCancel      IntentType = "CANCEL"
)

// OrderIntent is one order-management instruction for the execution venue
type OrderIntent struct {
	Type          IntentType
	BookID        string
	Side          Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TimeInForce   TimeInForce
	Expiry        time.Duration
	PostOnly      bool
	STP           SelfTradePolicy
	ClientOrderID string
	// Cancel only
	OrderIDs []int64
}

// Response is the outbound batch for one tick
type Response struct {
	SessionID string
	Timestamp int64
	Intents   []OrderIntent
}

// BookResult is the outcome of one book's decision pipeline. Either Intents
// or Err is populated; a failed book contributes nothing to the response.
type BookResult struct {
	BookID  string
	Intents []OrderIntent
	Err     error
}

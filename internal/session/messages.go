package session

import (
	"encoding/json"
	"time"

	"quote_core/internal/core"

	"github.com/shopspring/decimal"
)

// Message is the envelope for every frame on the wire
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message type constants
const (
	TypeStateUpdate  = "state_update"
	TypeSessionReset = "session_reset"
	TypeResponse     = "response"
	TypeError        = "error"
)

// PriceLevelMsg mirrors core.PriceLevel on the wire
type PriceLevelMsg struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// TradeEventMsg mirrors core.TradeEvent on the wire
type TradeEventMsg struct {
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp int64           `json:"timestamp"`
}

// BookMsg is one book snapshot as sent by the venue
type BookMsg struct {
	BookID    string          `json:"book_id"`
	Sequence  int64           `json:"sequence"`
	Timestamp int64           `json:"timestamp"`
	Bids      []PriceLevelMsg `json:"bids"`
	Asks      []PriceLevelMsg `json:"asks"`
	Events    []TradeEventMsg `json:"events,omitempty"`
}

// AccountMsg is the per-book account view as sent by the venue
type AccountMsg struct {
	BaseTotal      decimal.Decimal `json:"base_total"`
	BaseFree       decimal.Decimal `json:"base_free"`
	BaseLoan       decimal.Decimal `json:"base_loan"`
	BaseCollateral decimal.Decimal `json:"base_collateral"`
	QuoteTotal     decimal.Decimal `json:"quote_total"`
	QuoteFree      decimal.Decimal `json:"quote_free"`
	QuoteLoan      decimal.Decimal `json:"quote_loan"`
	MakerFeeRate   decimal.Decimal `json:"maker_fee_rate"`
	OpenOrders     []OpenOrderMsg  `json:"open_orders,omitempty"`
}

// OpenOrderMsg is one resting order in the account view
type OpenOrderMsg struct {
	ID       int64           `json:"id"`
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	PlacedAt int64           `json:"placed_at"`
}

// MarketConfigMsg carries the session-wide venue parameters
type MarketConfigMsg struct {
	PriceDecimals    int             `json:"price_decimals"`
	QuantityDecimals int             `json:"quantity_decimals"`
	TickIntervalMs   int64           `json:"tick_interval_ms"`
	MaxOpenOrders    int             `json:"max_open_orders"`
	WealthReference  decimal.Decimal `json:"wealth_reference"`
}

// StateUpdateMsg is one inbound tick
type StateUpdateMsg struct {
	SessionID string                `json:"session_id"`
	Timestamp int64                 `json:"timestamp"`
	Config    MarketConfigMsg       `json:"config"`
	Books     map[string]BookMsg    `json:"books"`
	Accounts  map[string]AccountMsg `json:"accounts"`
}

// SessionResetMsg announces a session boundary
type SessionResetMsg struct {
	SessionID string `json:"session_id"`
}

// IntentMsg is one order-management instruction in the reply
type IntentMsg struct {
	Type          string          `json:"type"`
	BookID        string          `json:"book_id"`
	Side          string          `json:"side,omitempty"`
	Quantity      decimal.Decimal `json:"quantity,omitempty"`
	Price         decimal.Decimal `json:"price,omitempty"`
	TimeInForce   string          `json:"time_in_force,omitempty"`
	ExpiryMs      int64           `json:"expiry_ms,omitempty"`
	PostOnly      bool            `json:"post_only,omitempty"`
	STP           string          `json:"stp,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	OrderIDs      []int64         `json:"order_ids,omitempty"`
}

// ResponseMsg is the outbound batch for one tick
type ResponseMsg struct {
	SessionID string      `json:"session_id"`
	Timestamp int64       `json:"timestamp"`
	Intents   []IntentMsg `json:"intents"`
}

// ErrorMsg reports a malformed frame back to the sender
type ErrorMsg struct {
	Message string `json:"message"`
}

// ToDomain converts the wire update into the engine's input
func (m *StateUpdateMsg) ToDomain() *core.StateUpdate {
	upd := &core.StateUpdate{
		SessionID: m.SessionID,
		Timestamp: m.Timestamp,
		Config: core.MarketConfig{
			PriceDecimals:    m.Config.PriceDecimals,
			QuantityDecimals: m.Config.QuantityDecimals,
			TickInterval:     time.Duration(m.Config.TickIntervalMs) * time.Millisecond,
			MaxOpenOrders:    m.Config.MaxOpenOrders,
			WealthReference:  m.Config.WealthReference,
		},
		Books:    make(map[string]*core.BookSnapshot, len(m.Books)),
		Accounts: make(map[string]*core.AccountState, len(m.Accounts)),
	}
	for id, b := range m.Books {
		upd.Books[id] = b.toDomain(id)
	}
	for id, a := range m.Accounts {
		upd.Accounts[id] = a.toDomain()
	}
	return upd
}

func (b BookMsg) toDomain(id string) *core.BookSnapshot {
	snap := &core.BookSnapshot{
		BookID:    id,
		Sequence:  b.Sequence,
		Timestamp: b.Timestamp,
		Bids:      make([]core.PriceLevel, len(b.Bids)),
		Asks:      make([]core.PriceLevel, len(b.Asks)),
	}
	for i, l := range b.Bids {
		snap.Bids[i] = core.PriceLevel{Price: l.Price, Quantity: l.Quantity}
	}
	for i, l := range b.Asks {
		snap.Asks[i] = core.PriceLevel{Price: l.Price, Quantity: l.Quantity}
	}
	for _, ev := range b.Events {
		snap.Events = append(snap.Events, core.TradeEvent{
			Side:      core.Side(ev.Side),
			Price:     ev.Price,
			Quantity:  ev.Quantity,
			Timestamp: ev.Timestamp,
		})
	}
	return snap
}

func (a AccountMsg) toDomain() *core.AccountState {
	acct := &core.AccountState{
		BaseTotal:      a.BaseTotal,
		BaseFree:       a.BaseFree,
		BaseLoan:       a.BaseLoan,
		BaseCollateral: a.BaseCollateral,
		QuoteTotal:     a.QuoteTotal,
		QuoteFree:      a.QuoteFree,
		QuoteLoan:      a.QuoteLoan,
		MakerFeeRate:   a.MakerFeeRate,
	}
	for _, o := range a.OpenOrders {
		acct.OpenOrders = append(acct.OpenOrders, core.OpenOrder{
			ID:       o.ID,
			Side:     core.Side(o.Side),
			Price:    o.Price,
			Quantity: o.Quantity,
			PlacedAt: o.PlacedAt,
		})
	}
	return acct
}

// NewResponseMsg converts the engine's output for the wire
func NewResponseMsg(resp *core.Response) ResponseMsg {
	out := ResponseMsg{
		SessionID: resp.SessionID,
		Timestamp: resp.Timestamp,
		Intents:   make([]IntentMsg, 0, len(resp.Intents)),
	}
	for _, in := range resp.Intents {
		out.Intents = append(out.Intents, IntentMsg{
			Type:          string(in.Type),
			BookID:        in.BookID,
			Side:          string(in.Side),
			Quantity:      in.Quantity,
			Price:         in.Price,
			TimeInForce:   string(in.TimeInForce),
			ExpiryMs:      in.Expiry.Milliseconds(),
			PostOnly:      in.PostOnly,
			STP:           string(in.STP),
			ClientOrderID: in.ClientOrderID,
			OrderIDs:      in.OrderIDs,
		})
	}
	return out
}

// NewMessage wraps a payload in the wire envelope
func NewMessage(msgType string, data interface{}) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Data: raw}, nil
}

// Package signal computes the per-tick order-book features
package signal

import (
	"quote_core/internal/config"
	"quote_core/internal/core"
	"quote_core/pkg/quant"
)

// Full-signal scale of the short-horizon return proxy: a 10 bp one-tick
// move saturates it. Used only to de-starve trade flow in thin windows.
const returnProxyScale = 0.001

// Extractor computes imbalance, microprice and trade-flow imbalance from a
// snapshot. Stateless; all outputs are defined for degenerate inputs and
// neutral (0) when volume is absent.
type Extractor struct {
	cfg config.SignalConfig
}

func NewExtractor(cfg config.SignalConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Imbalance returns (bidVol-askVol)/(bidVol+askVol) over the top depth
// levels of each side, clamped to [-1, 1]. Zero when total volume is zero.
func (e *Extractor) Imbalance(book *core.BookSnapshot, depth int) float64 {
	if depth <= 0 {
		depth = e.cfg.ImbalanceDepth
	}

	var bidVol, askVol float64
	for i := 0; i < depth && i < len(book.Bids); i++ {
		bidVol += book.Bids[i].Quantity.InexactFloat64()
	}
	for i := 0; i < depth && i < len(book.Asks); i++ {
		askVol += book.Asks[i].Quantity.InexactFloat64()
	}

	total := bidVol + askVol
	if total <= 0 {
		return 0
	}
	return quant.ClampSignal((bidVol - askVol) / total)
}

// Microprice returns the size-weighted price between best bid and ask:
// (bestAsk*bidQty + bestBid*askQty) / (bidQty+askQty). Falls back to the
// plain midpoint when top-of-book quantity is zero, and to zero when either
// side is empty.
func (e *Extractor) Microprice(book *core.BookSnapshot) float64 {
	bid, okB := book.BestBid()
	ask, okA := book.BestAsk()
	if !okB || !okA {
		return 0
	}

	bestBid := bid.Price.InexactFloat64()
	bestAsk := ask.Price.InexactFloat64()
	bidQty := bid.Quantity.InexactFloat64()
	askQty := ask.Quantity.InexactFloat64()

	total := bidQty + askQty
	if total <= 0 {
		return (bestBid + bestAsk) / 2
	}
	return (bestAsk*bidQty + bestBid*askQty) / total
}

// TradeFlow returns (buyQty-sellQty)/(buyQty+sellQty) over the most recent
// event window, clamped to [-1, 1]. When the window holds fewer than
// flow_min_trades events, a clipped one-tick return proxy is blended in so
// the signal does not starve on thin books. Zero with no trades and no
// usable previous mid.
func (e *Extractor) TradeFlow(events []core.TradeEvent, mid, prevMid float64) float64 {
	window := events
	if len(window) > e.cfg.FlowWindow {
		window = window[len(window)-e.cfg.FlowWindow:]
	}

	var buyQty, sellQty float64
	for _, ev := range window {
		q := ev.Quantity.InexactFloat64()
		if ev.Side == core.SideBuy {
			buyQty += q
		} else {
			sellQty += q
		}
	}

	flow := 0.0
	total := buyQty + sellQty
	if total > 0 {
		flow = quant.ClampSignal((buyQty - sellQty) / total)
	}

	if len(window) < e.cfg.FlowMinTrades && prevMid > 0 && mid > 0 {
		proxy := quant.ClampSignal((mid/prevMid - 1) / returnProxyScale)
		w := e.cfg.FlowReturnWeight
		flow = (1-w)*flow + w*proxy
	}

	return quant.ClampSignal(flow)
}

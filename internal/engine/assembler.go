package engine

import (
	"context"
	"fmt"

	"quote_core/internal/core"
	"quote_core/internal/risk"
	apperrors "quote_core/pkg/errors"
	"quote_core/pkg/quant"
	"quote_core/pkg/telemetry"
)

// processBook runs one book through the full pipeline inside a failure
// boundary. A panic or error stays inside the returned BookResult; it never
// reaches a sibling book or aborts the tick.
func (e *Engine) processBook(ctx context.Context, upd *core.StateUpdate, bookID string) (result core.BookResult) {
	result.BookID = bookID
	metrics := telemetry.GetGlobalMetrics()

	defer func() {
		if r := recover(); r != nil {
			result.Intents = nil
			result.Err = fmt.Errorf("book %s: panic in decision pipeline: %v", bookID, r)
			metrics.AddBookSkipped(ctx, "panic")
		}
	}()

	book := upd.Books[bookID]
	acct, ok := upd.Accounts[bookID]
	if !ok || acct == nil {
		metrics.AddBookSkipped(ctx, "missing_account")
		result.Err = fmt.Errorf("book %s: %w", bookID, apperrors.ErrMissingAccount)
		return result
	}
	if book == nil {
		metrics.AddBookSkipped(ctx, "missing_book")
		result.Err = fmt.Errorf("book %s: %w", bookID, apperrors.ErrMissingBook)
		return result
	}

	midD, ok := book.Mid()
	if !ok || !midD.IsPositive() {
		// Nothing to price against; clear what rests and come back next tick
		metrics.AddBookSkipped(ctx, "empty_book")
		result.Intents = e.orders.Reconcile(bookID, acct, core.QuoteDecision{}, upd.Config, upd.Timestamp)
		return result
	}
	mid := midD.InexactFloat64()

	bs := e.states.Get(upd.SessionID, bookID)
	prevMid := bs.LastMid

	vol := e.vol.Observe(bs, mid)
	volFloored := e.vol.Floored(vol)
	volMult := e.vol.Multiplier(volFloored)

	sig := &core.Signals{
		Imbalance:  e.extractor.Imbalance(book, 0),
		TradeFlow:  e.extractor.TradeFlow(book.Events, mid, prevMid),
		Microprice: e.extractor.Microprice(book),
		Volatility: volFloored,
	}

	recentReturn := 0.0
	if prevMid > 0 {
		recentReturn = mid/prevMid - 1
	}
	e.pricer.DetectToxicity(sig, recentReturn)
	if sig.Toxic && e.profile.Pricing.ToxicCooldownTicks > 0 {
		until := upd.Timestamp + int64(e.profile.Pricing.ToxicCooldownTicks)*upd.Config.TickInterval.Nanoseconds()
		if until > bs.CooldownUntil {
			bs.CooldownUntil = until
		}
	}

	dev := e.inventory.Deviation(acct, bs, mid)
	assessment := e.inventory.Assess(dev)
	if e.profile.Inventory.HardCap > 0 {
		sig.InventoryDeviation = quant.ClampSignal(dev / e.profile.Inventory.HardCap)
	}
	metrics.SetInventoryDeviation(bookID, dev)
	metrics.SetVolatility(bookID, volFloored)

	wealth := acct.Wealth(midD).InexactFloat64()
	lossCooling := e.inventory.LossCooldown(bs, wealth, upd.Timestamp, upd.Config.TickInterval.Nanoseconds())
	toxicCooling := upd.Timestamp < bs.CooldownUntil

	var intents []core.OrderIntent
	if assessment.Regime == risk.RegimeHard {
		intents = e.inventory.DeriskIntents(bookID, acct, book, assessment, upd.Config, mid)
	}

	decision, err := e.pricer.Quote(book, upd.Config, acct, sig, assessment, volMult)
	if err != nil {
		// Locked or crossed books cannot be quoted; de-risk and resting
		// order cleanup still go out this tick
		metrics.AddBookSkipped(ctx, "degenerate_price")
		decision = core.QuoteDecision{}
	}
	if lossCooling || toxicCooling {
		// Cooling books cancel but do not quote
		decision.QuoteBid = false
		decision.QuoteAsk = false
	}

	reconciled := e.orders.Reconcile(bookID, acct, decision, upd.Config, upd.Timestamp)
	result.Intents = append(intents, e.dedupeCancels(intents, reconciled)...)
	return result
}

// dedupeCancels strips order ids already cancelled by the de-risk intents
// from the lifecycle batch, so the venue never sees a double cancel
func (e *Engine) dedupeCancels(prior, batch []core.OrderIntent) []core.OrderIntent {
	already := make(map[int64]bool)
	for _, in := range prior {
		if in.Type == core.IntentCancel {
			for _, id := range in.OrderIDs {
				already[id] = true
			}
		}
	}
	if len(already) == 0 {
		return batch
	}

	out := batch[:0]
	for _, in := range batch {
		if in.Type != core.IntentCancel {
			out = append(out, in)
			continue
		}
		var ids []int64
		for _, id := range in.OrderIDs {
			if !already[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			in.OrderIDs = ids
			out = append(out, in)
		}
	}
	return out
}

// Package engine runs the per-tick decision pipeline: one synchronous pass
// per state update, kill-switch checkpoint first, then every book through
// its own failure boundary.
package engine

import (
	"context"
	"sync"
	"time"

	"quote_core/internal/config"
	"quote_core/internal/core"
	"quote_core/internal/lifecycle"
	"quote_core/internal/pricing"
	"quote_core/internal/risk"
	"quote_core/internal/signal"
	"quote_core/internal/state"
	"quote_core/pkg/telemetry"
)

// Engine implements core.IDecider. All mutable per-book state lives in the
// state store; ticks for the same session are serialized on a per-session
// lock, so duplicate connections carrying one session id cannot race.
type Engine struct {
	profile   config.Profile
	states    *state.BookStateStore
	extractor *signal.Extractor
	vol       *signal.VolatilityTracker
	inventory *risk.InventoryRiskController
	pricer    *pricing.Engine
	orders    *lifecycle.Manager
	kill      core.IKillSwitch
	archiver  core.IArchiver
	logger    core.ILogger

	sessionLocks sync.Map // session id -> *sync.Mutex
}

func New(cfg *config.Config, kill core.IKillSwitch, archiver core.IArchiver, logger core.ILogger) (*Engine, error) {
	profile, err := cfg.ActiveProfile()
	if err != nil {
		return nil, err
	}
	return &Engine{
		profile:   profile,
		states:    state.NewBookStateStore(),
		extractor: signal.NewExtractor(profile.Signals),
		vol:       signal.NewVolatilityTracker(profile.Volatility),
		inventory: risk.NewInventoryRiskController(profile.Inventory),
		pricer:    pricing.NewEngine(profile),
		orders:    lifecycle.NewManager(profile.Lifecycle),
		kill:      kill,
		archiver:  archiver,
		logger:    logger,
	}, nil
}

// OnStateUpdate runs one decision pass. The venue always gets a well formed
// response, possibly holding nothing but cancellations.
func (e *Engine) OnStateUpdate(ctx context.Context, upd *core.StateUpdate) *core.Response {
	start := time.Now()
	mu := e.sessionLock(upd.SessionID)
	mu.Lock()
	defer mu.Unlock()

	metrics := telemetry.GetGlobalMetrics()
	metrics.AddTick(ctx)

	resp := &core.Response{
		SessionID: upd.SessionID,
		Timestamp: upd.Timestamp,
	}

	e.observeDrawdown(upd)

	// Read-then-decided checkpoint: tripping mid-tick cannot split the
	// response
	if e.kill.IsTripped(upd.SessionID) {
		resp.Intents = e.cancelEverything(upd)
		e.logger.Warn("session halted by kill switch, cancel-only tick",
			"session_id", upd.SessionID,
			"cancels", len(resp.Intents))
		e.recordIntents(ctx, metrics, resp.Intents)
		metrics.RecordTickLatency(ctx, float64(time.Since(start).Milliseconds()))
		return resp
	}

	cooling := int64(0)
	for bookID := range upd.Books {
		result := e.processBook(ctx, upd, bookID)
		if result.Err != nil {
			e.logger.Error("book pipeline failed, skipping book",
				"session_id", upd.SessionID,
				"book_id", bookID,
				"error", result.Err)
			continue
		}
		resp.Intents = append(resp.Intents, result.Intents...)
		bs := e.states.Get(upd.SessionID, bookID)
		if upd.Timestamp < bs.CooldownUntil || upd.Timestamp < bs.LossCooldownUntil {
			cooling++
		}
	}

	metrics.SetBooksCoolingDown(upd.SessionID, cooling)
	e.recordIntents(ctx, metrics, resp.Intents)
	metrics.RecordTickLatency(ctx, float64(time.Since(start).Milliseconds()))

	if e.archiver != nil {
		e.archiver.Submit(upd)
	}
	return resp
}

// ResetSession drops all per-book state and re-arms the kill switch. The
// next update for the session starts from clean baselines.
func (e *Engine) ResetSession(sessionID string) {
	mu := e.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	e.states.ResetSession(sessionID)
	e.kill.Reset(sessionID)
	e.logger.Info("session reset", "session_id", sessionID)
}

func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	mu, _ := e.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// States exposes the live partitions for persistence and restore
func (e *Engine) States() *state.BookStateStore {
	return e.states
}

// AttachArchiver wires the background archiver in. Call before serving.
func (e *Engine) AttachArchiver(a core.IArchiver) {
	e.archiver = a
}

// observeDrawdown seeds first-tick baselines and feeds the aggregate
// wealth across all books to the kill switch
func (e *Engine) observeDrawdown(upd *core.StateUpdate) {
	var aggWealth, aggBaseline float64
	for bookID, book := range upd.Books {
		acct, ok := upd.Accounts[bookID]
		if !ok || book == nil {
			continue
		}
		mid, ok := book.Mid()
		if !ok || !mid.IsPositive() {
			continue
		}
		wealth := acct.Wealth(mid).InexactFloat64()
		bs := e.states.Get(upd.SessionID, bookID)
		if bs.WealthBaseline == 0 {
			bs.WealthBaseline = wealth
			bs.InventoryBaseline = acct.BaseExposure().InexactFloat64()
		}
		aggWealth += wealth
		aggBaseline += bs.WealthBaseline
	}
	e.kill.ObserveWealth(upd.SessionID, aggWealth, aggBaseline)
}

// cancelEverything emits one bulk cancel per book that still has resting
// orders. Cancellations stay allowed in the halted state.
func (e *Engine) cancelEverything(upd *core.StateUpdate) []core.OrderIntent {
	var intents []core.OrderIntent
	for bookID, acct := range upd.Accounts {
		if acct == nil || len(acct.OpenOrders) == 0 {
			continue
		}
		ids := make([]int64, 0, len(acct.OpenOrders))
		for _, o := range acct.OpenOrders {
			ids = append(ids, o.ID)
		}
		intents = append(intents, core.OrderIntent{
			Type:     core.IntentCancel,
			BookID:   bookID,
			OrderIDs: ids,
		})
	}
	return intents
}

func (e *Engine) recordIntents(ctx context.Context, metrics *telemetry.MetricsHolder, intents []core.OrderIntent) {
	counts := make(map[string]int64)
	for _, in := range intents {
		counts[string(in.Type)]++
	}
	for typ, n := range counts {
		metrics.AddIntents(ctx, typ, n)
	}
}

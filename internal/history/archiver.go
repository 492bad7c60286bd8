// Package history persists per-book decision state off the hot path.
package history

import (
	"context"
	"sync"
	"time"

	"quote_core/internal/core"
	"quote_core/internal/state"
	"quote_core/pkg/concurrency"
	apperrors "quote_core/pkg/errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Archiver snapshots session state into the Store from a worker pool. Each
// session has a single pending slot: a newer snapshot replaces an undrained
// older one, so a slow store can never queue unbounded work and the pipeline
// never waits on a write.
type Archiver struct {
	store  state.Store
	states *state.BookStateStore
	pool   *concurrency.WorkerPool
	saves  failsafe.Executor[any]
	logger core.ILogger

	pending  *concurrency.Slots
	stopped  chan struct{}
	stopOnce sync.Once
}

// Config sizes the archiver worker pool
type Config struct {
	Workers   int
	QueueSize int
}

func NewArchiver(cfg Config, store state.Store, states *state.BookStateStore, logger core.ILogger) *Archiver {
	retry := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool { return err != nil }).
		WithBackoff(50*time.Millisecond, 1*time.Second).
		WithMaxRetries(3).
		Build()
	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	return &Archiver{
		store:  store,
		states: states,
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "archiver",
			MaxWorkers:  cfg.Workers,
			MaxCapacity: cfg.QueueSize,
			NonBlocking: true,
		}, logger),
		saves:   failsafe.With[any](retry, breaker),
		logger:  logger.WithField("component", "archiver"),
		pending: concurrency.NewSlots(),
		stopped: make(chan struct{}),
	}
}

// Submit schedules the session's current state for persistence. Returns
// false when the worker pool is saturated; the snapshot is dropped and the
// next tick resubmits naturally.
func (a *Archiver) Submit(upd *core.StateUpdate) bool {
	select {
	case <-a.stopped:
		return false
	default:
	}

	snapshot := a.states.SnapshotSession(upd.SessionID)
	if snapshot == nil {
		return false
	}

	first := a.pending.Put(upd.SessionID, snapshot)
	if !first {
		// A drain for this session is already queued or running; it will
		// pick up the replaced snapshot
		return true
	}

	if err := a.pool.Submit(func() { a.drain(upd.SessionID) }); err != nil {
		a.pending.Drop(upd.SessionID)
		a.logger.Warn("archive queue saturated, dropping snapshot",
			"session_id", upd.SessionID,
			"error", apperrors.ErrArchiverSaturated)
		return false
	}
	return true
}

// drain writes the latest snapshot for the session, looping in case a newer
// one landed while a write was in progress
func (a *Archiver) drain(sessionID string) {
	for {
		snapshot, ok := a.pending.Take(sessionID)
		if !ok {
			return
		}
		books := snapshot.(map[string]*state.BookState)

		_, err := a.saves.GetWithExecution(func(_ failsafe.Execution[any]) (any, error) {
			return nil, a.store.SaveSession(context.Background(), sessionID, books)
		})
		if err != nil {
			a.logger.Error("session archive failed",
				"session_id", sessionID,
				"books", len(books),
				"error", err)
		}
	}
}

// Stop drains queued work and shuts the pool down. Safe to call twice.
func (a *Archiver) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopped)
		a.pool.Stop()
	})
}

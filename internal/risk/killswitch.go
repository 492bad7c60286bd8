package risk

import (
	"sync"

	"quote_core/pkg/logging"
	"quote_core/pkg/telemetry"
)

// KillSwitch is the aggregate drawdown stop. It watches session wealth
// against the session baseline and, once tripped, stays open until the
// session is explicitly reset. There is no auto-recovery.
type KillSwitch struct {
	mu           sync.RWMutex
	stopFraction float64
	tripped      map[string]bool
}

func NewKillSwitch(stopFraction float64) *KillSwitch {
	return &KillSwitch{
		stopFraction: stopFraction,
		tripped:      make(map[string]bool),
	}
}

// ObserveWealth records one tick's aggregate wealth across all books of a
// session. Trips when the loss against baseline exceeds the stop fraction.
func (k *KillSwitch) ObserveWealth(sessionID string, wealth, baseline float64) {
	if k.stopFraction <= 0 || baseline <= 0 {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.tripped[sessionID] {
		return
	}
	if wealth < baseline*(1-k.stopFraction) {
		k.tripped[sessionID] = true
		logging.Error("drawdown kill switch tripped",
			"session_id", sessionID,
			"wealth", wealth,
			"baseline", baseline,
			"stop_fraction", k.stopFraction)
		telemetry.GetGlobalMetrics().SetKillSwitchOpen(sessionID, true)
	}
}

// IsTripped reports whether the session is in the terminal halted state
func (k *KillSwitch) IsTripped(sessionID string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.tripped[sessionID]
}

// Reset clears the session's halt. Only a session restart calls this.
func (k *KillSwitch) Reset(sessionID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.tripped[sessionID] {
		logging.Info("kill switch reset", "session_id", sessionID)
	}
	delete(k.tripped, sessionID)
	telemetry.GetGlobalMetrics().SetKillSwitchOpen(sessionID, false)
}

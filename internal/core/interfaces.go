// Package core defines the domain types and interfaces for the decision core
package core

import (
	"context"
)

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IDecider turns one state update into one response batch
type IDecider interface {
	OnStateUpdate(ctx context.Context, update *StateUpdate) *Response
	ResetSession(sessionID string)
}

// IKillSwitch is the aggregate drawdown halt shared by all books of a session
type IKillSwitch interface {
	// ObserveWealth records the session's aggregate wealth against its
	// baseline and may trip the switch
	ObserveWealth(sessionID string, wealth, baseline float64)
	IsTripped(sessionID string) bool
	Reset(sessionID string)
}

// IArchiver receives per-tick state for background persistence off the hot path
type IArchiver interface {
	Submit(update *StateUpdate) bool
	Stop()
}

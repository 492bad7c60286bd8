package concurrency

import "sync"

// Slots is a keyed single-slot handoff between one producer and one drainer
// per key. A producer overwrites the slot; the value seen by the drainer is
// always the newest one, older undrained values are discarded.
type Slots struct {
	mu     sync.Mutex
	vals   map[string]interface{}
	active map[string]bool
}

func NewSlots() *Slots {
	return &Slots{
		vals:   make(map[string]interface{}),
		active: make(map[string]bool),
	}
}

// Put stores the value for the key, replacing any undrained predecessor.
// Returns true when the caller must start a drainer for the key; false means
// one is already running and will observe this value.
func (s *Slots) Put(key string, v interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vals[key] = v
	if s.active[key] {
		return false
	}
	s.active[key] = true
	return true
}

// Take removes and returns the pending value. ok=false means the slot is
// empty and the drainer for the key has ended; a later Put starts a new one.
func (s *Slots) Take(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vals[key]
	if !ok {
		delete(s.active, key)
		return nil, false
	}
	delete(s.vals, key)
	return v, true
}

// Drop discards the pending value and ends the drainer without running it.
// Used when the drainer could not be scheduled.
func (s *Slots) Drop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
	delete(s.active, key)
}

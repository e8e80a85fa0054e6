package player

import "sync"

// Store serialises actions against a single State.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore returns a store holding the zero State.
func NewStore() *Store {
	return &Store{}
}

// Dispatch reduces a into the current state and returns the result.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	return s.state
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

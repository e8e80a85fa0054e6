package player

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sessions holds one Controller per connected player, keyed by a random id.
type Sessions struct {
	newController func() *Controller
	idle          time.Duration
	logger        *log.Logger
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	ctrl     *Controller
	lastUsed time.Time
}

// NewSessions creates a registry. Sessions unused for longer than idle are
// removed by Sweep; idle <= 0 disables expiry.
func NewSessions(newController func() *Controller, idle time.Duration, logger *log.Logger) *Sessions {
	if logger == nil {
		logger = log.Default()
	}
	return &Sessions{
		newController: newController,
		idle:          idle,
		logger:        logger,
		now:           time.Now,
		sessions:      make(map[string]*session),
	}
}

// Create starts a new session and returns its id.
func (s *Sessions) Create() (string, *Controller) {
	id := uuid.NewString()
	ctrl := s.newController()

	s.mu.Lock()
	s.sessions[id] = &session{ctrl: ctrl, lastUsed: s.now()}
	s.mu.Unlock()

	return id, ctrl
}

// Get returns the session's controller and marks it as used.
func (s *Sessions) Get(id string) (*Controller, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastUsed = s.now()
	return sess.ctrl, true
}

// Delete ends a session. It reports whether the session existed.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.ctrl.Close()
	}
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes idle sessions and returns how many were removed.
func (s *Sessions) Sweep() int {
	if s.idle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idle)

	var expired []*session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.ctrl.Close()
	}
	if len(expired) > 0 {
		s.logger.Printf("expired %d idle player sessions", len(expired))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

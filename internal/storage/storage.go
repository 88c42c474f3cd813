package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/metar-view/internal/view"
)

const defaultSessionTTL = 30 * time.Minute

// ErrClosed is returned by Acquire once the store has been closed.
var ErrClosed = errors.New("session store closed")

// Factory builds a fresh, unmounted view controller for a new session.
type Factory func() *view.Controller

// Sessions provides access to per-browser view controllers.
type Sessions interface {
	Acquire(id string) (string, *view.Controller, bool, error)
	Touch(id string) bool
	Len() int
}

type session struct {
	controller *view.Controller
	lastSeen   time.Time
}

// MemorySessions keeps sessions in-memory and guards access with a RWMutex.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool

	factory Factory
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures MemorySessions.
type Option func(*MemorySessions)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *MemorySessions) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTTL sets how long an idle session is kept.
func WithTTL(ttl time.Duration) Option {
	return func(s *MemorySessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewMemorySessions creates an empty store that builds controllers with factory.
func NewMemorySessions(factory Factory, logger *zap.Logger, opts ...Option) *MemorySessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemorySessions{
		sessions: make(map[string]*session),
		factory:  factory,
		ttl:      defaultSessionTTL,
		now:      time.Now,
		logger:   logger.Named("sessions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire returns the mounted controller for id, creating a session when id
// is empty or unknown. The returned id is the one to hand back to the
// client; created reports whether a new session was started.
func (s *MemorySessions) Acquire(id string) (string, *view.Controller, bool, error) {
	now := s.now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", nil, false, ErrClosed
	}
	if existing, ok := s.sessions[id]; ok {
		existing.lastSeen = now
		s.mu.Unlock()
		return id, existing.controller, false, nil
	}
	s.mu.Unlock()

	controller := s.factory()
	newID := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		controller.Close()
		return "", nil, false, ErrClosed
	}
	s.sessions[newID] = &session{controller: controller, lastSeen: now}
	s.mu.Unlock()

	controller.Mount()
	s.logger.Debug("session created", zap.String("session_id", newID))
	return newID, controller, true, nil
}

// Touch marks the session as seen now without creating one. It reports
// whether id is a live session.
func (s *MemorySessions) Touch(id string) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok {
		sess.lastSeen = now
	}
	return ok
}

// Len returns the number of live sessions.
func (s *MemorySessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// Sweep closes and removes sessions idle for longer than the TTL as of now.
// It returns how many sessions were removed.
func (s *MemorySessions) Sweep(now time.Time) int {
	var expired []*view.Controller

	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.ttl {
			expired = append(expired, sess.controller)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, controller := range expired {
		controller.Close()
	}
	if len(expired) > 0 {
		s.logger.Debug("expired sessions removed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *MemorySessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Close closes every session. Later Acquire calls fail with ErrClosed.
func (s *MemorySessions) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.controller.Close()
	}
}

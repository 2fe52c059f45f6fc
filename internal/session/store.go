// Package session keeps per-user filter and revision state in memory.
//
// A Store maps session IDs to Sessions. The store lock only guards the map;
// each Session carries its own mutex so one user's interaction cycles run in
// order without blocking anyone else. Idle sessions expire after a TTL and the
// least recently used session is evicted when the store is full.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "allocator/internal/errors"
)

// Eviction reasons passed to Options.OnEvict
const (
	ReasonExpired  = "expired"
	ReasonCapacity = "capacity"
	ReasonDeleted  = "deleted"
)

// Session is one user's transient workspace
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	state    *State
	lastSeen atomic.Int64
}

// Do runs fn with exclusive access to the session state
func (s *Session) Do(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// LastSeen returns the last time the session was looked up
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Options configures a Store
type Options struct {
	TTL time.Duration
	Max int

	// OnEvict is called after a session leaves the store, outside the store lock
	OnEvict func(id, reason string)

	// Now overrides the clock, for tests
	Now func() time.Time
}

// Store holds live sessions
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
	logger   *slog.Logger
}

// NewStore creates an empty store
func NewStore(opts Options, logger *slog.Logger) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   logger.With(slog.String("component", "session_store")),
	}
}

// Create registers a new session, evicting the least recently used one when full
func (st *Store) Create() *Session {
	now := st.opts.Now()
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		state:     NewState(),
	}
	s.touch(now)

	var evicted string
	st.mu.Lock()
	if st.opts.Max > 0 && len(st.sessions) >= st.opts.Max {
		evicted = st.evictOldestLocked()
	}
	st.sessions[s.ID] = s
	st.mu.Unlock()

	if evicted != "" {
		st.logger.Info("session evicted", slog.String("session_id", evicted), slog.String("reason", ReasonCapacity))
		st.notify(evicted, ReasonCapacity)
	}
	st.logger.Debug("session created", slog.String("session_id", s.ID))
	return s
}

// Get returns a live session and marks it used
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}

	now := st.opts.Now()
	if st.expired(s, now) {
		st.remove(id, ReasonExpired)
		return nil, apperrors.ErrSessionNotFound
	}
	s.touch(now)
	return s, nil
}

// Delete discards a session
func (st *Store) Delete(id string) error {
	if !st.remove(id, ReasonDeleted) {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

// Len returns the number of sessions held
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// ExpiresAt returns when s expires if it stays idle
func (st *Store) ExpiresAt(s *Session) time.Time {
	return s.LastSeen().Add(st.opts.TTL)
}

// Sweep removes expired sessions and returns how many were removed
func (st *Store) Sweep() int {
	now := st.opts.Now()

	st.mu.Lock()
	var expired []string
	for id, s := range st.sessions {
		if st.expired(s, now) {
			delete(st.sessions, id)
			expired = append(expired, id)
		}
	}
	st.mu.Unlock()

	for _, id := range expired {
		st.notify(id, ReasonExpired)
	}
	if len(expired) > 0 {
		st.logger.Info("expired sessions removed", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is done
func (st *Store) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

func (st *Store) expired(s *Session, now time.Time) bool {
	return st.opts.TTL > 0 && now.Sub(s.LastSeen()) > st.opts.TTL
}

func (st *Store) remove(id, reason string) bool {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		st.notify(id, reason)
	}
	return ok
}

func (st *Store) evictOldestLocked() string {
	var (
		oldestID   string
		oldestSeen int64
	)
	for id, s := range st.sessions {
		seen := s.lastSeen.Load()
		if oldestID == "" || seen < oldestSeen {
			oldestID, oldestSeen = id, seen
		}
	}
	if oldestID != "" {
		delete(st.sessions, oldestID)
	}
	return oldestID
}

func (st *Store) notify(id, reason string) {
	if st.opts.OnEvict != nil {
		st.opts.OnEvict(id, reason)
	}
}

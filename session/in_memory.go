package session

import (
	"sync"
	"time"

	"github.com/hupe1980/miniclaw/core"
)

// InMemoryStore is a volatile Store storing sessions in a process local map.
// It is safe for concurrent access. Returned sessions are clones.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Get returns an existing session (clone) or creates a new one lazily.
func (s *InMemoryStore) Get(id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	if ok {
		defer s.mu.RUnlock()
		return sess.Clone(), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreateLocked(id).Clone(), nil
}

// Append adds messages to the session transcript, creating the session when
// needed. System messages are skipped; the loop regenerates the system prompt
// on every run.
func (s *InMemoryStore) Append(id string, msgs ...core.Message) error {
	if id == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			continue
		}
		sess.Messages = append(sess.Messages, m.Clone())
	}
	sess.UpdatedAt = s.now()

	return nil
}

// Reset removes the session entirely. Resetting an unknown id is a no-op.
func (s *InMemoryStore) Reset(id string) error {
	if id == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)

	return nil
}

// Len returns the number of live sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// getOrCreateLocked requires the write lock.
func (s *InMemoryStore) getOrCreateLocked(id string) *Session {
	if sess, ok := s.sessions[id]; ok {
		return sess
	}

	now := s.now()
	sess := &Session{ID: id, CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = sess

	return sess
}

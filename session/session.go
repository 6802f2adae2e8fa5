package session

import (
	"errors"
	"time"

	"github.com/hupe1980/miniclaw/core"
)

// ErrEmptyID is returned when a session id is blank.
var ErrEmptyID = errors.New("session id must not be empty")

// Session is a snapshot of one conversation.
type Session struct {
	ID        string         `json:"id"`
	Messages  []core.Message `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = core.CloneMessages(s.Messages)

	return &cp
}

// Store persists transcripts keyed by session id.
type Store interface {
	// Get returns a snapshot of the session, creating it when missing.
	Get(id string) (*Session, error)
	// Append adds messages to the end of the transcript.
	Append(id string, msgs ...core.Message) error
	// Reset drops the transcript of the session.
	Reset(id string) error
}

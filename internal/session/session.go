package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"gemini-qa/internal/domain"
)

// Session owns one conversation transcript. The transcript is append-only and
// chronological; it lives as long as the Session value and is never persisted.
type Session struct {
	id string

	mu       sync.Mutex
	messages []domain.ChatMessage
}

// New creates an empty session with a fresh UUID.
func New() *Session {
	return newWithID(uuid.NewString())
}

func newWithID(id string) *Session {
	return &Session{
		id:       id,
		messages: []domain.ChatMessage{},
	}
}

// ID identifies the session; the web shell stores it in a cookie.
func (s *Session) ID() string {
	return s.id
}

// Append records one transcript entry.
func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, domain.ChatMessage{Role: role, Content: content})
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of transcript entries.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Store is an in-memory registry of sessions keyed by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the session registered under id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[strings.TrimSpace(id)]
	return sess, ok
}

// GetOrCreate returns the session registered under id, creating it when it
// does not exist. An empty id always creates a session with a generated id.
func (s *Store) GetOrCreate(id string) (*Session, bool) {
	id = strings.TrimSpace(id)
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess, false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		sess := New()
		s.sessions[sess.ID()] = sess
		return sess, true
	}
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	sess := newWithID(id)
	s.sessions[id] = sess
	return sess, true
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

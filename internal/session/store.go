package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 60 * time.Second

type entry struct {
	challenge []byte
	keyURI    string
	expires   time.Time
}

// Store keeps cookie-bound sessions in memory. Every write extends the
// session by the TTL; expired sessions behave as if they never existed.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*entry
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{ttl: ttl, now: time.Now, sessions: make(map[string]*entry)}
}

// Ensure returns id if it names a live session, or a fresh session id.
func (s *Store) Ensure(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(id); ok {
		return id
	}
	id = uuid.NewString()
	s.sessions[id] = &entry{expires: s.now().Add(s.ttl)}
	return id
}

func (s *Store) putChallenge(id string, challenge []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(id)
	if !ok {
		e = &entry{}
		s.sessions[id] = e
	}
	e.challenge = append([]byte(nil), challenge...)
	e.expires = s.now().Add(s.ttl)
}

// takeChallenge removes and returns the pending challenge of a session.
func (s *Store) takeChallenge(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(id)
	if !ok || e.challenge == nil {
		return nil, false
	}
	challenge := e.challenge
	e.challenge = nil
	return challenge, true
}

func (s *Store) bindKeyURI(id, keyURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(id)
	if !ok {
		e = &entry{}
		s.sessions[id] = e
	}
	e.keyURI = keyURI
	e.expires = s.now().Add(s.ttl)
}

// KeyURI returns the encryption key URI a session proved control of.
func (s *Store) KeyURI(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(id)
	if !ok || e.keyURI == "" {
		return "", false
	}
	return e.keyURI, true
}

// Sweep drops expired sessions.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.sessions {
		if !now.Before(e.expires) {
			delete(s.sessions, id)
		}
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) liveLocked(id string) (*entry, bool) {
	if id == "" {
		return nil, false
	}
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expires) {
		delete(s.sessions, id)
		return nil, false
	}
	return e, true
}

package auth

import (
	"sync"
	"time"

	"github.com/packsmith/packsmith/internal/ident"
)

// CookieName is the session cookie issued on login.
const CookieName = "packsmith_session"

// Session is an issued login session.
type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Remember  bool
}

// Sessions is the in-memory session store. Validation is equivalent to
// re-running authentication against a token instead of a password.
type Sessions struct {
	ttl         time.Duration
	rememberTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewSessions creates a session store with the given lifetimes.
func NewSessions(ttl, rememberTTL time.Duration) *Sessions {
	return &Sessions{
		ttl:         ttl,
		rememberTTL: rememberTTL,
		sessions:    make(map[string]Session),
	}
}

// Issue mints a session for username. Remember extends the lifetime.
func (s *Sessions) Issue(username string, remember bool) Session {
	ttl := s.ttl
	if remember {
		ttl = s.rememberTTL
	}

	now := time.Now()
	session := Session{
		Token:     ident.NewSessionToken(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Remember:  remember,
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()
	return session
}

// Validate resolves a token to its session, expiring it lazily.
func (s *Sessions) Validate(token string) (Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return Session{}, false
	}
	if time.Now().After(session.ExpiresAt) {
		s.Revoke(token)
		return Session{}, false
	}
	return session, true
}

// Revoke deletes a session.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// RevokeUser deletes every session belonging to username, for account
// removal.
func (s *Sessions) RevokeUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, session := range s.sessions {
		if session.Username == username {
			delete(s.sessions, token)
		}
	}
}

package identity

import (
	"context"
	"sync"
)

// Principal is a resolved identity with its role. A Guest principal has a nil
// Session.
type Principal struct {
	Session *Session
	Role    Role
}

// UserID returns the principal's user id, empty for guests.
func (p Principal) UserID() string {
	if p.Session == nil {
		return ""
	}
	return p.Session.UserID
}

// Scope carries session and role context explicitly. The role is cached per
// user id and re-resolved only when the session identity changes.
type Scope struct {
	sessions SessionProvider
	resolver *RoleResolver

	mu         sync.Mutex
	cachedUser string
	cachedRole Role
	lookups    int
}

// NewScope constructs a Scope over the given collaborators.
func NewScope(sessions SessionProvider, resolver *RoleResolver) *Scope {
	return &Scope{sessions: sessions, resolver: resolver}
}

// Session returns the current session, nil when anonymous.
func (s *Scope) Session(ctx context.Context) (*Session, error) {
	if s == nil || s.sessions == nil {
		return nil, nil
	}
	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, &AuthResolutionError{Stage: "session", Err: err}
	}
	if session == nil || session.UserID == "" {
		return nil, nil
	}
	return session, nil
}

// RoleFor returns the role for session, reusing the cached role when the
// identity has not changed since the last successful lookup.
func (s *Scope) RoleFor(ctx context.Context, session *Session) (Role, error) {
	if session == nil || session.UserID == "" {
		return Guest, nil
	}

	s.mu.Lock()
	if s.cachedUser == session.UserID {
		role := s.cachedRole
		s.mu.Unlock()
		return role, nil
	}
	s.lookups++
	s.mu.Unlock()

	role, err := s.resolver.Resolve(ctx, session.UserID)
	if err != nil {
		return Guest, err
	}

	s.mu.Lock()
	s.cachedUser = session.UserID
	s.cachedRole = role
	s.mu.Unlock()
	return role, nil
}

// Principal resolves session and role together.
func (s *Scope) Principal(ctx context.Context) (Principal, error) {
	session, err := s.Session(ctx)
	if err != nil || session == nil {
		return Principal{}, err
	}
	role, err := s.RoleFor(ctx, session)
	if err != nil {
		return Principal{}, err
	}
	return Principal{Session: session, Role: role}, nil
}

// Forget drops the cached role, forcing the next call to look it up again.
func (s *Scope) Forget() {
	s.mu.Lock()
	s.cachedUser = ""
	s.cachedRole = Guest
	s.mu.Unlock()
}

// Lookups reports how many role lookups the scope has issued.
func (s *Scope) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

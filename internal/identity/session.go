package identity

import (
	"context"
	"time"
)

// Session is the authenticated identity handed out by a SessionProvider.
type Session struct {
	UserID    string
	SessionID string
	Email     string
	ExpiresAt time.Time
}

// SessionProvider returns the current session. A nil session with a nil error
// means the caller is anonymous.
type SessionProvider interface {
	CurrentSession(ctx context.Context) (*Session, error)
}

// SessionFunc adapts a function to SessionProvider.
type SessionFunc func(ctx context.Context) (*Session, error)

func (f SessionFunc) CurrentSession(ctx context.Context) (*Session, error) {
	return f(ctx)
}

// StaticSession always reports the same session, nil included.
func StaticSession(s *Session) SessionProvider {
	return SessionFunc(func(context.Context) (*Session, error) { return s, nil })
}

// RoleStore looks up the stored role string for a user. Implementations
// return ErrRoleNotFound when the user has no record.
type RoleStore interface {
	QueryRole(ctx context.Context, userID string) (string, error)
}

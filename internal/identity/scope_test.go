package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type switchableSession struct {
	mu      sync.Mutex
	session *Session
}

func (s *switchableSession) Set(session *Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

func (s *switchableSession) CurrentSession(context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, nil
}

func TestScopeCachesRolePerIdentity(t *testing.T) {
	store := &fakeRoleStore{roles: map[string]string{"u-1": "leader", "u-2": "member"}}
	sessions := &switchableSession{session: &Session{UserID: "u-1"}}
	scope := NewScope(sessions, NewRoleResolver(store))

	for i := 0; i < 3; i++ {
		principal, err := scope.Principal(context.Background())
		require.NoError(t, err)
		require.Equal(t, Leader, principal.Role)
	}
	require.Equal(t, 1, store.Calls())

	sessions.Set(&Session{UserID: "u-2"})
	principal, err := scope.Principal(context.Background())
	require.NoError(t, err)
	require.Equal(t, Member, principal.Role)
	require.Equal(t, "u-2", principal.UserID())
	require.Equal(t, 2, store.Calls())
	require.Equal(t, 2, scope.Lookups())
}

func TestScopeAnonymous(t *testing.T) {
	store := &fakeRoleStore{}
	scope := NewScope(StaticSession(nil), NewRoleResolver(store))

	principal, err := scope.Principal(context.Background())
	require.NoError(t, err)
	require.Nil(t, principal.Session)
	require.Equal(t, Guest, principal.Role)
	require.Zero(t, store.Calls())
}

func TestScopeSessionFailureIsResolutionError(t *testing.T) {
	provider := SessionFunc(func(context.Context) (*Session, error) {
		return nil, errors.New("token store offline")
	})
	scope := NewScope(provider, NewRoleResolver(&fakeRoleStore{}))

	_, err := scope.Principal(context.Background())
	var authErr *AuthResolutionError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "session", authErr.Stage)
}

func TestScopeForgetForcesLookup(t *testing.T) {
	store := &fakeRoleStore{roles: map[string]string{"u-1": "member"}}
	scope := NewScope(StaticSession(&Session{UserID: "u-1"}), NewRoleResolver(store))

	_, err := scope.Principal(context.Background())
	require.NoError(t, err)
	scope.Forget()
	_, err = scope.Principal(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, store.Calls())
}

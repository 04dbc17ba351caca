package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRoleStore struct {
	mu    sync.Mutex
	roles map[string]string
	err   error
	calls int
}

func (f *fakeRoleStore) QueryRole(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	role, ok := f.roles[userID]
	if !ok {
		return "", ErrRoleNotFound
	}
	return role, nil
}

func (f *fakeRoleStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestResolveKnownRoles(t *testing.T) {
	store := &fakeRoleStore{roles: map[string]string{"u-1": "leader", "u-2": "member"}}
	resolver := NewRoleResolver(store)

	role, err := resolver.Resolve(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, Leader, role)

	role, err = resolver.Resolve(context.Background(), "u-2")
	require.NoError(t, err)
	require.Equal(t, Member, role)
}

func TestResolveKeepsAbsentRolesDistinct(t *testing.T) {
	store := &fakeRoleStore{roles: map[string]string{"blank": "", "odd": "owner"}}
	resolver := NewRoleResolver(store)

	_, err := resolver.Resolve(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRoleNotFound)

	_, err = resolver.Resolve(context.Background(), "blank")
	require.ErrorIs(t, err, ErrRoleUnprovisioned)

	role, err := resolver.Resolve(context.Background(), "odd")
	require.ErrorIs(t, err, ErrUnknownRole)
	require.Equal(t, Guest, role)

	var authErr *AuthResolutionError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "odd", authErr.UserID)
}

func TestResolveDoesNotRetry(t *testing.T) {
	store := &fakeRoleStore{err: errors.New("connection reset")}
	resolver := NewRoleResolver(store)

	_, err := resolver.Resolve(context.Background(), "u-1")
	require.Error(t, err)
	require.Equal(t, 1, store.Calls())
}

func TestResolveRejectsBlankUser(t *testing.T) {
	store := &fakeRoleStore{}
	_, err := NewRoleResolver(store).Resolve(context.Background(), "  ")
	require.ErrorIs(t, err, ErrNoSession)
	require.Zero(t, store.Calls())
}

package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/internal/credentials"
	"github.com/charlesng35/opsdash/internal/dataclient"
	"github.com/charlesng35/opsdash/internal/handlers/testutil"
	"github.com/charlesng35/opsdash/internal/identity"
)

func newServer(t *testing.T) (*testutil.Env, string) {
	t.Helper()
	env := testutil.NewEnv(t)
	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)
	return env, server.URL
}

func fixedPrompt(t *testing.T, email, password string, calls *int) prompter {
	return func(identifier string) (string, string, error) {
		*calls++
		if identifier != "" {
			email = identifier
		}
		return email, password, nil
	}
}

func failingPrompt(t *testing.T) prompter {
	return func(string) (string, string, error) {
		t.Fatal("prompt should not be called")
		return "", "", errors.New("unreachable")
	}
}

func TestAuthorizeSignsInOnce(t *testing.T) {
	env, url := newServer(t)
	user := env.CreateUser(identity.Member)

	calls := 0
	client := dataclient.New(url)
	principal, err := authorize(context.Background(), client, user.Email, fixedPrompt(t, "", testutil.DefaultPassword, &calls))
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, identity.Member, principal.Role)
	require.Equal(t, user.ID, principal.UserID())
}

func TestAuthorizeRestoresStoredSession(t *testing.T) {
	env, url := newServer(t)
	user := env.CreateUser(identity.Leader)
	creds := credentials.New(keyring.NewArrayKeyring(nil))

	first := newClient(url, creds, zap.NewNop())
	_, err := first.Login(context.Background(), user.Email, testutil.DefaultPassword)
	require.NoError(t, err)

	stored, err := creds.RefreshToken(url)
	require.NoError(t, err)
	require.Equal(t, first.Tokens().RefreshToken, stored)

	second := newClient(url, creds, zap.NewNop())
	principal, err := authorize(context.Background(), second, "", failingPrompt(t))
	require.NoError(t, err)
	require.Equal(t, identity.Leader, principal.Role)

	rotated, err := creds.RefreshToken(url)
	require.NoError(t, err)
	require.NotEqual(t, stored, rotated)
}

func TestAuthorizeRejectsUnprovisionedAccount(t *testing.T) {
	env, url := newServer(t)
	user := env.CreateUser(identity.Guest)

	calls := 0
	_, err := authorize(context.Background(), dataclient.New(url), user.Email, fixedPrompt(t, "", testutil.DefaultPassword, &calls))
	require.ErrorIs(t, err, errNoRole)
}

func TestAuthorizeWrongPassword(t *testing.T) {
	env, url := newServer(t)
	user := env.CreateUser(identity.Member)

	calls := 0
	_, err := authorize(context.Background(), dataclient.New(url), user.Email, fixedPrompt(t, "", "nope", &calls))
	require.Error(t, err)
	require.Contains(t, err.Error(), "sign in")
}

func TestParseFlags(t *testing.T) {
	t.Setenv("OPSDASH_SERVER", "")
	opts, err := parseFlags([]string{"--server", "https://ops.example.com/", "-a", "--no-keyring"})
	require.NoError(t, err)
	require.Equal(t, "https://ops.example.com", opts.server)
	require.True(t, opts.all)
	require.True(t, opts.noKeyring)
	require.Equal(t, "warn", opts.logLevel)
}

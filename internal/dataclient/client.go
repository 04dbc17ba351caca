// Package dataclient talks to an opsdash server over its REST and websocket
// API. A Client satisfies identity.SessionProvider, identity.RoleStore and
// notifications.Backend, so the notification store runs unchanged against a
// remote server.
package dataclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/pkg/logger"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 2
	maxRetryWait      = 10 * time.Second
)

// Tokens is the credential pair issued by the server.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDialer overrides the websocket dialer used for realtime feeds.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithTokenSink registers fn to receive every newly issued token pair, for
// example to persist the refresh token. fn receives empty Tokens on logout.
func WithTokenSink(fn func(Tokens)) Option {
	return func(c *Client) { c.sink = fn }
}

// WithMaxRetries bounds retries of rate-limited requests.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	maxRetries int
	sink       func(Tokens)
	log        *zap.Logger

	mu     sync.RWMutex
	tokens Tokens

	// refreshMu serialises refreshes so concurrent 401s rotate once.
	refreshMu sync.Mutex
}

// New returns a Client for the server at baseURL, e.g. http://localhost:8000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		dialer:     websocket.DefaultDialer,
		maxRetries: defaultMaxRetries,
		log:        logger.WithModule("dataclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens returns the current credential pair.
func (c *Client) Tokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// SetTokens installs a credential pair, e.g. a refresh token restored from
// the keyring. It does not notify the sink.
func (c *Client) SetTokens(tokens Tokens) {
	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()
}

func (c *Client) storeTokens(tokens Tokens) {
	c.SetTokens(tokens)
	if c.sink != nil {
		c.sink(tokens)
	}
}

// LoginResult is the server's answer to a successful login.
type LoginResult struct {
	Tokens
	User User   `json:"user"`
	Role string `json:"role"`
}

// User is the account summary returned by the auth endpoints.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Login signs in and keeps the issued tokens.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	var result LoginResult
	body := map[string]string{"identifier": identifier, "password": password}
	if err := c.send(ctx, http.MethodPost, "/api/auth/login", body, &result, nil, ""); err != nil {
		return nil, err
	}
	c.storeTokens(result.Tokens)
	return &result, nil
}

// Refresh rotates the refresh token. It fails with ErrNoCredentials when the
// client holds none.
func (c *Client) Refresh(ctx context.Context) error {
	stale := c.Tokens()

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.Tokens()
	if current.RefreshToken == "" {
		return ErrNoCredentials
	}
	// Another caller refreshed while we waited.
	if current.AccessToken != stale.AccessToken && current.AccessToken != "" {
		return nil
	}

	var tokens Tokens
	body := map[string]string{"refresh_token": current.RefreshToken}
	if err := c.send(ctx, http.MethodPost, "/api/auth/refresh", body, &tokens, nil, ""); err != nil {
		return err
	}
	c.storeTokens(tokens)
	return nil
}

// Logout revokes the session server side and forgets the tokens. The local
// tokens are dropped even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	c.storeTokens(Tokens{})
	return err
}

// Me returns the signed-in account.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user, nil); err != nil {
		return nil, err
	}
	return &user, nil
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *Meta `json:"meta"`
}

// Meta carries list metadata.
type Meta struct {
	Total  int  `json:"total"`
	Limit  int  `json:"limit"`
	Unread *int `json:"unread"`
}

// do sends an authenticated request, refreshing once on a 401 when a refresh
// token is available.
func (c *Client) do(ctx context.Context, method, path string, body, result any, meta *Meta) error {
	token := c.Tokens().AccessToken
	err := c.send(ctx, method, path, body, result, meta, token)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || c.Tokens().RefreshToken == "" {
		return err
	}
	if refreshErr := c.Refresh(ctx); refreshErr != nil {
		c.log.Debug("token refresh failed", zap.Error(refreshErr))
		return err
	}
	return c.send(ctx, method, path, body, result, meta, c.Tokens().AccessToken)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any, meta *Meta, token string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("dataclient: marshal request body: %w", err)
		}
		payload = data
	}

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("dataclient: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("dataclient: %s %s: %w", method, path, err)
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("dataclient: read response: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfter(resp, attempt)):
				continue
			}
		}
		return decode(method, path, resp.StatusCode, raw, result, meta)
	}
}

func decode(method, path string, status int, raw []byte, result any, meta *Meta) error {
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if status >= 300 {
				return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
			}
			return fmt.Errorf("dataclient: decode %s %s: %w", method, path, err)
		}
	}

	if status < 200 || status >= 300 || !env.Success {
		apiErr := &APIError{Status: status}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if meta != nil && env.Meta != nil {
		*meta = *env.Meta
	}
	if result == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("dataclient: decode %s %s data: %w", method, path, err)
	}
	return nil
}

// retryAfter honours Retry-After and otherwise backs off exponentially.
func retryAfter(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return min(time.Duration(seconds)*time.Second, maxRetryWait)
		}
	}
	return min(time.Duration(1<<uint(attempt))*time.Second, maxRetryWait)
}

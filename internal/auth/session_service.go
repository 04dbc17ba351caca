package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/opsdash/internal/models"
	"github.com/charlesng35/opsdash/pkg/crypto"
	"github.com/charlesng35/opsdash/pkg/metrics"
)

const (
	// DefaultRefreshTokenTTL applies when SessionConfig leaves it unset.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	defaultRefreshLength = 48
)

// SessionConfig tunes a SessionService. Zero values take defaults.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	RefreshLength   int
	Clock           func() time.Time
}

// SessionMetadata describes the client opening a session.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
	Email     string
}

// TokenPair is what a login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

var (
	ErrSessionNotFound     = errors.New("session: not found")
	ErrSessionRevoked      = errors.New("session: revoked")
	ErrSessionExpired      = errors.New("session: expired")
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionService stores refresh-token sessions and mints access tokens
// bound to them. A refresh token is single use: refreshing rotates it.
type SessionService struct {
	db         *gorm.DB
	jwt        *JWTService
	refreshTTL time.Duration
	tokenLen   int
	now        func() time.Time
}

func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	switch {
	case db == nil:
		return nil, errors.New("session service: db is required")
	case jwtService == nil:
		return nil, errors.New("session service: jwt service is required")
	}

	s := &SessionService{
		db:         db,
		jwt:        jwtService,
		refreshTTL: cfg.RefreshTokenTTL,
		tokenLen:   cfg.RefreshLength,
		now:        cfg.Clock,
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTokenTTL
	}
	if s.tokenLen <= 0 {
		s.tokenLen = defaultRefreshLength
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// JWT returns the signer of access tokens.
func (s *SessionService) JWT() *JWTService { return s.jwt }

// CreateSession opens a session for userID.
func (s *SessionService) CreateSession(ctx context.Context, userID string, meta SessionMetadata) (TokenPair, *models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return TokenPair{}, nil, errors.New("session service: user id is required")
	}
	refresh, err := s.newRefreshToken()
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := s.now()
	session := &models.Session{
		UserID:       userID,
		RefreshToken: refresh,
		IPAddress:    strings.TrimSpace(meta.IPAddress),
		UserAgent:    strings.TrimSpace(meta.UserAgent),
		ExpiresAt:    now.Add(s.refreshTTL),
		LastUsedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: create session: %w", err)
	}
	metrics.ActiveSessions.Inc()

	pair, err := s.issue(session, meta.Email)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, session, nil
}

// RefreshSession exchanges refreshToken for a new pair. The swap is a
// conditional update on the old token, so two concurrent refreshes with the
// same token cannot both succeed.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, *models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionInvalidToken
	}

	session, err := s.find(s.db.WithContext(ctx).Preload("User").Where("refresh_token = ?", refreshToken))
	if err != nil {
		return TokenPair{}, nil, err
	}
	now := s.now()
	if err := usable(session, now); err != nil {
		return TokenPair{}, nil, err
	}

	rotated, err := s.newRefreshToken()
	if err != nil {
		return TokenPair{}, nil, err
	}
	expiresAt := now.Add(s.refreshTTL)
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND refresh_token = ?", session.ID, refreshToken).
		Updates(map[string]any{"refresh_token": rotated, "expires_at": expiresAt, "last_used_at": now})
	if result.Error != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: rotate refresh token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return TokenPair{}, nil, ErrSessionNotFound
	}
	session.RefreshToken, session.ExpiresAt, session.LastUsedAt = rotated, expiresAt, now

	var email string
	if session.User != nil {
		email = session.User.Email
	}
	pair, err := s.issue(session, email)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, session, nil
}

// ActiveSession loads sessionID and fails unless it is usable now.
func (s *SessionService) ActiveSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.find(s.db.WithContext(ctx).Where("id = ?", sessionID))
	if err != nil {
		return nil, err
	}
	if err := usable(session, s.now()); err != nil {
		return nil, err
	}
	return session, nil
}

// RevokeSession ends one session. Revoking twice reports ErrSessionNotFound.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionInvalidToken
	}
	revoked, err := s.revoke(ctx, "id = ?", sessionID)
	if err != nil {
		return err
	}
	if revoked == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeUserSessions ends every open session of userID.
func (s *SessionService) RevokeUserSessions(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrSessionInvalidToken
	}
	_, err := s.revoke(ctx, "user_id = ?", userID)
	return err
}

// CleanupExpired deletes expired and revoked sessions and returns how many
// rows went.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	now := s.now()
	db := s.db.WithContext(ctx)

	// Expired but never revoked sessions still count as active in metrics.
	var lapsed int64
	if err := db.Model(&models.Session{}).
		Where("expires_at < ? AND revoked_at IS NULL", now).
		Count(&lapsed).Error; err != nil {
		return 0, fmt.Errorf("session service: count expired sessions: %w", err)
	}

	result := db.Where("expires_at < ?", now).Or("revoked_at IS NOT NULL").Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}
	metrics.ActiveSessions.Sub(float64(lapsed))
	return result.RowsAffected, nil
}

func (s *SessionService) revoke(ctx context.Context, where string, arg string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where(where, arg).
		Where("revoked_at IS NULL").
		Update("revoked_at", s.now())
	if result.Error != nil {
		return 0, fmt.Errorf("session service: revoke: %w", result.Error)
	}
	metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	return result.RowsAffected, nil
}

func (s *SessionService) find(query *gorm.DB) (*models.Session, error) {
	var session models.Session
	err := query.Take(&session).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("session service: find session: %w", err)
	}
	return &session, nil
}

func (s *SessionService) issue(session *models.Session, email string) (TokenPair, error) {
	access, err := s.jwt.GenerateAccessToken(AccessTokenInput{UserID: session.UserID, SessionID: session.ID, Email: email})
	if err != nil {
		return TokenPair{}, fmt.Errorf("session service: generate access token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: session.RefreshToken}, nil
}

func (s *SessionService) newRefreshToken() (string, error) {
	token, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return "", fmt.Errorf("session service: generate refresh token: %w", err)
	}
	return token, nil
}

func usable(session *models.Session, now time.Time) error {
	switch {
	case session.RevokedAt != nil:
		return ErrSessionRevoked
	case !session.Active(now):
		return ErrSessionExpired
	}
	return nil
}

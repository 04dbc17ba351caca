package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/opsdash/internal/auth"
	"github.com/charlesng35/opsdash/internal/middleware"
	"github.com/charlesng35/opsdash/internal/models"
	"github.com/charlesng35/opsdash/internal/services"
	apperrors "github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/logger"
	"github.com/charlesng35/opsdash/pkg/metrics"
	"github.com/charlesng35/opsdash/pkg/response"
)

// CookieConfig describes the access token cookie written on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler manages authentication flows (login/refresh/logout/me).
type AuthHandler struct {
	users    *services.UserService
	sessions *iauth.SessionService
	cookie   CookieConfig
	log      *zap.Logger
}

func NewAuthHandler(users *services.UserService, sessions *iauth.SessionService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		cookie:   cookie,
		log:      logger.WithModule("auth"),
	}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userPayload struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type loginResponse struct {
	tokenResponse
	User userPayload `json:"user"`
	Role string      `json:"role"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.Authenticate(ctx, strings.TrimSpace(req.Identifier), req.Password, c.ClientIP())
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials), errors.Is(err, services.ErrAccountDisabled):
			response.Error(c, err)
		default:
			h.log.Error("login failed", zap.Error(err))
			response.Error(c, apperrors.ErrInternalServer)
		}
		return
	}

	pair, _, err := h.sessions.CreateSession(ctx, user.ID, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Email:     user.Email,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		h.log.Error("create session", zap.String("user_id", user.ID), zap.Error(err))
		response.Error(c, apperrors.ErrInternalServer)
		return
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()

	h.setAccessCookie(c, pair.AccessToken)
	response.Success(c, http.StatusOK, loginResponse{
		tokenResponse: h.tokens(pair),
		User:          toUserPayload(user),
		Role:          user.RoleName(),
	})
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		switch {
		case errors.Is(err, iauth.ErrSessionNotFound),
			errors.Is(err, iauth.ErrSessionRevoked),
			errors.Is(err, iauth.ErrSessionExpired),
			errors.Is(err, iauth.ErrSessionInvalidToken):
			response.Error(c, apperrors.ErrUnauthorized)
		default:
			h.log.Error("refresh session", zap.Error(err))
			response.Error(c, apperrors.ErrInternalServer)
		}
		return
	}

	h.setAccessCookie(c, pair.AccessToken)
	response.Success(c, http.StatusOK, h.tokens(pair))
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetString(middleware.CtxSessionIDKey)
	if sessionID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(requestContext(c), sessionID); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
		h.log.Error("revoke session", zap.String("session_id", sessionID), zap.Error(err))
		response.Error(c, apperrors.ErrInternalServer)
		return
	}

	h.clearAccessCookie(c)
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toUserPayload(user))
}

func (h *AuthHandler) tokens(pair iauth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(h.sessions.JWT().TTL().Seconds()),
	}
}

func (h *AuthHandler) setAccessCookie(c *gin.Context, token string) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(h.sessions.JWT().TTL().Seconds()), "/", "", h.cookie.Secure, true)
}

func (h *AuthHandler) clearAccessCookie(c *gin.Context) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

func toUserPayload(user *models.User) userPayload {
	return userPayload{
		ID:          user.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		Role:        user.RoleName(),
		IsActive:    user.IsActive,
		LastLoginAt: user.LastLoginAt,
	}
}

package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/opsdash/internal/auth"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/middleware"
	"github.com/charlesng35/opsdash/internal/realtime"
	apperrors "github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/logger"
	"github.com/charlesng35/opsdash/pkg/response"
)

// RealtimeHandler serves GET /api/realtime.
type RealtimeHandler struct {
	hub      *realtime.Hub
	sessions identity.SessionProvider
	cookie   string
	streams  map[string]struct{}
	log      *zap.Logger
}

// NewRealtimeHandler limits clients to streams; with none, any stream name
// is accepted. cookieName is read when no token comes in the query or header.
func NewRealtimeHandler(hub *realtime.Hub, sessions identity.SessionProvider, cookieName string, streams ...string) *RealtimeHandler {
	h := &RealtimeHandler{
		hub:      hub,
		sessions: sessions,
		cookie:   cookieName,
		log:      logger.WithModule("realtime"),
	}
	if known := streamList(streams); len(known) > 0 {
		h.streams = make(map[string]struct{}, len(known))
		for _, stream := range known {
			h.streams[stream] = struct{}{}
		}
	}
	return h
}

// Stream authenticates the upgrade and hands the socket to the hub. Browsers
// cannot set headers on websocket requests, hence the ?token= fallback.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil || h.sessions == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	session, ok := h.authenticate(c)
	if !ok {
		return
	}

	requested := append([]string(nil), c.QueryArray("stream")...)
	streams := streamList(append(requested, strings.Split(c.Query("streams"), ",")...))
	if len(streams) == 0 {
		streams = []string{realtime.StreamNotifications}
	}
	for _, stream := range streams {
		if !h.permits(stream) {
			response.Error(c, apperrors.ErrNotFound.WithMessage("unknown stream "+stream))
			return
		}
	}

	h.hub.Serve(session.UserID, streams, h.streams, c.Writer, c.Request)
}

func (h *RealtimeHandler) authenticate(c *gin.Context) (*identity.Session, bool) {
	token := firstNonEmpty(c.Query("token"), c.Query("access_token"), middleware.RequestToken(c, h.cookie))
	if token == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return nil, false
	}

	session, err := h.sessions.CurrentSession(iauth.WithAccessToken(requestContext(c), token))
	if err != nil {
		h.log.Warn("resolve websocket session", zap.Error(err))
		response.Error(c, apperrors.ErrInternalServer)
		return nil, false
	}
	if session == nil || strings.TrimSpace(session.UserID) == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return nil, false
	}
	return session, true
}

func (h *RealtimeHandler) permits(stream string) bool {
	if h.streams == nil {
		return true
	}
	_, ok := h.streams[stream]
	return ok
}

// streamList lower-cases, trims and dedupes stream names, dropping blanks.
func streamList(raw []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(raw))
	for _, name := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

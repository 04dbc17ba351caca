package identity

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/pkg/logger"
)

// RoleResolver maps a user id to a Role with a single lookup. It never retries
// and never infers a role from an absent or malformed record.
type RoleResolver struct {
	store RoleStore
	log   *zap.Logger
}

// NewRoleResolver builds a resolver backed by store.
func NewRoleResolver(store RoleStore) *RoleResolver {
	return &RoleResolver{store: store, log: logger.WithModule("identity")}
}

// Resolve returns the user's role. Every failure is wrapped in an
// AuthResolutionError so callers can fail closed without inspecting causes.
func (r *RoleResolver) Resolve(ctx context.Context, userID string) (Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Guest, &AuthResolutionError{Stage: "role", Err: ErrNoSession}
	}
	if r == nil || r.store == nil {
		return Guest, &AuthResolutionError{UserID: userID, Stage: "role", Err: errors.New("role store not configured")}
	}

	raw, err := r.store.QueryRole(ctx, userID)
	if err != nil {
		r.log.Debug("role lookup failed", zap.String("user_id", userID), zap.Error(err))
		return Guest, &AuthResolutionError{UserID: userID, Stage: "role", Err: err}
	}

	role, err := ParseRole(raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrRoleUnprovisioned):
			r.log.Warn("user has no role provisioned", zap.String("user_id", userID))
		default:
			r.log.Warn("user has unrecognised role", zap.String("user_id", userID), zap.String("role", raw))
		}
		return Guest, &AuthResolutionError{UserID: userID, Stage: "role", Err: err}
	}
	return role, nil
}

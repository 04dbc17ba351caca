// Package guard decides whether a role-scoped view may render for the current
// session. Every lookup failure fails closed to the Guest state.
package guard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/pkg/logger"
	"github.com/charlesng35/opsdash/pkg/metrics"
)

// State is a node of the guard state machine.
type State int

const (
	Resolving State = iota
	GuestState
	Authorized
	Forbidden
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case GuestState:
		return "guest"
	case Authorized:
		return "authorized"
	case Forbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultSignInPath    = "/signin"
	DefaultForbiddenPath = "/not-found"
)

// Config holds the redirect targets.
type Config struct {
	SignInPath    string
	ForbiddenPath string
}

// Decision is the outcome of one evaluation.
type Decision struct {
	State     State
	Principal identity.Principal
	// Redirect is empty when the view may render.
	Redirect string
	// Reason carries the lookup error that forced a Guest decision, if any.
	Reason error
	Trace  []State
}

// Render reports whether the protected view may render.
func (d Decision) Render() bool { return d.State == Authorized }

// Guard evaluates access for a requested view.
type Guard struct {
	cfg Config
	log *zap.Logger
}

// New returns a Guard, filling blank paths with the defaults.
func New(cfg Config) *Guard {
	if cfg.SignInPath == "" {
		cfg.SignInPath = DefaultSignInPath
	}
	if cfg.ForbiddenPath == "" {
		cfg.ForbiddenPath = DefaultForbiddenPath
	}
	return &Guard{cfg: cfg, log: logger.WithModule("guard")}
}

// Config returns the effective configuration.
func (g *Guard) Config() Config { return g.cfg }

// Evaluate resolves the session through scope and checks the role against
// allow. An empty allow-list admits any resolved role. The role is never
// looked up when there is no session.
func (g *Guard) Evaluate(ctx context.Context, scope *identity.Scope, allow ...identity.Role) Decision {
	d := Decision{State: Resolving, Trace: []State{Resolving}}

	session, err := scope.Session(ctx)
	if err != nil || session == nil {
		return g.finish(d.to(GuestState), g.cfg.SignInPath, err)
	}

	role, err := scope.RoleFor(ctx, session)
	if err != nil || role.IsGuest() {
		return g.finish(d.to(GuestState), g.cfg.SignInPath, err)
	}

	d.Principal = identity.Principal{Session: session, Role: role}
	if !allowed(role, allow) {
		return g.finish(d.to(Forbidden), g.cfg.ForbiddenPath, nil)
	}
	return g.finish(d.to(Authorized), "", nil)
}

func (d Decision) to(next State) Decision {
	d.State = next
	d.Trace = append(d.Trace, next)
	return d
}

func (g *Guard) finish(d Decision, redirect string, reason error) Decision {
	d.Redirect = redirect
	d.Reason = reason
	metrics.GuardDecisions.WithLabelValues(d.State.String()).Inc()

	switch d.State {
	case GuestState:
		if reason != nil {
			g.log.Debug("guard failed closed", zap.Error(reason))
		}
	case Forbidden:
		g.log.Debug("guard denied role",
			zap.String("user_id", d.Principal.UserID()),
			zap.String("role", d.Principal.Role.String()))
	}
	return d
}

func allowed(role identity.Role, allow []identity.Role) bool {
	if len(allow) == 0 {
		return true
	}
	for _, candidate := range allow {
		if candidate == role {
			return true
		}
	}
	return false
}

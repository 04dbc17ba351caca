package identity

import "errors"

var (
	// ErrNoSession indicates there is no authenticated session.
	ErrNoSession = errors.New("identity: no session")
	// ErrRoleNotFound indicates the role lookup found no user record.
	ErrRoleNotFound = errors.New("identity: user record not found")
	// ErrRoleUnprovisioned indicates the user record exists without a role.
	ErrRoleUnprovisioned = errors.New("identity: role not provisioned")
	// ErrUnknownRole indicates the stored role is outside the known set.
	ErrUnknownRole = errors.New("identity: unknown role")
)

// AuthResolutionError reports a failed session or role lookup. Callers treat
// it as "no session".
type AuthResolutionError struct {
	UserID string
	Stage  string
	Err    error
}

func (e *AuthResolutionError) Error() string {
	if e.UserID == "" {
		return "identity: " + e.Stage + " lookup failed: " + e.Err.Error()
	}
	return "identity: " + e.Stage + " lookup failed for " + e.UserID + ": " + e.Err.Error()
}

func (e *AuthResolutionError) Unwrap() error { return e.Err }

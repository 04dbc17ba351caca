package identity

import (
	"fmt"
	"strings"
)

// Role is the closed set of dashboard roles. The zero value is Guest.
type Role int

const (
	Guest Role = iota
	Leader
	Member
)

// String returns the stored/path form of the role. Guest renders as "guest".
func (r Role) String() string {
	switch r {
	case Leader:
		return "leader"
	case Member:
		return "member"
	case Guest:
		return "guest"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// IsGuest reports whether r carries no authorization.
func (r Role) IsGuest() bool { return r == Guest }

// MarshalText renders the role for JSON payloads.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses "leader", "member" or "guest".
func (r *Role) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if strings.EqualFold(value, "guest") || value == "" {
		*r = Guest
		return nil
	}
	parsed, err := ParseRole(value)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole converts a stored role string into a Role. Blank strings yield
// ErrRoleUnprovisioned and unrecognised strings ErrUnknownRole; neither is
// ever coerced into a role.
func ParseRole(raw string) (Role, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "leader":
		return Leader, nil
	case "member":
		return Member, nil
	case "":
		return Guest, ErrRoleUnprovisioned
	default:
		return Guest, fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Roles returns the assignable roles in display order.
func Roles() []Role {
	return []Role{Leader, Member}
}

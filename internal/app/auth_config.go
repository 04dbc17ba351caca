package app

import (
	"github.com/charlesng35/opsdash/internal/auth"
	"github.com/charlesng35/opsdash/internal/guard"
	"github.com/charlesng35/opsdash/internal/notifications"
)

// DefaultAccessCookie names the cookie carrying the access token.
const DefaultAccessCookie = "opsdash_access"

const defaultRefreshLength = 48

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = defaultRefreshLength
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// CookieName returns the access cookie name, falling back to the default.
func (c AuthConfig) CookieName() string {
	if c.Cookie.Name == "" {
		return DefaultAccessCookie
	}
	return c.Cookie.Name
}

// GuardOptions converts GuardConfig into guard.Config.
func (c GuardConfig) GuardOptions() guard.Config {
	return guard.Config{
		SignInPath:    c.SignInPath,
		ForbiddenPath: c.ForbiddenPath,
	}
}

// StoreOptions converts NotificationsConfig into options for a compact Store.
func (c NotificationsConfig) StoreOptions() notifications.Options {
	return notifications.Options{
		Cap:         c.DisplayCap,
		FlashWindow: c.FlashWindow,
	}
}

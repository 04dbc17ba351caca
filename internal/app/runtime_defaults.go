package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/opsdash/internal/guard"
	"github.com/charlesng35/opsdash/internal/notifications"
	"github.com/charlesng35/opsdash/pkg/crypto"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults ensures critical settings are populated even when no configuration file is supplied.
// It returns a map describing which keys were filled in so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.Auth.Cookie.Name) == "" {
		cfg.Auth.Cookie.Name = DefaultAccessCookie
		generated["auth.cookie.name"] = true
	}

	if cfg.Notifications.DisplayCap <= 0 {
		cfg.Notifications.DisplayCap = notifications.CompactCap
		generated["notifications.display_cap"] = true
	}
	if cfg.Notifications.FlashWindow <= 0 {
		cfg.Notifications.FlashWindow = notifications.DefaultFlashWindow
		generated["notifications.flash_window"] = true
	}

	if strings.TrimSpace(cfg.Guard.SignInPath) == "" {
		cfg.Guard.SignInPath = guard.DefaultSignInPath
		generated["guard.sign_in_path"] = true
	}
	if strings.TrimSpace(cfg.Guard.ForbiddenPath) == "" {
		cfg.Guard.ForbiddenPath = guard.DefaultForbiddenPath
		generated["guard.forbidden_path"] = true
	}

	return generated, nil
}

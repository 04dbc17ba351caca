package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/opsdash/internal/database"
)

// Config represents the runtime configuration for the opsdash server.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Guard         GuardConfig         `mapstructure:"guard"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	Bootstrap     BootstrapConfig     `mapstructure:"bootstrap"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	LogEncoding string `mapstructure:"log_encoding"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GuardConfig holds the redirect targets used by page guards.
type GuardConfig struct {
	SignInPath    string `mapstructure:"sign_in_path"`
	ForbiddenPath string `mapstructure:"forbidden_path"`
}

// NotificationsConfig tunes the notification widgets.
type NotificationsConfig struct {
	DisplayCap  int           `mapstructure:"display_cap"`
	FlashWindow time.Duration `mapstructure:"flash_window"`
}

// RateLimitConfig throttles API requests per client IP.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	SessionSchedule      string `mapstructure:"session_schedule"`
	NotificationSchedule string `mapstructure:"notification_schedule"`
	// NotificationRetentionDays purges read notifications older than this.
	// Zero keeps them forever.
	NotificationRetentionDays int `mapstructure:"notification_retention_days"`
}

// BootstrapConfig lists accounts created on first start.
type BootstrapConfig struct {
	Users []BootstrapUser `mapstructure:"users"`
}

// BootstrapUser is one seeded account.
type BootstrapUser struct {
	Email    string `mapstructure:"email"`
	FullName string `mapstructure:"full_name"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`
	Cookie  CookieSettings  `mapstructure:"cookie"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures refresh tokens and session lifetimes.
type SessionSettings struct {
	RefreshTTL    time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshLength int           `mapstructure:"refresh_token_length"`
}

// CookieSettings controls the access token cookie set on login.
type CookieSettings struct {
	Name   string `mapstructure:"name"`
	Secure bool   `mapstructure:"secure"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("OPSDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_encoding", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/opsdash.sqlite")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "opsdash")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.session.refresh_token_length", 48)
	v.SetDefault("auth.cookie.name", "opsdash_access")
	v.SetDefault("auth.cookie.secure", false)

	v.SetDefault("guard.sign_in_path", "/signin")
	v.SetDefault("guard.forbidden_path", "/not-found")

	v.SetDefault("notifications.display_cap", 5)
	v.SetDefault("notifications.flash_window", "2500ms")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_minute", 300)
	v.SetDefault("ratelimit.burst", 60)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.notification_schedule", "@daily")
	v.SetDefault("maintenance.notification_retention_days", 0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// ConnectionConfig translates the section into database.Config.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var auth *DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		auth = &c.Postgres
	case "mysql", "mariadb":
		auth = &c.MySQL
	}
	if auth != nil {
		cfg.Host = auth.Host
		cfg.Port = auth.Port
		cfg.Name = auth.Database
		cfg.User = auth.Username
		cfg.Password = auth.Password
	}
	return cfg
}

// SeedUsers converts bootstrap accounts for database.SeedData.
func (c BootstrapConfig) SeedUsers() []database.SeedUser {
	seeds := make([]database.SeedUser, 0, len(c.Users))
	for _, user := range c.Users {
		if strings.TrimSpace(user.Email) == "" {
			continue
		}
		seeds = append(seeds, database.SeedUser{
			Email:    user.Email,
			FullName: user.FullName,
			Password: user.Password,
			Role:     user.Role,
		})
	}
	return seeds
}

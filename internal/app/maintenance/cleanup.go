package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/opsdash/internal/auth"
	"github.com/charlesng35/opsdash/internal/services"
	"github.com/charlesng35/opsdash/pkg/logger"
)

const (
	defaultSessionSpec      = "@hourly"
	defaultNotificationSpec = "@daily"
)

// Cleaner coordinates background maintenance: purging expired or revoked
// sessions and pruning old read notifications.
type Cleaner struct {
	sessions      *iauth.SessionService
	notifications *services.NotificationService
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger
	retention     int

	sessionSchedule      string
	notificationSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithNotificationRetentionDays sets how long read notifications are kept.
// Zero or less disables the purge.
func WithNotificationRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		cleaner.retention = days
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithNotificationSchedule overrides the cron specification for the notification purge.
func WithNotificationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.notificationSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips its job.
func NewCleaner(sessions *iauth.SessionService, notifications *services.NotificationService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:             sessions,
		notifications:        notifications,
		now:                  time.Now,
		sessionSchedule:      defaultSessionSpec,
		notificationSchedule: defaultNotificationSpec,
		log:                  logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

func (c *Cleaner) purgeEnabled() bool {
	return c.notifications != nil && c.retention > 0
}

// Start registers cleanup jobs and launches the scheduler when at least one job is enabled.
func (c *Cleaner) Start() error {
	if c.sessions == nil && !c.purgeEnabled() {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			removed, err := c.sessions.CleanupExpired(context.Background())
			if err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
				return
			}
			c.log.Debug("session cleanup finished", zap.Int64("removed", removed))
		}); err != nil {
			return err
		}
	}

	if c.purgeEnabled() {
		if _, err := c.cron.AddFunc(c.notificationSchedule, func() {
			removed, err := c.notifications.PurgeReadOlderThan(context.Background(), c.retention, c.now())
			if err != nil {
				c.log.Warn("notification purge failed", zap.Error(err))
				return
			}
			c.log.Debug("notification purge finished", zap.Int64("removed", removed))
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler; the returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured cleanup sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.purgeEnabled() {
		if _, err := c.notifications.PurgeReadOlderThan(ctx, c.retention, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

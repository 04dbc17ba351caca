package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/opsdash/internal/models"
)

const notificationFeedIndex = "idx_notifications_user_created"

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Notification{},
	); err != nil {
		return err
	}

	// The feed is always read per user, newest first.
	migrator := db.Migrator()
	if !migrator.HasIndex(&models.Notification{}, notificationFeedIndex) {
		if err := db.Exec("CREATE INDEX " + notificationFeedIndex + " ON notifications (user_id, created_at)").Error; err != nil {
			return err
		}
	}
	return nil
}

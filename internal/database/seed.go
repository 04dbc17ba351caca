package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/opsdash/internal/models"
	"github.com/charlesng35/opsdash/pkg/crypto"
)

// SeedUser describes an account created on first start when absent.
type SeedUser struct {
	Email    string
	FullName string
	Password string
	Role     string
}

// SeedData creates the given accounts if no user with the same email exists.
// Existing accounts are never modified.
func SeedData(db *gorm.DB, seeds ...SeedUser) error {
	for _, seed := range seeds {
		email := strings.ToLower(strings.TrimSpace(seed.Email))
		if email == "" || seed.Password == "" {
			continue
		}

		var existing models.User
		err := db.Where("email = ?", email).Take(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("lookup %s: %w", email, err)
		}

		hash, err := crypto.HashPassword(seed.Password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", email, err)
		}

		user := models.User{
			Email:    email,
			FullName: seed.FullName,
			Password: hash,
			IsActive: true,
		}
		if role := strings.ToLower(strings.TrimSpace(seed.Role)); role != "" {
			user.Role = &role
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("create %s: %w", email, err)
		}
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/models"
	"github.com/charlesng35/opsdash/pkg/crypto"
	apperrors "github.com/charlesng35/opsdash/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrEmailTaken is returned when creating a user with an existing email.
	ErrEmailTaken = apperrors.New("USER_EMAIL_TAKEN", "Email is already registered", http.StatusConflict)
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = apperrors.New("AUTH_ACCOUNT_DISABLED", "Account is disabled", http.StatusForbidden)
)

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Email    string
	FullName string
	Password string
	// Role is optional; blank leaves the account unprovisioned.
	Role string
}

// UserService manages dashboard accounts and answers role lookups.
type UserService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, now: time.Now}, nil
}

var _ identity.RoleStore = (*UserService)(nil)

// Create provisions a new user with a hashed password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	var role *string
	if raw := strings.TrimSpace(input.Role); raw != "" {
		parsed, err := identity.ParseRole(raw)
		if err != nil {
			return nil, apperrors.NewBadRequest("role must be leader or member")
		}
		name := parsed.String()
		role = &name
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		FullName: strings.TrimSpace(input.FullName),
		Password: hashed,
		Role:     role,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}
	return user, nil
}

// GetByID loads a user.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ensureContext(ctx)).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// Authenticate verifies an email/password pair. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string, ip string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: lookup user: %w", err)
	}
	if !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	now := s.now().UTC()
	ip = strings.TrimSpace(ip)
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": ip,
	}).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.LastLoginAt = &now
	user.LastLoginIP = ip
	return &user, nil
}

// QueryRole implements identity.RoleStore. A missing or inactive user is
// identity.ErrRoleNotFound; a null role is returned as the empty string.
func (s *UserService) QueryRole(ctx context.Context, userID string) (string, error) {
	var user models.User
	err := s.db.WithContext(ensureContext(ctx)).
		Select("id", "role", "is_active").
		Take(&user, "id = ?", strings.TrimSpace(userID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", identity.ErrRoleNotFound
	}
	if err != nil {
		return "", fmt.Errorf("user service: query role: %w", err)
	}
	if !user.IsActive {
		return "", identity.ErrRoleNotFound
	}
	return user.RoleName(), nil
}

// SetRole assigns a role; identity.Guest clears it.
func (s *UserService) SetRole(ctx context.Context, userID string, role identity.Role) error {
	var value any
	if !role.IsGuest() {
		value = role.String()
	}
	result := s.db.WithContext(ensureContext(ctx)).Model(&models.User{}).Where("id = ?", userID).Update("role", value)
	if result.Error != nil {
		return fmt.Errorf("user service: set role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetActive toggles whether the account can sign in.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) error {
	result := s.db.WithContext(ensureContext(ctx)).Model(&models.User{}).Where("id = ?", userID).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("user service: set active: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

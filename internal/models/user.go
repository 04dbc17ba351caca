package models

import "time"

// User is a dashboard account. Role is nil until an administrator provisions
// it; an unprovisioned user can sign in but is never authorized for a view.
type User struct {
	BaseModel

	Email    string  `gorm:"uniqueIndex;not null" json:"email"`
	FullName string  `gorm:"type:varchar(255)" json:"full_name"`
	Password string  `gorm:"not null" json:"-"`
	Role     *string `gorm:"type:varchar(32);index" json:"role"`
	IsActive bool    `gorm:"default:true" json:"is_active"`

	Sessions []Session `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`
}

// RoleName returns the stored role or the empty string.
func (u *User) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return *u.Role
}

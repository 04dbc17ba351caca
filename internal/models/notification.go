package models

import "gorm.io/datatypes"

// Notification is a per-user feed entry. ReferenceType/ReferenceID optionally
// point at the project or requisition the entry is about.
type Notification struct {
	BaseModel

	UserID        string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Title         string         `gorm:"type:varchar(255);not null" json:"title"`
	Message       string         `gorm:"type:text" json:"message"`
	Type          string         `gorm:"type:varchar(16);not null;default:'info'" json:"type"`
	Read          bool           `gorm:"column:is_read;default:false;index" json:"read"`
	ReferenceType *string        `gorm:"type:varchar(32)" json:"reference_type"`
	ReferenceID   *string        `gorm:"type:varchar(64)" json:"reference_id"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
}

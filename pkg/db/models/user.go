package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// User represents the canonical identity entity. The clearance engine only
// reads sellers and admins; it mutates nothing here except the active flag
// during debt enforcement.
type User struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email       string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	FullName    string         `gorm:"column:full_name;type:text;not null"`
	Phone       *string        `gorm:"column:phone;type:text"`
	Role        enums.UserRole `gorm:"column:role;type:user_role;not null;index"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	SuspendedAt *time.Time     `gorm:"column:suspended_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

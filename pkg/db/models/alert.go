package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/dropship-central/pkg/enums"
)

// Alert is an append-only policy notification.
type Alert struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	Type      string              `gorm:"column:type;not null"`
	ProductID uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	ListingID *uuid.UUID          `gorm:"column:listing_id;type:uuid"`
	Severity  enums.AlertSeverity `gorm:"column:severity;not null"`
	Message   string              `gorm:"column:message;not null"`
	Data      datatypes.JSON      `gorm:"column:data;type:jsonb"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// AuditLog is an append-only record of a state change on a resource.
type AuditLog struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID      `gorm:"column:user_id;type:uuid;not null"`
	Action       string         `gorm:"column:action;not null"`
	ResourceType string         `gorm:"column:resource_type;not null"`
	ResourceID   uuid.UUID      `gorm:"column:resource_id;type:uuid;not null;index"`
	OldValue     datatypes.JSON `gorm:"column:old_value;type:jsonb"`
	NewValue     datatypes.JSON `gorm:"column:new_value;type:jsonb"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
}

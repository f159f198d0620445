package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/dropship-central/pkg/enums"
)

// Job mirrors a queued unit of work so operators can see its progress and failures.
type Job struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind         enums.JobKind   `gorm:"column:kind;not null"`
	Status       enums.JobStatus `gorm:"column:status;not null"`
	Payload      datatypes.JSON  `gorm:"column:payload;type:jsonb;not null"`
	Attempts     int             `gorm:"column:attempts;not null;default:0"`
	ErrorMessage *string         `gorm:"column:error_message"`
	Result       datatypes.JSON  `gorm:"column:result;type:jsonb"`
	StartedAt    *time.Time      `gorm:"column:started_at"`
	CompletedAt  *time.Time      `gorm:"column:completed_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/repo"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
)

// Repository persists job rows for operator visibility.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID) (*models.Job, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, result datatypes.JSON) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

type repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = enums.JobStatusPending
	}
	return r.base.DB(ctx).Create(job).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := r.base.DB(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkRunning bumps the attempt counter and returns the updated row.
func (r *repository) MarkRunning(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	now := time.Now().UTC()
	res := r.base.DB(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.JobStatusRunning,
			"attempts":      gorm.Expr("attempts + 1"),
			"started_at":    now,
			"error_message": nil,
			"updated_at":    now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *repository) MarkSuccess(ctx context.Context, id uuid.UUID, result datatypes.JSON) error {
	now := time.Now().UTC()
	return r.base.DB(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.JobStatusSuccess,
			"result":       result,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	now := time.Now().UTC()
	return r.base.DB(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.JobStatusFailed,
			"error_message": message,
			"completed_at":  now,
			"updated_at":    now,
		}).Error
}

package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
)

// Repository describes the persistence the state machine relies on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Listing, error)
	CompareAndSetStatus(ctx context.Context, update StatusUpdate) (bool, error)
	InsertAudit(ctx context.Context, entry *models.AuditLog) error
}

// StatusUpdate is a conditional status write; it only applies while the row still holds From.
type StatusUpdate struct {
	ListingID uuid.UUID
	From      enums.ListingStatus
	To        enums.ListingStatus
	Reason    string
	EndedAt   *time.Time
	At        time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds listing persistence to a GORM connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Listing, error) {
	var rows []models.Listing
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CompareAndSetStatus(ctx context.Context, update StatusUpdate) (bool, error) {
	var reason *string
	if update.Reason != "" {
		reason = &update.Reason
	}
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", update.ListingID, update.From).
		Updates(map[string]any{
			"status":        update.To,
			"status_reason": reason,
			"ended_at":      update.EndedAt,
			"updated_at":    update.At,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertAudit(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

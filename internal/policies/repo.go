package policies

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/pagination"
)

// Repository loads the state a policy run evaluates and stores its alerts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListListings(ctx context.Context, productID uuid.UUID) ([]models.Listing, error)
	LatestPriceHistory(ctx context.Context, productID uuid.UUID, limit int) ([]models.PriceHistory, error)
	InsertAlert(ctx context.Context, alert *models.Alert) error
	ListProductIDsWithStatus(ctx context.Context, status enums.ListingStatus) ([]uuid.UUID, error)
	ListAlerts(ctx context.Context, productID uuid.UUID, page pagination.Params) ([]models.Alert, string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListListings(ctx context.Context, productID uuid.UUID) ([]models.Listing, error) {
	var rows []models.Listing
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// LatestPriceHistory returns up to limit rows, newest first. Rows sharing a timestamp are
// ordered by id so the result is stable.
func (r *repository) LatestPriceHistory(ctx context.Context, productID uuid.UUID, limit int) ([]models.PriceHistory, error) {
	var rows []models.PriceHistory
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("recorded_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(alert).Error
}

// ListProductIDsWithStatus returns the distinct products having at least one listing in status.
func (r *repository) ListProductIDsWithStatus(ctx context.Context, status enums.ListingStatus) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("status = ?", status).
		Distinct("product_id").
		Order("product_id ASC").
		Pluck("product_id", &ids).Error
	return ids, err
}

// ListAlerts pages through a product's alerts newest first. The returned cursor is empty on
// the last page.
func (r *repository) ListAlerts(ctx context.Context, productID uuid.UUID, page pagination.Params) ([]models.Alert, string, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Alert
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(page.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list alerts")
	}

	rows, next := pagination.Trim(rows, page.Limit, func(a models.Alert) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return rows, next, nil
}

package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
)

// Repository persists product observations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProductWithSupplier(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListTrackableProductIDs(ctx context.Context) ([]uuid.UUID, error)
	CompareAndUpdateProduct(ctx context.Context, update ProductUpdate) (bool, error)
	InsertPriceHistory(ctx context.Context, row *models.PriceHistory) error
	InsertStockHistory(ctx context.Context, row *models.StockHistory) error
}

// ProductUpdate applies only while the product still carries OldPrice and OldStock.
type ProductUpdate struct {
	ProductID uuid.UUID
	OldPrice  decimal.Decimal
	OldStock  string
	NewPrice  decimal.Decimal
	NewStock  string
	ScrapedAt time.Time
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

func (r *repository) FindProductWithSupplier(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Preload("Supplier").
		Where("id = ?", id).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListTrackableProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("is_archived = ?", false).
		Order("last_scraped_at ASC NULLS FIRST").
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) CompareAndUpdateProduct(ctx context.Context, update ProductUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND price = ? AND stock = ?", update.ProductID, update.OldPrice, update.OldStock).
		Updates(map[string]any{
			"price":           update.NewPrice,
			"stock":           update.NewStock,
			"last_scraped_at": update.ScrapedAt,
			"updated_at":      update.ScrapedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertPriceHistory(ctx context.Context, row *models.PriceHistory) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) InsertStockHistory(ctx context.Context, row *models.StockHistory) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

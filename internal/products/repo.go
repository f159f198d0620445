package products

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
)

// Repository reads and writes catalog products by their supplier key.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	FindBySupplierSKU(ctx context.Context, supplierID uuid.UUID, sku string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	UpdateDetails(ctx context.Context, id uuid.UUID, details Details) error
}

// Details are the descriptive product columns an import refreshes. Price and stock are
// left to the change detector.
type Details struct {
	Title        string
	Description  *string
	Rating       *float64
	ReviewsCount int
	Images       datatypes.JSON
	URL          *string
	ScrapedAt    time.Time
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

func (r *repository) FindSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (r *repository) FindBySupplierSKU(ctx context.Context, supplierID uuid.UUID, sku string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("supplier_id = ? AND external_sku = ?", supplierID, sku).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) UpdateDetails(ctx context.Context, id uuid.UUID, details Details) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":           details.Title,
			"description":     details.Description,
			"rating":          details.Rating,
			"reviews_count":   details.ReviewsCount,
			"images":          details.Images,
			"url":             details.URL,
			"last_scraped_at": details.ScrapedAt,
			"updated_at":      details.ScrapedAt,
		}).Error
}

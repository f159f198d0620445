package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/stores"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
)

// Repository reads the rows a sync needs and records marketplace identifiers.
type Repository struct {
	db     *gorm.DB
	stores *stores.Repository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, stores: stores.NewRepository(db)}
}

func (r *Repository) FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) FindStoreAccount(ctx context.Context, id uuid.UUID) (*models.StoreAccount, error) {
	return r.stores.FindByID(ctx, id)
}

// SetExternalID records the marketplace id without touching status columns.
func (r *Repository) SetExternalID(ctx context.Context, listingID uuid.UUID, externalID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", listingID).
		Update("external_listing_id", externalID).Error
}

// ClearExternalID drops the marketplace id once it has been withdrawn. The match on the old id
// keeps a concurrent relist from being erased.
func (r *Repository) ClearExternalID(ctx context.Context, listingID uuid.UUID, externalID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND external_listing_id = ?", listingID, externalID).
		Update("external_listing_id", nil).Error
}

func (r *Repository) TouchSynced(ctx context.Context, storeAccountID uuid.UUID, at time.Time) error {
	return r.stores.TouchSynced(ctx, storeAccountID, at)
}

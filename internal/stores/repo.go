package stores

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
)

// Repository handles store account persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to store account operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a store account by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StoreAccount, error) {
	var account models.StoreAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByIDWithTx loads a store account using the provided transaction.
func (r *Repository) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.StoreAccount, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var account models.StoreAccount
	if err := tx.First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// Disconnect clears every credential of the user's account and flags it disconnected in a
// single statement. It reports false when no account matched.
func (r *Repository) Disconnect(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StoreAccount{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"api_key":             nil,
			"api_secret":          nil,
			"oauth_token":         nil,
			"oauth_refresh_token": nil,
			"oauth_expires_at":    nil,
			"is_connected":        false,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TouchSynced stamps last_synced_at.
func (r *Repository) TouchSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.StoreAccount{}).
		Where("id = ?", id).
		Update("last_synced_at", at).Error
}

package stores

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
)

// StoreAccountDTO exposes a store account without its credentials.
type StoreAccountDTO struct {
	ID             uuid.UUID         `json:"id"`
	UserID         uuid.UUID         `json:"user_id"`
	Marketplace    enums.Marketplace `json:"marketplace"`
	AccountName    string            `json:"account_name"`
	IsConnected    bool              `json:"is_connected"`
	HasCredentials bool              `json:"has_credentials"`
	OAuthExpiresAt *time.Time        `json:"oauth_expires_at,omitempty"`
	LastSyncedAt   *time.Time        `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// FromModel maps the persisted account into a DTO.
func FromModel(m *models.StoreAccount) *StoreAccountDTO {
	if m == nil {
		return nil
	}
	return &StoreAccountDTO{
		ID:             m.ID,
		UserID:         m.UserID,
		Marketplace:    m.Marketplace,
		AccountName:    m.AccountName,
		IsConnected:    m.IsConnected,
		HasCredentials: m.HasCredentials(),
		OAuthExpiresAt: m.OAuthExpiresAt,
		LastSyncedAt:   m.LastSyncedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

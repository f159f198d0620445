package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/enums"
)

// StoreAccount is a user's connection to one marketplace.
type StoreAccount struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Marketplace       enums.Marketplace `gorm:"column:marketplace;not null"`
	AccountName       string            `gorm:"column:account_name;not null"`
	APIKey            *string           `gorm:"column:api_key"`
	APISecret         *string           `gorm:"column:api_secret"`
	OAuthToken        *string           `gorm:"column:oauth_token"`
	OAuthRefreshToken *string           `gorm:"column:oauth_refresh_token"`
	OAuthExpiresAt    *time.Time        `gorm:"column:oauth_expires_at"`
	IsConnected       bool              `gorm:"column:is_connected;not null;default:false"`
	LastSyncedAt      *time.Time        `gorm:"column:last_synced_at"`
	Listings          []Listing         `gorm:"foreignKey:StoreAccountID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// ClearCredentials drops every stored secret and marks the account disconnected.
func (s *StoreAccount) ClearCredentials() {
	s.APIKey = nil
	s.APISecret = nil
	s.OAuthToken = nil
	s.OAuthRefreshToken = nil
	s.OAuthExpiresAt = nil
	s.IsConnected = false
}

// HasCredentials reports whether any credential field is still populated.
func (s *StoreAccount) HasCredentials() bool {
	return s.APIKey != nil || s.APISecret != nil || s.OAuthToken != nil || s.OAuthRefreshToken != nil
}

// BeforeSave keeps disconnected accounts free of credentials.
func (s *StoreAccount) BeforeSave(*gorm.DB) error {
	if !s.IsConnected && s.HasCredentials() {
		s.ClearCredentials()
	}
	return nil
}

// Listing is a product's presence on one store account. Status and StatusReason are only
// written by the listing state machine.
type Listing struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	ProductID         uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	StoreAccountID    uuid.UUID           `gorm:"column:store_account_id;type:uuid;not null;index"`
	ExternalListingID *string             `gorm:"column:external_listing_id"`
	Title             string              `gorm:"column:title;not null"`
	Description       *string             `gorm:"column:description"`
	Price             decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	QuantityAvailable int                 `gorm:"column:quantity_available;not null;default:0"`
	Status            enums.ListingStatus `gorm:"column:status;not null;default:'Pending'"`
	StatusReason      *string             `gorm:"column:status_reason"`
	EndedAt           *time.Time          `gorm:"column:ended_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

package listings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
)

// ListingDTO is the API view of a listing.
type ListingDTO struct {
	ID                uuid.UUID           `json:"id"`
	UserID            uuid.UUID           `json:"user_id"`
	ProductID         uuid.UUID           `json:"product_id"`
	StoreAccountID    uuid.UUID           `json:"store_account_id"`
	ExternalListingID *string             `json:"external_listing_id,omitempty"`
	Title             string              `json:"title"`
	Description       *string             `json:"description,omitempty"`
	Price             decimal.Decimal     `json:"price"`
	QuantityAvailable int                 `json:"quantity_available"`
	Status            enums.ListingStatus `json:"status"`
	StatusReason      *string             `json:"status_reason,omitempty"`
	EndedAt           *time.Time          `json:"ended_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func FromModel(m *models.Listing) *ListingDTO {
	if m == nil {
		return nil
	}
	return &ListingDTO{
		ID:                m.ID,
		UserID:            m.UserID,
		ProductID:         m.ProductID,
		StoreAccountID:    m.StoreAccountID,
		ExternalListingID: m.ExternalListingID,
		Title:             m.Title,
		Description:       m.Description,
		Price:             m.Price,
		QuantityAvailable: m.QuantityAvailable,
		Status:            m.Status,
		StatusReason:      m.StatusReason,
		EndedAt:           m.EndedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

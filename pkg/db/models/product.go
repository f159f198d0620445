package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Supplier is an upstream catalog the tracker fetches product snapshots from.
type Supplier struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string    `gorm:"column:name;not null;uniqueIndex"`
	BaseURL    string    `gorm:"column:base_url;not null"`
	RateLimit  int       `gorm:"column:rate_limit;not null;default:60"`
	RequiresJS bool      `gorm:"column:requires_js;not null;default:false"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Product is a supplier-sourced item. Price and stock are only moved by the change detector.
type Product struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SupplierID    uuid.UUID       `gorm:"column:supplier_id;type:uuid;not null"`
	Supplier      *Supplier       `gorm:"foreignKey:SupplierID"`
	UserID        *uuid.UUID      `gorm:"column:user_id;type:uuid"`
	ExternalSKU   string          `gorm:"column:external_sku;not null"`
	Title         string          `gorm:"column:title;not null"`
	Description   *string         `gorm:"column:description"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Stock         string          `gorm:"column:stock;not null"`
	Rating        *float64        `gorm:"column:rating;type:numeric(3,2)"`
	ReviewsCount  int             `gorm:"column:reviews_count;not null;default:0"`
	Images        datatypes.JSON  `gorm:"column:images;type:jsonb"`
	URL           *string         `gorm:"column:url"`
	LastScrapedAt *time.Time      `gorm:"column:last_scraped_at"`
	IsArchived    bool            `gorm:"column:is_archived;not null;default:false"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PriceHistory is an immutable record of one detected price change.
// PriceChangePercent is nil when the product went from no price to a positive price.
type PriceHistory struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID          uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	OldPrice           decimal.Decimal  `gorm:"column:old_price;type:numeric(12,2);not null"`
	NewPrice           decimal.Decimal  `gorm:"column:new_price;type:numeric(12,2);not null"`
	PriceChangePercent *decimal.Decimal `gorm:"column:price_change_percent;type:numeric(12,4)"`
	RecordedAt         time.Time        `gorm:"column:recorded_at;not null"`
	Reason             string           `gorm:"column:reason;not null"`
}

func (PriceHistory) TableName() string { return "price_history" }

// StockHistory is an immutable record of one detected stock descriptor change.
type StockHistory struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	OldStock   string    `gorm:"column:old_stock;not null"`
	NewStock   string    `gorm:"column:new_stock;not null"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null"`
	Reason     string    `gorm:"column:reason;not null"`
}

func (StockHistory) TableName() string { return "stock_history" }

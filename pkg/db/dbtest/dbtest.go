// Package dbtest opens throwaway SQLite databases carrying the production schema shape for
// repository and service tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
)

var schema = []string{
	`CREATE TABLE suppliers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  base_url TEXT NOT NULL,
  rate_limit INTEGER NOT NULL DEFAULT 60,
  requires_js INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  supplier_id TEXT NOT NULL,
  user_id TEXT,
  external_sku TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  stock TEXT NOT NULL,
  rating REAL,
  reviews_count INTEGER NOT NULL DEFAULT 0,
  images TEXT,
  url TEXT,
  last_scraped_at DATETIME,
  is_archived INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (supplier_id, external_sku)
);`,
	`CREATE TABLE price_history (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  old_price TEXT NOT NULL,
  new_price TEXT NOT NULL,
  price_change_percent TEXT,
  recorded_at DATETIME NOT NULL,
  reason TEXT NOT NULL
);`,
	`CREATE TABLE stock_history (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  old_stock TEXT NOT NULL,
  new_stock TEXT NOT NULL,
  recorded_at DATETIME NOT NULL,
  reason TEXT NOT NULL
);`,
	`CREATE TABLE store_accounts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  marketplace TEXT NOT NULL,
  account_name TEXT NOT NULL,
  api_key TEXT,
  api_secret TEXT,
  oauth_token TEXT,
  oauth_refresh_token TEXT,
  oauth_expires_at DATETIME,
  is_connected INTEGER NOT NULL DEFAULT 0,
  last_synced_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE listings (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  store_account_id TEXT NOT NULL,
  external_listing_id TEXT,
  title TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  quantity_available INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending','Active','Paused','Ended','Delisted')),
  status_reason TEXT,
  ended_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE alerts (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  type TEXT NOT NULL,
  product_id TEXT NOT NULL,
  listing_id TEXT,
  severity TEXT NOT NULL,
  message TEXT NOT NULL,
  data TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE audit_logs (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  action TEXT NOT NULL,
  resource_type TEXT NOT NULL,
  resource_id TEXT NOT NULL,
  old_value TEXT,
  new_value TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE jobs (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  status TEXT NOT NULL,
  payload TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  error_message TEXT,
  result TEXT,
  started_at DATETIME,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

// Open returns an isolated in-memory database with every table created. The pool is capped
// at one connection so transactional code paths behave like they do against Postgres row locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// MustCreateSupplier inserts a supplier with the given name.
func MustCreateSupplier(t testing.TB, db *gorm.DB, name string) *models.Supplier {
	t.Helper()
	supplier := &models.Supplier{
		ID:        uuid.New(),
		Name:      name,
		BaseURL:   "https://" + name + ".example.com",
		RateLimit: 60,
		IsActive:  true,
	}
	if err := db.Create(supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	return supplier
}

// MustCreateProduct inserts a product owned by supplierID.
func MustCreateProduct(t testing.TB, db *gorm.DB, supplierID uuid.UUID, price decimal.Decimal, stock string) *models.Product {
	t.Helper()
	owner := uuid.New()
	product := &models.Product{
		ID:          uuid.New(),
		SupplierID:  supplierID,
		UserID:      &owner,
		ExternalSKU: "SKU-" + uuid.NewString()[:8],
		Title:       "Test product",
		Price:       price,
		Stock:       stock,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// MustCreateStoreAccount inserts a connected store account.
func MustCreateStoreAccount(t testing.TB, db *gorm.DB, userID uuid.UUID) *models.StoreAccount {
	t.Helper()
	token := "oauth-" + uuid.NewString()
	refresh := "refresh-" + uuid.NewString()
	account := &models.StoreAccount{
		ID:                uuid.New(),
		UserID:            userID,
		Marketplace:       enums.MarketplaceEbay,
		AccountName:       "test-store",
		OAuthToken:        &token,
		OAuthRefreshToken: &refresh,
		IsConnected:       true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create store account: %v", err)
	}
	return account
}

// MustCreateListing inserts a listing in the requested status.
func MustCreateListing(t testing.TB, db *gorm.DB, product *models.Product, account *models.StoreAccount, price decimal.Decimal, status enums.ListingStatus) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		ID:                uuid.New(),
		UserID:            account.UserID,
		ProductID:         product.ID,
		StoreAccountID:    account.ID,
		Title:             product.Title,
		Price:             price,
		QuantityAvailable: 1,
		Status:            status,
	}
	if status == enums.ListingStatusEnded {
		ended := time.Now().UTC()
		listing.EndedAt = &ended
	}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return listing
}

// MustAddPriceHistory appends a price history row at recordedAt.
func MustAddPriceHistory(t testing.TB, db *gorm.DB, productID uuid.UUID, oldPrice, newPrice decimal.Decimal, recordedAt time.Time) *models.PriceHistory {
	t.Helper()
	row := &models.PriceHistory{
		ID:         uuid.New(),
		ProductID:  productID,
		OldPrice:   oldPrice,
		NewPrice:   newPrice,
		RecordedAt: recordedAt.UTC(),
		Reason:     "supplier_update",
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("create price history: %v", err)
	}
	return row
}

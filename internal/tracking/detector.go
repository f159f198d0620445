package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/suppliers"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

const (
	ReasonSupplierUpdate = "supplier_update"
	ReasonNewlyPriced    = "newly_priced"
)

var hundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PriceChange describes the relative move of a price. NewlyPriced marks a move away from
// zero, which has no meaningful percentage; Percent is nil in that case.
type PriceChange struct {
	Percent     *decimal.Decimal
	NewlyPriced bool
}

// ChangeEvent is the delta one DetectAndRecord call persisted.
type ChangeEvent struct {
	ProductID    uuid.UUID
	PriceChanged bool
	OldPrice     decimal.Decimal
	NewPrice     decimal.Decimal
	PriceChange  PriceChange
	StockChanged bool
	OldStock     string
	NewStock     string
	DetectedAt   time.Time
}

// CalculatePriceChange returns (new-old)/old*100 rounded to four places.
func CalculatePriceChange(oldPrice, newPrice decimal.Decimal) PriceChange {
	if oldPrice.IsZero() {
		if newPrice.IsPositive() {
			return PriceChange{NewlyPriced: true}
		}
		zero := decimal.Zero
		return PriceChange{Percent: &zero}
	}
	pct := newPrice.Sub(oldPrice).Div(oldPrice).Mul(hundred).Round(4)
	return PriceChange{Percent: &pct}
}

// Detector compares supplier snapshots with stored products and records the differences.
type Detector struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewDetector(repo Repository, tx txRunner, logg *logger.Logger) (*Detector, error) {
	if repo == nil {
		return nil, fmt.Errorf("tracking repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Detector{
		repo: repo,
		tx:   tx,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// DetectAndRecord persists the price and stock delta between product and snap. It returns
// nil when nothing changed and fails with CodeConflict when another tracker moved the product
// after it was read.
func (d *Detector) DetectAndRecord(ctx context.Context, product *models.Product, snap suppliers.Snapshot) (*ChangeEvent, error) {
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product required")
	}
	if !hasChanged(product, snap) {
		return nil, nil
	}

	var event *ChangeEvent
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		event, err = d.record(ctx, tx, product, snap)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.apply(ctx, product, event)
	return event, nil
}

// DetectAndRecordTx is DetectAndRecord inside the caller's transaction. product is updated in
// memory only when a change was written.
func (d *Detector) DetectAndRecordTx(ctx context.Context, tx *gorm.DB, product *models.Product, snap suppliers.Snapshot) (*ChangeEvent, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product required")
	}
	if !hasChanged(product, snap) {
		return nil, nil
	}
	event, err := d.record(ctx, tx, product, snap)
	if err != nil {
		return nil, err
	}
	d.apply(ctx, product, event)
	return event, nil
}

func hasChanged(product *models.Product, snap suppliers.Snapshot) bool {
	return !snap.Price.Equal(product.Price) || snap.Stock != product.Stock
}

func (d *Detector) record(ctx context.Context, tx *gorm.DB, product *models.Product, snap suppliers.Snapshot) (*ChangeEvent, error) {
	priceChanged := !snap.Price.Equal(product.Price)
	stockChanged := snap.Stock != product.Stock

	now := d.now()
	event := &ChangeEvent{
		ProductID:    product.ID,
		PriceChanged: priceChanged,
		OldPrice:     product.Price,
		NewPrice:     product.Price,
		StockChanged: stockChanged,
		OldStock:     product.Stock,
		NewStock:     product.Stock,
		DetectedAt:   now,
	}
	if priceChanged {
		event.NewPrice = snap.Price
		event.PriceChange = CalculatePriceChange(product.Price, snap.Price)
	}
	if stockChanged {
		event.NewStock = snap.Stock
	}

	repo := d.repo.WithTx(tx)
	applied, err := repo.CompareAndUpdateProduct(ctx, ProductUpdate{
		ProductID: product.ID,
		OldPrice:  event.OldPrice,
		OldStock:  event.OldStock,
		NewPrice:  event.NewPrice,
		NewStock:  event.NewStock,
		ScrapedAt: now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product changed concurrently").
			WithDetails(map[string]string{"product_id": product.ID.String()})
	}

	if priceChanged {
		reason := ReasonSupplierUpdate
		if event.PriceChange.NewlyPriced {
			reason = ReasonNewlyPriced
		}
		if err := repo.InsertPriceHistory(ctx, &models.PriceHistory{
			ProductID:          product.ID,
			OldPrice:           event.OldPrice,
			NewPrice:           event.NewPrice,
			PriceChangePercent: event.PriceChange.Percent,
			RecordedAt:         now,
			Reason:             reason,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert price history")
		}
	}
	if stockChanged {
		if err := repo.InsertStockHistory(ctx, &models.StockHistory{
			ProductID:  product.ID,
			OldStock:   event.OldStock,
			NewStock:   event.NewStock,
			RecordedAt: now,
			Reason:     ReasonSupplierUpdate,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert stock history")
		}
	}
	return event, nil
}

func (d *Detector) apply(ctx context.Context, product *models.Product, event *ChangeEvent) {
	product.Price = event.NewPrice
	product.Stock = event.NewStock
	detectedAt := event.DetectedAt
	product.LastScrapedAt = &detectedAt

	fields := map[string]any{
		"price_changed": event.PriceChanged,
		"stock_changed": event.StockChanged,
		"old_price":     event.OldPrice.String(),
		"new_price":     event.NewPrice.String(),
	}
	if event.PriceChange.Percent != nil {
		fields["price_change_percent"] = event.PriceChange.Percent.String()
	}
	logCtx := d.logg.WithFields(d.logg.WithProductID(ctx, product.ID.String()), fields)
	d.logg.Info(logCtx, "product change recorded")
}

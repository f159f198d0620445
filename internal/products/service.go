// Package products imports supplier SKUs into the catalog.
package products

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/suppliers"
	"github.com/angelmondragon/dropship-central/internal/tracking"
	"github.com/angelmondragon/dropship-central/pkg/db"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type fetcherResolver interface {
	Get(name string) (suppliers.Fetcher, error)
}

type changeRecorder interface {
	DetectAndRecordTx(ctx context.Context, tx *gorm.DB, product *models.Product, snap suppliers.Snapshot) (*tracking.ChangeEvent, error)
}

// ImporterParams wires the product importer.
type ImporterParams struct {
	Repo      Repository
	DB        txRunner
	Suppliers fetcherResolver
	Detector  changeRecorder
	Logger    *logger.Logger
}

// Importer fetches a supplier SKU and upserts it as a product.
type Importer struct {
	repo      Repository
	tx        txRunner
	suppliers fetcherResolver
	detector  changeRecorder
	logg      *logger.Logger
	now       func() time.Time
}

func NewImporter(params ImporterParams) (*Importer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Suppliers == nil {
		return nil, fmt.Errorf("supplier registry required")
	}
	if params.Detector == nil {
		return nil, fmt.Errorf("change detector required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Importer{
		repo:      params.Repo,
		tx:        params.DB,
		suppliers: params.Suppliers,
		detector:  params.Detector,
		logg:      params.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// ImportRequest names the supplier SKU to import. UserID becomes the owner of a newly
// created product; an existing product keeps its owner.
type ImportRequest struct {
	SupplierID uuid.UUID
	SKU        string
	UserID     *uuid.UUID
}

// ImportResult reports the upserted product. Change is set when an existing product's price
// or stock moved.
type ImportResult struct {
	ProductID uuid.UUID
	Created   bool
	Change    *tracking.ChangeEvent
}

// Import fetches req.SKU from the supplier and creates or refreshes the matching product in
// one transaction. A SKU the supplier does not carry fails with CodeNotFound.
func (i *Importer) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	sku := strings.TrimSpace(req.SKU)
	if req.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier_id required")
	}
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	ctx = i.logg.WithFields(ctx, map[string]any{"supplier_id": req.SupplierID.String(), "sku": sku})

	supplier, err := i.repo.FindSupplier(ctx, req.SupplierID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found").
				WithDetails(map[string]string{"supplier_id": req.SupplierID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load supplier")
	}
	if !supplier.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "supplier is inactive").
			WithDetails(map[string]string{"supplier": supplier.Name})
	}

	snap, err := i.fetch(ctx, supplier, sku)
	if err != nil {
		return nil, err
	}

	var result *ImportResult
	err = i.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = i.upsert(ctx, tx, req, supplier.ID, sku, snap)
		return err
	})
	if err != nil {
		return nil, err
	}

	i.logg.Info(i.logg.WithFields(i.logg.WithProductID(ctx, result.ProductID.String()), map[string]any{
		"created": result.Created,
		"changed": result.Change != nil,
	}), "product imported")
	return result, nil
}

func (i *Importer) fetch(ctx context.Context, supplier *models.Supplier, sku string) (suppliers.Snapshot, error) {
	details := map[string]string{"supplier": supplier.Name, "sku": sku}
	fetcher, err := i.suppliers.Get(supplier.Name)
	if err != nil {
		return suppliers.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve supplier client").WithDetails(details)
	}
	snap, err := fetcher.Fetch(ctx, sku)
	if err != nil {
		if errors.Is(err, suppliers.ErrProductNotFound) {
			return suppliers.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "supplier does not carry sku").WithDetails(details)
		}
		if !errors.Is(err, suppliers.ErrScraping) {
			err = fmt.Errorf("%w: %v", suppliers.ErrScraping, err)
		}
		return suppliers.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch supplier product").WithDetails(details)
	}
	return snap, nil
}

func (i *Importer) upsert(ctx context.Context, tx *gorm.DB, req ImportRequest, supplierID uuid.UUID, sku string, snap suppliers.Snapshot) (*ImportResult, error) {
	repo := i.repo.WithTx(tx)
	details, err := detailsFrom(snap, i.now())
	if err != nil {
		return nil, err
	}

	existing, err := repo.FindBySupplierSKU(ctx, supplierID, sku)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}

	if existing == nil {
		scrapedAt := details.ScrapedAt
		product := &models.Product{
			SupplierID:    supplierID,
			UserID:        req.UserID,
			ExternalSKU:   sku,
			Title:         details.Title,
			Description:   details.Description,
			Price:         snap.Price,
			Stock:         snap.Stock,
			Rating:        details.Rating,
			ReviewsCount:  details.ReviewsCount,
			Images:        details.Images,
			URL:           details.URL,
			LastScrapedAt: &scrapedAt,
		}
		if err := repo.Create(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "") {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product imported concurrently")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
		}
		return &ImportResult{ProductID: product.ID, Created: true}, nil
	}

	if err := repo.UpdateDetails(ctx, existing.ID, details); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product details")
	}
	change, err := i.detector.DetectAndRecordTx(ctx, tx, existing, snap)
	if err != nil {
		return nil, err
	}
	return &ImportResult{ProductID: existing.ID, Change: change}, nil
}

func detailsFrom(snap suppliers.Snapshot, now time.Time) (Details, error) {
	images := snap.Images
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return Details{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode images")
	}
	var url *string
	if snap.URL != "" {
		u := snap.URL
		url = &u
	}
	return Details{
		Title:        snap.Title,
		Description:  snap.Description,
		Rating:       snap.Rating,
		ReviewsCount: snap.ReviewsCount,
		Images:       datatypes.JSON(raw),
		URL:          url,
		ScrapedAt:    now,
	}, nil
}

package policies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/config"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/metrics"
)

// ReasonLowStock is the status reason recorded on listings paused by the low stock check.
const ReasonLowStock = "low_stock"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type listingTransitioner interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, error)
}

// Thresholds configures the four checks.
type Thresholds struct {
	LowStock  int
	PriceDrop decimal.Decimal
	MinMargin decimal.Decimal
}

// DefaultThresholds mirrors the configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowStock:  5,
		PriceDrop: decimal.RequireFromString("0.05"),
		MinMargin: decimal.RequireFromString("0.15"),
	}
}

func ThresholdsFromConfig(cfg config.PolicyConfig) Thresholds {
	return Thresholds{
		LowStock:  cfg.LowStockThreshold,
		PriceDrop: cfg.PriceDrop(),
		MinMargin: cfg.Margin(),
	}
}

// Violation is one policy breach found for a product. ListingID is set for listing-scoped
// checks.
type Violation struct {
	Policy    enums.PolicyName    `json:"policy"`
	Severity  enums.AlertSeverity `json:"severity"`
	ProductID uuid.UUID           `json:"product_id"`
	ListingID *uuid.UUID          `json:"listing_id,omitempty"`
	UserID    *uuid.UUID          `json:"user_id,omitempty"`
	Details   map[string]any      `json:"details"`
}

// EngineParams wires the policy engine.
type EngineParams struct {
	Repo       Repository
	DB         txRunner
	Listings   listingTransitioner
	Logger     *logger.Logger
	Metrics    *metrics.PolicyMetrics
	Thresholds Thresholds
}

// Engine evaluates business policies for a product and records an alert per violation.
type Engine struct {
	repo       Repository
	db         txRunner
	listings   listingTransitioner
	logg       *logger.Logger
	metrics    *metrics.PolicyMetrics
	thresholds Thresholds
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("policy repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listing state machine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Thresholds.LowStock < 0 {
		return nil, fmt.Errorf("low stock threshold must be non-negative")
	}
	return &Engine{
		repo:       params.Repo,
		db:         params.DB,
		listings:   params.Listings,
		logg:       params.Logger,
		metrics:    params.Metrics,
		thresholds: params.Thresholds,
	}, nil
}

// CheckPolicies runs every check against the product's current state. Listing pauses and
// alert inserts commit together. A missing product yields no violations.
func (e *Engine) CheckPolicies(ctx context.Context, productID uuid.UUID) ([]Violation, error) {
	ctx = e.logg.WithProductID(ctx, productID.String())

	var violations []Violation
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)

		product, err := repo.FindProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		listings, err := repo.ListListings(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listings")
		}
		history, err := repo.LatestPriceHistory(ctx, productID, 2)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load price history")
		}

		found, err := e.checkLowStock(ctx, tx, product, listings)
		if err != nil {
			return err
		}
		if found != nil {
			violations = append(violations, *found)
		}
		if found := e.checkPriceDrop(product, history); found != nil {
			violations = append(violations, *found)
		}
		violations = append(violations, e.checkMargins(product, listings)...)
		violations = append(violations, checkDuplicates(product, listings)...)

		for i := range violations {
			if err := repo.InsertAlert(ctx, alertFor(violations[i])); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert policy alert")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, v := range violations {
		e.metrics.IncViolation(v.Policy.String())
	}
	if len(violations) > 0 {
		e.logg.Info(e.logg.WithField(ctx, "violations", len(violations)), "policy violations recorded")
	}
	if violations == nil {
		violations = []Violation{}
	}
	return violations, nil
}

func (e *Engine) checkLowStock(ctx context.Context, tx *gorm.DB, product *models.Product, listings []models.Listing) (*Violation, error) {
	qty, known := ParseStockQuantity(product.Stock)
	if !known || qty >= e.thresholds.LowStock {
		return nil, nil
	}

	for i := range listings {
		if listings[i].Status != enums.ListingStatusActive {
			continue
		}
		updated, err := e.listings.TransitionTx(ctx, tx, listings[i].ID, enums.ListingStatusPaused, ReasonLowStock)
		if err != nil {
			// Another writer moved the listing after it was read. Only listings still Active
			// are paused, so the rest of the run goes ahead.
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
					"listing_id": listings[i].ID.String(),
					"error":      err.Error(),
				}), "listing left Active before low stock pause")
				continue
			}
			return nil, err
		}
		listings[i] = *updated
	}

	return &Violation{
		Policy:    enums.PolicyLowStock,
		Severity:  enums.AlertSeverityWarning,
		ProductID: product.ID,
		UserID:    product.UserID,
		Details: map[string]any{
			"stock":      qty,
			"descriptor": product.Stock,
			"threshold":  e.thresholds.LowStock,
		},
	}, nil
}

func (e *Engine) checkPriceDrop(product *models.Product, history []models.PriceHistory) *Violation {
	if len(history) < 2 {
		return nil
	}
	newest, previous := history[0].NewPrice, history[1].NewPrice
	if previous.IsZero() {
		return nil
	}
	percent := newest.Sub(previous).Div(previous)
	if !percent.LessThan(e.thresholds.PriceDrop.Neg()) {
		return nil
	}
	return &Violation{
		Policy:    enums.PolicyPriceDrop,
		Severity:  enums.AlertSeverityInfo,
		ProductID: product.ID,
		UserID:    product.UserID,
		Details: map[string]any{
			"percent":   percent.Round(4),
			"threshold": e.thresholds.PriceDrop,
		},
	}
}

func (e *Engine) checkMargins(product *models.Product, listings []models.Listing) []Violation {
	if !product.Price.IsPositive() {
		return nil
	}
	var out []Violation
	for i := range listings {
		listing := listings[i]
		details := map[string]any{"required": e.thresholds.MinMargin}
		if listing.Price.IsPositive() {
			// Compared unrounded; only the reported value is rounded.
			margin := listing.Price.Sub(product.Price).Div(listing.Price)
			if !margin.LessThan(e.thresholds.MinMargin) {
				continue
			}
			details["margin"] = margin.Round(4)
		} else {
			details["margin"] = nil
		}
		listingID, userID := listing.ID, listing.UserID
		out = append(out, Violation{
			Policy:    enums.PolicyLowMargin,
			Severity:  enums.AlertSeverityWarning,
			ProductID: product.ID,
			ListingID: &listingID,
			UserID:    &userID,
			Details:   details,
		})
	}
	return out
}

// checkDuplicates emits one violation per store account holding more than one listing of the
// product.
func checkDuplicates(product *models.Product, listings []models.Listing) []Violation {
	counts := make(map[uuid.UUID]int)
	var order []uuid.UUID
	for _, listing := range listings {
		if _, seen := counts[listing.StoreAccountID]; !seen {
			order = append(order, listing.StoreAccountID)
		}
		counts[listing.StoreAccountID]++
	}

	var out []Violation
	for _, accountID := range order {
		if counts[accountID] < 2 {
			continue
		}
		out = append(out, Violation{
			Policy:    enums.PolicyDuplicateListings,
			Severity:  enums.AlertSeverityWarning,
			ProductID: product.ID,
			UserID:    product.UserID,
			Details: map[string]any{
				"count":            counts[accountID],
				"store_account_id": accountID.String(),
			},
		})
	}
	return out
}

func alertFor(v Violation) *models.Alert {
	data, _ := json.Marshal(v.Details)
	return &models.Alert{
		ID:        uuid.New(),
		UserID:    v.UserID,
		Type:      v.Policy.AlertType(),
		ProductID: v.ProductID,
		ListingID: v.ListingID,
		Severity:  v.Severity,
		Message:   "Policy violation: " + v.Policy.String(),
		Data:      datatypes.JSON(data),
	}
}

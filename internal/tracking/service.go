package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/suppliers"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/metrics"
)

const defaultConcurrency = 10

type fetcherResolver interface {
	Get(name string) (suppliers.Fetcher, error)
}

type changeDetector interface {
	DetectAndRecord(ctx context.Context, product *models.Product, snap suppliers.Snapshot) (*ChangeEvent, error)
}

// ServiceParams wires the tracking orchestrator.
type ServiceParams struct {
	Repo        Repository
	Suppliers   fetcherResolver
	Detector    changeDetector
	Logger      *logger.Logger
	Metrics     *metrics.TrackingMetrics
	Concurrency int
}

// Service fetches supplier snapshots and hands them to the change detector.
type Service struct {
	repo        Repository
	suppliers   fetcherResolver
	detector    changeDetector
	logg        *logger.Logger
	metrics     *metrics.TrackingMetrics
	concurrency int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("tracking repository required")
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
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Service{
		repo:        params.Repo,
		suppliers:   params.Suppliers,
		detector:    params.Detector,
		logg:        params.Logger,
		metrics:     params.Metrics,
		concurrency: concurrency,
	}, nil
}

// ProductFailure pairs a product with the error that stopped its tracking.
type ProductFailure struct {
	ProductID uuid.UUID
	Err       error
}

// BatchResult summarizes one TrackMultipleProducts call. Events are in completion order.
type BatchResult struct {
	Events    []*ChangeEvent
	Unchanged int
	Failures  []ProductFailure
}

// Err combines every per-product failure, or returns nil when none failed.
func (r *BatchResult) Err() error {
	if r == nil {
		return nil
	}
	var combined error
	for _, f := range r.Failures {
		combined = multierr.Append(combined, fmt.Errorf("product %s: %w", f.ProductID, f.Err))
	}
	return combined
}

// TrackProduct fetches the product's supplier snapshot and records any change. A missing
// product and an unchanged product both return nil, nil.
func (s *Service) TrackProduct(ctx context.Context, productID uuid.UUID) (*ChangeEvent, error) {
	ctx = s.logg.WithProductID(ctx, productID.String())

	product, err := s.repo.FindProductWithSupplier(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "product not found for tracking")
			return nil, nil
		}
		s.metrics.Observe(metrics.TrackResultFailed)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}

	snap, err := s.fetch(ctx, product)
	if err != nil {
		s.metrics.Observe(metrics.TrackResultFailed)
		return nil, err
	}

	event, err := s.detector.DetectAndRecord(ctx, product, snap)
	if err != nil {
		s.metrics.Observe(metrics.TrackResultFailed)
		return nil, err
	}
	if event == nil {
		s.metrics.Observe(metrics.TrackResultUnchanged)
		return nil, nil
	}
	s.metrics.Observe(metrics.TrackResultChanged)
	return event, nil
}

func (s *Service) fetch(ctx context.Context, product *models.Product) (suppliers.Snapshot, error) {
	if product.Supplier == nil {
		return suppliers.Snapshot{}, fetchFailed(product, fmt.Errorf("%w: product has no supplier", suppliers.ErrUnknownSupplier))
	}
	fetcher, err := s.suppliers.Get(product.Supplier.Name)
	if err != nil {
		return suppliers.Snapshot{}, fetchFailed(product, err)
	}
	snap, err := fetcher.Fetch(ctx, product.ExternalSKU)
	if err != nil {
		if !errors.Is(err, suppliers.ErrProductNotFound) && !errors.Is(err, suppliers.ErrScraping) {
			err = fmt.Errorf("%w: %v", suppliers.ErrScraping, err)
		}
		return suppliers.Snapshot{}, fetchFailed(product, err)
	}
	return snap, nil
}

func fetchFailed(product *models.Product, err error) error {
	details := map[string]string{
		"product_id": product.ID.String(),
		"sku":        product.ExternalSKU,
	}
	if product.Supplier != nil {
		details["supplier"] = product.Supplier.Name
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch supplier product").WithDetails(details)
}

// TrackMultipleProducts tracks ids concurrently. One product's failure never cancels the
// others; failures are collected in the result instead.
func (s *Service) TrackMultipleProducts(ctx context.Context, ids []uuid.UUID) *BatchResult {
	result := &BatchResult{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			event, err := s.TrackProduct(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failures = append(result.Failures, ProductFailure{ProductID: id, Err: err})
				s.logg.Error(s.logg.WithProductID(ctx, id.String()), "product tracking failed", err)
			case event == nil:
				result.Unchanged++
			default:
				result.Events = append(result.Events, event)
			}
			return nil
		})
	}
	_ = g.Wait()

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"products":  len(ids),
		"changed":   len(result.Events),
		"unchanged": result.Unchanged,
		"failed":    len(result.Failures),
	})
	s.logg.Info(logCtx, "product batch tracked")
	return result
}

// TrackAll tracks every non-archived product.
func (s *Service) TrackAll(ctx context.Context) (*BatchResult, error) {
	ids, err := s.repo.ListTrackableProductIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list trackable products")
	}
	return s.TrackMultipleProducts(ctx, ids), nil
}

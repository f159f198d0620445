package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/policies"
	"github.com/angelmondragon/dropship-central/internal/products"
	"github.com/angelmondragon/dropship-central/internal/syncer"
	"github.com/angelmondragon/dropship-central/internal/tracking"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/metrics"
	"github.com/angelmondragon/dropship-central/pkg/queue"
)

const (
	defaultMaxAttempts = 5

	outcomeSuccess = "success"
	outcomeRetry   = "retry"
	outcomeDead    = "dead"
	outcomeSkipped = "skipped"
)

type productTracker interface {
	TrackProduct(ctx context.Context, productID uuid.UUID) (*tracking.ChangeEvent, error)
}

type productImporter interface {
	Import(ctx context.Context, req products.ImportRequest) (*products.ImportResult, error)
}

type policyChecker interface {
	CheckPolicies(ctx context.Context, productID uuid.UUID) ([]policies.Violation, error)
}

type listingEnsurer interface {
	EnsureStatus(ctx context.Context, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, bool, error)
}

type listingSyncer interface {
	SyncListing(ctx context.Context, listingID uuid.UUID) (syncer.Result, error)
}

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, jobID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, jobID uuid.UUID) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, kind enums.JobKind, payload Payload) (*models.Job, error)
}

// DispatcherParams wires the worker's job handlers.
type DispatcherParams struct {
	Repo        Repository
	Tracker     productTracker
	Importer    productImporter
	Policies    policyChecker
	Listings    listingEnsurer
	Syncer      listingSyncer
	Idempotency idempotencyGuard
	FollowUps   enqueuer
	Consumer    string
	MaxAttempts int
	Logger      *logger.Logger
	Metrics     *metrics.JobMetrics
}

// Dispatcher runs queued jobs by kind and records their outcome on the job row.
type Dispatcher struct {
	repo        Repository
	tracker     productTracker
	importer    productImporter
	policies    policyChecker
	listings    listingEnsurer
	syncer      listingSyncer
	guard       idempotencyGuard
	followUps   enqueuer
	consumer    string
	maxAttempts int
	logg        *logger.Logger
	metrics     *metrics.JobMetrics
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, errors.New("jobs repository required")
	}
	if params.Tracker == nil {
		return nil, errors.New("product tracker required")
	}
	if params.Importer == nil {
		return nil, errors.New("product importer required")
	}
	if params.Policies == nil {
		return nil, errors.New("policy engine required")
	}
	if params.Listings == nil {
		return nil, errors.New("listing service required")
	}
	if params.Syncer == nil {
		return nil, errors.New("listing syncer required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency guard required")
	}
	if params.Consumer == "" {
		return nil, errors.New("consumer name required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Dispatcher{
		repo:        params.Repo,
		tracker:     params.Tracker,
		importer:    params.Importer,
		policies:    params.Policies,
		listings:    params.Listings,
		syncer:      params.Syncer,
		guard:       params.Idempotency,
		followUps:   params.FollowUps,
		consumer:    params.Consumer,
		maxAttempts: maxAttempts,
		logg:        params.Logger,
		metrics:     params.Metrics,
	}, nil
}

// Handle satisfies queue.Handler. A returned plain error leaves the entry pending;
// queue.Permanent errors are acknowledged.
func (d *Dispatcher) Handle(ctx context.Context, msg queue.Message) error {
	kind := msg.Kind.String()

	already, err := d.guard.CheckAndMarkProcessed(ctx, d.consumer, msg.JobID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		d.logg.Info(ctx, "job already processed")
		d.metrics.Observe(kind, outcomeSkipped)
		return nil
	}

	job, err := d.repo.MarkRunning(ctx, msg.JobID)
	if err != nil {
		d.release(ctx, msg.JobID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d.metrics.Observe(kind, outcomeDead)
			return queue.Permanent(pkgerrors.New(pkgerrors.CodeNotFound, "job row not found"))
		}
		return fmt.Errorf("mark job running: %w", err)
	}
	ctx = d.logg.WithField(ctx, "attempt", job.Attempts)

	result, runErr := d.run(ctx, msg)
	if runErr == nil {
		if err := d.repo.MarkSuccess(ctx, job.ID, result); err != nil {
			d.logg.Error(ctx, "failed to mark job success", err)
		}
		d.metrics.Observe(kind, outcomeSuccess)
		d.logg.Info(ctx, "job succeeded")
		return nil
	}

	if err := d.repo.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
		d.logg.Error(ctx, "failed to mark job failure", err)
	}
	d.release(ctx, msg.JobID)

	if job.Attempts >= d.maxAttempts || !pkgerrors.IsRetryable(runErr) {
		d.metrics.Observe(kind, outcomeDead)
		return queue.Permanent(runErr)
	}
	d.metrics.Observe(kind, outcomeRetry)
	return runErr
}

func (d *Dispatcher) release(ctx context.Context, jobID uuid.UUID) {
	if err := d.guard.Delete(ctx, d.consumer, jobID); err != nil {
		d.logg.Error(ctx, "failed to release idempotency key", err)
	}
}

func (d *Dispatcher) run(ctx context.Context, msg queue.Message) (datatypes.JSON, error) {
	var (
		out any
		err error
	)
	switch msg.Kind {
	case enums.JobKindTrackProduct:
		out, err = d.trackProduct(ctx, msg)
	case enums.JobKindImportProduct:
		out, err = d.importProduct(ctx, msg)
	case enums.JobKindCheckPolicies:
		out, err = d.checkPolicies(ctx, msg)
	case enums.JobKindTransitionListing:
		out, err = d.transitionListing(ctx, msg)
	case enums.JobKindSyncListing:
		out, err = d.syncListing(ctx, msg)
	default:
		err = pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported job kind %q", msg.Kind))
	}
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode job result")
	}
	return datatypes.JSON(raw), nil
}

func (d *Dispatcher) trackProduct(ctx context.Context, msg queue.Message) (map[string]any, error) {
	if msg.ProductID == nil {
		return nil, missingField("product_id")
	}
	ctx = d.logg.WithProductID(ctx, msg.ProductID.String())
	event, err := d.tracker.TrackProduct(ctx, *msg.ProductID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return map[string]any{"changed": false}, nil
	}
	if d.followUps != nil {
		if _, err := d.followUps.Enqueue(ctx, enums.JobKindCheckPolicies, ForProduct(event.ProductID)); err != nil {
			d.logg.Error(ctx, "failed to enqueue policy check", err)
		}
	}
	return map[string]any{
		"changed":       true,
		"price_changed": event.PriceChanged,
		"stock_changed": event.StockChanged,
	}, nil
}

func (d *Dispatcher) importProduct(ctx context.Context, msg queue.Message) (map[string]any, error) {
	if msg.SupplierID == nil {
		return nil, missingField("supplier_id")
	}
	if msg.SKU == "" {
		return nil, missingField("sku")
	}
	result, err := d.importer.Import(ctx, products.ImportRequest{
		SupplierID: *msg.SupplierID,
		SKU:        msg.SKU,
		UserID:     msg.UserID,
	})
	if err != nil {
		return nil, err
	}
	ctx = d.logg.WithProductID(ctx, result.ProductID.String())
	// A re-import that moved price or stock gets the same policy pass as a tracked change.
	if result.Change != nil && d.followUps != nil {
		if _, err := d.followUps.Enqueue(ctx, enums.JobKindCheckPolicies, ForProduct(result.ProductID)); err != nil {
			d.logg.Error(ctx, "failed to enqueue policy check", err)
		}
	}
	return map[string]any{
		"product_id": result.ProductID,
		"created":    result.Created,
		"changed":    result.Change != nil,
	}, nil
}

func (d *Dispatcher) checkPolicies(ctx context.Context, msg queue.Message) (map[string]any, error) {
	if msg.ProductID == nil {
		return nil, missingField("product_id")
	}
	ctx = d.logg.WithProductID(ctx, msg.ProductID.String())
	violations, err := d.policies.CheckPolicies(ctx, *msg.ProductID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(violations))
	for _, v := range violations {
		names = append(names, string(v.Policy))
	}
	return map[string]any{"violations": names}, nil
}

func (d *Dispatcher) transitionListing(ctx context.Context, msg queue.Message) (map[string]any, error) {
	if msg.ListingID == nil {
		return nil, missingField("listing_id")
	}
	if msg.TargetStatus == "" {
		return nil, missingField("target_status")
	}
	ctx = d.logg.WithListingID(ctx, msg.ListingID.String())
	listing, changed, err := d.listings.EnsureStatus(ctx, *msg.ListingID, msg.TargetStatus, msg.Reason)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": listing.Status, "changed": changed}, nil
}

func (d *Dispatcher) syncListing(ctx context.Context, msg queue.Message) (syncer.Result, error) {
	if msg.ListingID == nil {
		return syncer.Result{}, missingField("listing_id")
	}
	ctx = d.logg.WithListingID(ctx, msg.ListingID.String())
	return d.syncer.SyncListing(ctx, *msg.ListingID)
}

func missingField(name string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "job message missing "+name)
}

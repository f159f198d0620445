package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropship-central/api/middleware"
	"github.com/angelmondragon/dropship-central/api/responses"
	"github.com/angelmondragon/dropship-central/api/validators"
	"github.com/angelmondragon/dropship-central/internal/jobs"
	"github.com/angelmondragon/dropship-central/internal/tracking"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

// ProductTracker runs supplier tracking on demand.
type ProductTracker interface {
	TrackProduct(ctx context.Context, productID uuid.UUID) (*tracking.ChangeEvent, error)
	TrackMultipleProducts(ctx context.Context, ids []uuid.UUID) *tracking.BatchResult
}

// JobEnqueuer queues background jobs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, kind enums.JobKind, payload jobs.Payload) (*models.Job, error)
}

type importRequest struct {
	SupplierID uuid.UUID `json:"supplier_id" validate:"required"`
	SKU        string    `json:"sku" validate:"required,max=128"`
}

type importResponse struct {
	JobID  uuid.UUID       `json:"job_id"`
	Status enums.JobStatus `json:"status"`
}

type trackBatchRequest struct {
	ProductIDs []uuid.UUID `json:"product_ids" validate:"required,min=1,max=500"`
}

type changeEventResponse struct {
	ProductID     uuid.UUID        `json:"product_id"`
	PriceChanged  bool             `json:"price_changed"`
	OldPrice      decimal.Decimal  `json:"old_price"`
	NewPrice      decimal.Decimal  `json:"new_price"`
	PercentChange *decimal.Decimal `json:"percent_change,omitempty"`
	NewlyPriced   bool             `json:"newly_priced,omitempty"`
	StockChanged  bool             `json:"stock_changed"`
	OldStock      string           `json:"old_stock"`
	NewStock      string           `json:"new_stock"`
	DetectedAt    time.Time        `json:"detected_at"`
}

type trackResponse struct {
	ProductID uuid.UUID            `json:"product_id"`
	Changed   bool                 `json:"changed"`
	Event     *changeEventResponse `json:"event,omitempty"`
}

type trackFailure struct {
	ProductID uuid.UUID `json:"product_id"`
	Error     string    `json:"error"`
}

type trackBatchResponse struct {
	Requested int                    `json:"requested"`
	Changed   int                    `json:"changed"`
	Unchanged int                    `json:"unchanged"`
	Failed    int                    `json:"failed"`
	Events    []*changeEventResponse `json:"events"`
	Failures  []trackFailure         `json:"failures"`
}

func toChangeEventResponse(ev *tracking.ChangeEvent) *changeEventResponse {
	if ev == nil {
		return nil
	}
	return &changeEventResponse{
		ProductID:     ev.ProductID,
		PriceChanged:  ev.PriceChanged,
		OldPrice:      ev.OldPrice,
		NewPrice:      ev.NewPrice,
		PercentChange: ev.PriceChange.Percent,
		NewlyPriced:   ev.PriceChange.NewlyPriced,
		StockChanged:  ev.StockChanged,
		OldStock:      ev.OldStock,
		NewStock:      ev.NewStock,
		DetectedAt:    ev.DetectedAt,
	}
}

// ProductTrack fetches the supplier snapshot for one product and records any change.
func ProductTrack(svc ProductTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.TrackProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, trackResponse{
			ProductID: productID,
			Changed:   event != nil,
			Event:     toChangeEventResponse(event),
		})
	}
}

// ProductsTrackBatch tracks several products. Per-product failures are reported in the
// body and never fail the request.
func ProductsTrackBatch(svc ProductTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trackBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := svc.TrackMultipleProducts(r.Context(), req.ProductIDs)
		resp := trackBatchResponse{
			Requested: len(req.ProductIDs),
			Events:    []*changeEventResponse{},
			Failures:  []trackFailure{},
		}
		if result != nil {
			for _, ev := range result.Events {
				resp.Events = append(resp.Events, toChangeEventResponse(ev))
			}
			for _, f := range result.Failures {
				resp.Failures = append(resp.Failures, trackFailure{ProductID: f.ProductID, Error: f.Err.Error()})
			}
			resp.Changed = len(result.Events)
			resp.Unchanged = result.Unchanged
			resp.Failed = len(result.Failures)
		}
		responses.WriteSuccess(w, resp)
	}
}

// ProductImport queues an import of a supplier SKU for the caller. The product is created or
// refreshed by the worker; the response carries the job to poll.
func ProductImport(svc JobEnqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		var req importRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sku := validators.SanitizeString(req.SKU, 128)
		if req.SupplierID == uuid.Nil || sku == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "supplier_id and sku are required"))
			return
		}

		job, err := svc.Enqueue(r.Context(), enums.JobKindImportProduct, jobs.ForImport(req.SupplierID, sku, &userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, importResponse{JobID: job.ID, Status: job.Status})
	}
}

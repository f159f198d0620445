package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-central/api/responses"
	"github.com/angelmondragon/dropship-central/api/validators"
	"github.com/angelmondragon/dropship-central/internal/policies"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/pagination"
)

type PolicyChecker interface {
	CheckPolicies(ctx context.Context, productID uuid.UUID) ([]policies.Violation, error)
}

type AlertLister interface {
	ListAlerts(ctx context.Context, productID uuid.UUID, page pagination.Params) ([]models.Alert, string, error)
}

type alertResponse struct {
	ID        uuid.UUID           `json:"id"`
	Type      string              `json:"type"`
	ProductID uuid.UUID           `json:"product_id"`
	ListingID *uuid.UUID          `json:"listing_id,omitempty"`
	Severity  enums.AlertSeverity `json:"severity"`
	Message   string              `json:"message"`
	Data      json.RawMessage     `json:"data,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// ProductPoliciesCheck evaluates every policy for the product and returns the violations.
func ProductPoliciesCheck(svc PolicyChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		violations, err := svc.CheckPolicies(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if violations == nil {
			violations = []policies.Violation{}
		}
		responses.WriteSuccess(w, map[string]any{
			"product_id": productID,
			"violations": violations,
		})
	}
}

// ProductAlerts pages through the product's alerts, newest first.
func ProductAlerts(repo AlertLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := repo.ListAlerts(r.Context(), productID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]alertResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, alertResponse{
				ID:        row.ID,
				Type:      row.Type,
				ProductID: row.ProductID,
				ListingID: row.ListingID,
				Severity:  row.Severity,
				Message:   row.Message,
				Data:      json.RawMessage(row.Data),
				CreatedAt: row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, map[string]any{
			"alerts":      out,
			"next_cursor": next,
		})
	}
}

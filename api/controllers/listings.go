package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-central/api/middleware"
	"github.com/angelmondragon/dropship-central/api/responses"
	"github.com/angelmondragon/dropship-central/api/validators"
	"github.com/angelmondragon/dropship-central/internal/listings"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

const maxReasonLength = 500

// ListingService is the slice of the listing state machine the API drives.
type ListingService interface {
	Get(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Listing, error)
	Transition(ctx context.Context, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, error)
	Pause(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error)
	Resume(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	End(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Active Paused Ended Delisted"`
	Reason string `json:"reason" validate:"max=500"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func ListingGet(svc ListingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, ok := ownedListing(w, r, svc, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, listings.FromModel(listing))
	}
}

// ListingTransition moves a listing to the requested status.
func ListingTransition(svc ListingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, ok := ownedListing(w, r, svc, logg)
		if !ok {
			return
		}
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseListingStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		updated, err := svc.Transition(r.Context(), listing.ID, target, validators.SanitizeString(req.Reason, maxReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listings.FromModel(updated))
	}
}

func ListingPause(svc ListingService, logg *logger.Logger) http.HandlerFunc {
	return reasonAction(svc, logg, svc.Pause)
}

func ListingResume(svc ListingService, logg *logger.Logger) http.HandlerFunc {
	return reasonAction(svc, logg, func(ctx context.Context, id uuid.UUID, _ string) (*models.Listing, error) {
		return svc.Resume(ctx, id)
	})
}

func ListingEnd(svc ListingService, logg *logger.Logger) http.HandlerFunc {
	return reasonAction(svc, logg, svc.End)
}

// ProductListings lists the caller's listings of a product.
func ProductListings(svc ListingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListByProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*listings.ListingDTO, 0, len(rows))
		for i := range rows {
			if rows[i].UserID == userID {
				out = append(out, listings.FromModel(&rows[i]))
			}
		}
		responses.WriteSuccess(w, out)
	}
}

func reasonAction(svc ListingService, logg *logger.Logger, action func(context.Context, uuid.UUID, string) (*models.Listing, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, ok := ownedListing(w, r, svc, logg)
		if !ok {
			return
		}
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := action(r.Context(), listing.ID, validators.SanitizeString(req.Reason, maxReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listings.FromModel(updated))
	}
}

// ownedListing loads the listing named in the path. Listings owned by another user are
// reported as missing.
func ownedListing(w http.ResponseWriter, r *http.Request, svc ListingService, logg *logger.Logger) (*models.Listing, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listing service unavailable"))
		return nil, false
	}
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return nil, false
	}
	listingID, err := validators.ParseUUIDParam(r, "listingId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	listing, err := svc.Get(r.Context(), listingID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if listing.UserID != userID {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found"))
		return nil, false
	}
	return listing, true
}

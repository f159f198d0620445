package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/marketplaces"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

// Action names what a sync did on the marketplace.
type Action string

const (
	ActionCreated  Action = "created"
	ActionRepriced Action = "repriced"
	ActionWithdraw Action = "withdrawn"
	ActionNone     Action = "none"
)

// Result reports the outcome of one SyncListing call.
type Result struct {
	ListingID  uuid.UUID           `json:"listing_id"`
	Status     enums.ListingStatus `json:"status"`
	Action     Action              `json:"action"`
	ExternalID string              `json:"external_id,omitempty"`
}

type clientResolver interface {
	Get(marketplace enums.Marketplace) (marketplaces.Client, error)
}

// Service pushes a listing's current state to its marketplace.
type Service struct {
	repo    *Repository
	clients clientResolver
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(repo *Repository, clients clientResolver, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sync repository required")
	}
	if clients == nil {
		return nil, fmt.Errorf("marketplace registry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:    repo,
		clients: clients,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SyncListing re-reads the listing and reconciles the marketplace with its current status.
// Reruns after a redelivery converge on the same marketplace state.
func (s *Service) SyncListing(ctx context.Context, listingID uuid.UUID) (Result, error) {
	ctx = s.logg.WithListingID(ctx, listingID.String())

	listing, err := s.repo.FindListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
	}
	account, err := s.repo.FindStoreAccount(ctx, listing.StoreAccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "store account not found")
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load store account")
	}

	result := Result{ListingID: listing.ID, Status: listing.Status, Action: ActionNone}
	if listing.ExternalListingID != nil {
		result.ExternalID = *listing.ExternalListingID
	}

	if !account.IsConnected {
		return result, pkgerrors.New(pkgerrors.CodeStateConflict, "store account is not connected").
			WithDetails(map[string]string{"store_account_id": account.ID.String()})
	}

	hasExternal := result.ExternalID != ""
	switch {
	case listing.Status == enums.ListingStatusActive && !hasExternal:
		product, err := s.repo.FindProduct(ctx, listing.ProductID)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		client, err := s.client(account)
		if err != nil {
			return result, err
		}
		externalID, err := client.CreateListing(ctx, account, product, listing.Price)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create marketplace listing")
		}
		if err := s.repo.SetExternalID(ctx, listing.ID, externalID); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store external listing id")
		}
		result.Action, result.ExternalID = ActionCreated, externalID

	case listing.Status == enums.ListingStatusActive:
		client, err := s.client(account)
		if err != nil {
			return result, err
		}
		if _, err := client.UpdatePrice(ctx, account, result.ExternalID, listing.Price); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update marketplace price")
		}
		result.Action = ActionRepriced

	case hasExternal && listing.Status != enums.ListingStatusPending:
		client, err := s.client(account)
		if err != nil {
			return result, err
		}
		if _, err := client.Withdraw(ctx, account, result.ExternalID); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw marketplace listing")
		}
		// A withdrawn marketplace listing cannot be repriced back to life, so the next
		// Active sync has to create a fresh one.
		if err := s.repo.ClearExternalID(ctx, listing.ID, result.ExternalID); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear external listing id")
		}
		result.Action = ActionWithdraw

	default:
		return result, nil
	}

	if err := s.repo.TouchSynced(ctx, account.ID, s.now()); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to stamp store sync time")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"action":      string(result.Action),
		"status":      result.Status.String(),
		"external_id": result.ExternalID,
	}), "listing synced")
	return result, nil
}

func (s *Service) client(account *models.StoreAccount) (marketplaces.Client, error) {
	client, err := s.clients.Get(account.Marketplace)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve marketplace client")
	}
	return client, nil
}

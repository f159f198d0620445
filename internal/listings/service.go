package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/outbox"
)

const (
	ReasonManualPause = "manual_pause"
	ReasonManualEnd   = "manual_end"

	auditActionTransition = "transition"
	auditResourceListing  = "listing"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the only writer of listing status.
type Service interface {
	Get(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Listing, error)
	Transition(ctx context.Context, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, error)
	Pause(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error)
	Resume(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	End(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error)
	EnsureStatus(ctx context.Context, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, bool, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the listing state machine.
func NewService(repo Repository, tx txRunner, emitter outboxEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("listing repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// InvalidTransition builds the error returned for a move the transition table forbids.
// The details carry the targets that are legal from the current status.
func InvalidTransition(from, to enums.ListingStatus) error {
	message := fmt.Sprintf("cannot transition listing from %s to %s", from, to)
	if from.IsTerminal() {
		message = fmt.Sprintf("listing is %s and can no longer change status", from)
	}
	allowed := []string{}
	for _, target := range from.AllowedTransitions() {
		allowed = append(allowed, target.String())
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"from": from.String(), "to": to.String(), "allowed": allowed})
}

func (s *service) Get(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	return s.load(ctx, s.repo, listingID)
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Listing, error) {
	rows, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list listings")
	}
	return rows, nil
}

func (s *service) Transition(ctx context.Context, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, error) {
	var updated *models.Listing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		updated, err = s.TransitionTx(ctx, tx, listingID, target, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown listing status %q", target))
	}

	repo := s.repo.WithTx(tx)
	listing, err := s.load(ctx, repo, listingID)
	if err != nil {
		return nil, err
	}

	from := listing.Status
	if !from.CanTransitionTo(target) {
		return nil, InvalidTransition(from, target)
	}

	now := s.now()
	var endedAt *time.Time
	if target == enums.ListingStatusEnded {
		endedAt = &now
	}

	applied, err := repo.CompareAndSetStatus(ctx, StatusUpdate{
		ListingID: listing.ID,
		From:      from,
		To:        target,
		Reason:    reason,
		EndedAt:   endedAt,
		At:        now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update listing status")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "listing status changed concurrently").
			WithDetails(map[string]string{"listing_id": listing.ID.String(), "expected": from.String()})
	}

	if err := repo.InsertAudit(ctx, transitionAudit(listing, from, target, reason)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write listing audit")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventListingStatusChanged,
		AggregateType: enums.AggregateListing,
		AggregateID:   listing.ID,
		Actor:         &outbox.ActorRef{UserID: listing.UserID},
		Data: outbox.ListingStatusChanged{
			ListingID: listing.ID,
			From:      from,
			To:        target,
			Reason:    reason,
		},
		OccurredAt: now,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit listing status changed")
	}

	listing.Status = target
	listing.StatusReason = nil
	if reason != "" {
		r := reason
		listing.StatusReason = &r
	}
	listing.EndedAt = endedAt
	listing.UpdatedAt = now

	logCtx := s.logg.WithListingID(ctx, listing.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"from":   from.String(),
		"to":     target.String(),
		"reason": reason,
	})
	s.logg.Info(logCtx, "listing transitioned")
	return listing, nil
}

func (s *service) Pause(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error) {
	if reason == "" {
		reason = ReasonManualPause
	}
	return s.Transition(ctx, listingID, enums.ListingStatusPaused, reason)
}

func (s *service) Resume(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	return s.Transition(ctx, listingID, enums.ListingStatusActive, "")
}

func (s *service) End(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error) {
	if reason == "" {
		reason = ReasonManualEnd
	}
	return s.Transition(ctx, listingID, enums.ListingStatusEnded, reason)
}

// EnsureStatus moves the listing to target unless it is already there. Queue handlers use it so
// a redelivered transition reports success without writing a second audit row.
func (s *service) EnsureStatus(ctx context.Context, listingID uuid.UUID, target enums.ListingStatus, reason string) (*models.Listing, bool, error) {
	listing, err := s.Get(ctx, listingID)
	if err != nil {
		return nil, false, err
	}
	if listing.Status == target {
		return listing, false, nil
	}
	updated, err := s.Transition(ctx, listingID, target, reason)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func (s *service) load(ctx context.Context, repo Repository, listingID uuid.UUID) (*models.Listing, error) {
	listing, err := repo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
	}
	return listing, nil
}

func transitionAudit(listing *models.Listing, from, to enums.ListingStatus, reason string) *models.AuditLog {
	oldValue, _ := json.Marshal(map[string]string{"status": from.String()})
	newValue, _ := json.Marshal(map[string]string{"status": to.String(), "reason": reason})
	return &models.AuditLog{
		ID:           uuid.New(),
		UserID:       listing.UserID,
		Action:       auditActionTransition,
		ResourceType: auditResourceListing,
		ResourceID:   listing.ID,
		OldValue:     datatypes.JSON(oldValue),
		NewValue:     datatypes.JSON(newValue),
	}
}

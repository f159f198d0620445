package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/queue"
)

// Payload is the kind-specific input of a job. It is stored on the job row and
// flattened into the stream entry.
type Payload struct {
	ProductID    *uuid.UUID          `json:"product_id,omitempty"`
	ListingID    *uuid.UUID          `json:"listing_id,omitempty"`
	Action       string              `json:"action,omitempty"`
	TargetStatus enums.ListingStatus `json:"target_status,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	SupplierID   *uuid.UUID          `json:"supplier_id,omitempty"`
	SKU          string              `json:"sku,omitempty"`
	UserID       *uuid.UUID          `json:"user_id,omitempty"`
}

// ForProduct builds the payload for product-scoped kinds.
func ForProduct(id uuid.UUID) Payload {
	return Payload{ProductID: &id}
}

// ForListing builds the payload for listing-scoped kinds.
func ForListing(id uuid.UUID) Payload {
	return Payload{ListingID: &id}
}

// ForImport builds the payload of an import_product job. userID becomes the owner of a newly
// created product.
func ForImport(supplierID uuid.UUID, sku string, userID *uuid.UUID) Payload {
	return Payload{SupplierID: &supplierID, SKU: sku, UserID: userID}
}

// Validate checks that payload carries what kind needs.
func (p Payload) Validate(kind enums.JobKind) error {
	switch kind {
	case enums.JobKindTrackProduct, enums.JobKindCheckPolicies:
		if p.ProductID == nil {
			return fmt.Errorf("%s requires product_id", kind)
		}
	case enums.JobKindSyncListing:
		if p.ListingID == nil {
			return fmt.Errorf("%s requires listing_id", kind)
		}
	case enums.JobKindImportProduct:
		if p.SupplierID == nil {
			return fmt.Errorf("%s requires supplier_id", kind)
		}
		if strings.TrimSpace(p.SKU) == "" {
			return fmt.Errorf("%s requires sku", kind)
		}
	case enums.JobKindTransitionListing:
		if p.ListingID == nil {
			return fmt.Errorf("%s requires listing_id", kind)
		}
		if !p.TargetStatus.IsValid() {
			return fmt.Errorf("%s requires a valid target_status", kind)
		}
	default:
		return fmt.Errorf("unsupported job kind %q", kind)
	}
	return nil
}

func (p Payload) message(jobID uuid.UUID, kind enums.JobKind) queue.Message {
	return queue.Message{
		JobID:        jobID,
		Kind:         kind,
		ProductID:    p.ProductID,
		ListingID:    p.ListingID,
		Action:       p.Action,
		TargetStatus: p.TargetStatus,
		Reason:       p.Reason,
		SupplierID:   p.SupplierID,
		SKU:          p.SKU,
		UserID:       p.UserID,
	}
}

// Service records jobs and hands them to the queue.
type Service struct {
	repo     Repository
	producer queue.Producer
	logg     *logger.Logger
}

func NewService(repo Repository, producer queue.Producer, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("jobs repository required")
	}
	if producer == nil {
		return nil, errors.New("queue producer required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Service{repo: repo, producer: producer, logg: logg}, nil
}

// Enqueue creates a PENDING job row and appends it to the stream.
func (s *Service) Enqueue(ctx context.Context, kind enums.JobKind, payload Payload) (*models.Job, error) {
	return s.EnqueueTx(ctx, nil, kind, payload)
}

// EnqueueTx is Enqueue with the job row written through tx.
// The stream write is not transactional; a failed XADD marks the row FAILED.
func (s *Service) EnqueueTx(ctx context.Context, tx *gorm.DB, kind enums.JobKind, payload Payload) (*models.Job, error) {
	if err := payload.Validate(kind); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job payload")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode job payload")
	}

	repo := s.repo.WithTx(tx)
	job := &models.Job{
		Kind:    kind,
		Status:  enums.JobStatusPending,
		Payload: datatypes.JSON(raw),
	}
	if err := repo.Create(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create job")
	}

	ctx = s.logg.WithJobID(ctx, job.ID.String())
	entryID, err := s.producer.Enqueue(ctx, payload.message(job.ID, kind))
	if err != nil {
		if markErr := repo.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			s.logg.Error(ctx, "failed to mark unqueued job", markErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue job")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"kind":     kind.String(),
		"entry_id": entryID,
	}), "job enqueued")
	return job, nil
}

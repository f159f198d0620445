package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/dbtest"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
)

func TestEmitPersistsDecodableEnvelope(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	listingID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventListingStatusChanged,
			AggregateType: enums.AggregateListing,
			AggregateID:   listingID,
			Data: ListingStatusChanged{
				ListingID: listingID,
				From:      enums.ListingStatusActive,
				To:        enums.ListingStatusPaused,
				Reason:    "low_stock",
			},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var rows []models.OutboxEvent
	err = db.Transaction(func(tx *gorm.DB) error {
		var fetchErr error
		rows, fetchErr = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return fetchErr
	})
	if err != nil {
		t.Fatalf("fetch unpublished: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one outbox row, got %d", len(rows))
	}

	envelope, err := DecodeEnvelope(rows[0].Payload)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != 1 {
		t.Fatalf("expected version 1, got %d", envelope.Version)
	}

	decoded, err := DefaultDecoders().Decode(rows[0].EventType, envelope.Version, envelope.Data)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	payload, ok := decoded.(ListingStatusChanged)
	if !ok {
		t.Fatalf("expected ListingStatusChanged, got %T", decoded)
	}
	if payload.ListingID != listingID || payload.To != enums.ListingStatusPaused {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventListingStatusChanged}); err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(NewRepository(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventListingStatusChanged,
			AggregateType: enums.AggregateListing,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected caller error")
	}

	var count int64
	if err := db.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count outbox rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no outbox rows, got %d", count)
	}
}

func TestMarkFailedAndPublished(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventListingStatusChanged,
			AggregateType: enums.AggregateListing,
			AggregateID:   uuid.New(),
			Data:          map[string]string{},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var row models.OutboxEvent
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}

	if err := repo.MarkFailedTx(db, row.ID, errors.New("queue down")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := db.First(&row, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("reload row: %v", err)
	}
	if row.AttemptCount != 1 || row.LastError == nil {
		t.Fatalf("expected one failed attempt, got count=%d last_error=%v", row.AttemptCount, row.LastError)
	}

	pending, err := repo.FetchUnpublishedForPublish(db, 10, 1)
	if err != nil {
		t.Fatalf("fetch at max attempts: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("rows at max attempts are left for operators, got %d", len(pending))
	}

	if err := repo.MarkPublishedTx(db, row.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	pending, err = repo.FetchUnpublishedForPublish(db, 10, 0)
	if err != nil {
		t.Fatalf("fetch after publish: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %d", len(pending))
	}
}

package listings

import (
	"context"
	"encoding/json"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db"
	"github.com/angelmondragon/dropship-central/pkg/db/dbtest"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/outbox"
)

type fixture struct {
	db      *gorm.DB
	svc     Service
	product *models.Product
	account *models.StoreAccount
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(NewRepository(conn), db.NewFromConn(conn), outbox.NewService(outbox.NewRepository(conn), logg), logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	supplier := dbtest.MustCreateSupplier(t, conn, "acme")
	product := dbtest.MustCreateProduct(t, conn, supplier.ID, decimal.RequireFromString("10.00"), "In Stock")
	account := dbtest.MustCreateStoreAccount(t, conn, *product.UserID)
	return fixture{db: conn, svc: svc, product: product, account: account}
}

func (f fixture) listing(t *testing.T, status enums.ListingStatus) *models.Listing {
	t.Helper()
	return dbtest.MustCreateListing(t, f.db, f.product, f.account, decimal.RequireFromString("15.00"), status)
}

func countRows(t *testing.T, conn *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	if _, err := NewService(nil, db.NewFromConn(conn), emitter, logg); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewService(NewRepository(conn), nil, emitter, logg); err == nil {
		t.Fatal("expected error without tx runner")
	}
	if _, err := NewService(NewRepository(conn), db.NewFromConn(conn), nil, logg); err == nil {
		t.Fatal("expected error without outbox")
	}
}

func (f fixture) stored(t *testing.T, id uuid.UUID) models.Listing {
	t.Helper()
	var listing models.Listing
	if err := f.db.First(&listing, "id = ?", id).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	return listing
}

func allowedNames(from enums.ListingStatus) []string {
	names := []string{}
	for _, target := range from.AllowedTransitions() {
		names = append(names, target.String())
	}
	return names
}

func TestTransitionTable(t *testing.T) {
	all := []enums.ListingStatus{
		enums.ListingStatusPending,
		enums.ListingStatusActive,
		enums.ListingStatusPaused,
		enums.ListingStatusEnded,
		enums.ListingStatusDelisted,
	}
	for _, from := range all {
		for _, to := range all {
			from, to := from, to
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				f := newFixture(t)
				listing := f.listing(t, from)

				got, err := f.svc.Transition(context.Background(), listing.ID, to, "test")
				if from.CanTransitionTo(to) {
					if err != nil {
						t.Fatalf("transition: %v", err)
					}
					if got.Status != to {
						t.Fatalf("expected %s, got %s", to, got.Status)
					}
					if n := countRows(t, f.db, &models.AuditLog{}, "resource_id = ?", listing.ID); n != 1 {
						t.Fatalf("expected one audit row, got %d", n)
					}
					if n := countRows(t, f.db, &models.OutboxEvent{}, "aggregate_id = ?", listing.ID); n != 1 {
						t.Fatalf("expected one outbox event, got %d", n)
					}
					return
				}

				typed := pkgerrors.As(err)
				if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
					t.Fatalf("expected state conflict, got %v", err)
				}
				want := map[string]any{"from": from.String(), "to": to.String(), "allowed": allowedNames(from)}
				if !reflect.DeepEqual(typed.Details(), want) {
					t.Fatalf("expected details %v, got %v", want, typed.Details())
				}
				if stored := f.stored(t, listing.ID); stored.Status != from {
					t.Fatalf("expected status kept at %s, got %s", from, stored.Status)
				}
				if n := countRows(t, f.db, &models.AuditLog{}, "resource_id = ?", listing.ID); n != 0 {
					t.Fatalf("expected no audit rows, got %d", n)
				}
			})
		}
	}
}

func TestInvalidTransitionDetails(t *testing.T) {
	typed := pkgerrors.As(InvalidTransition(enums.ListingStatusEnded, enums.ListingStatusPaused))
	if typed == nil {
		t.Fatal("expected typed error")
	}
	details := typed.Details().(map[string]any)
	if !reflect.DeepEqual(details["allowed"], []string{"Delisted", "Active"}) {
		t.Fatalf("expected Ended to allow Delisted and Active, got %v", details["allowed"])
	}
	if !strings.Contains(typed.Message(), "from Ended to Paused") {
		t.Fatalf("unexpected message %q", typed.Message())
	}

	terminal := pkgerrors.As(InvalidTransition(enums.ListingStatusDelisted, enums.ListingStatusActive))
	if terminal.Message() != "listing is Delisted and can no longer change status" {
		t.Fatalf("unexpected terminal message %q", terminal.Message())
	}
	if allowed := terminal.Details().(map[string]any)["allowed"]; !reflect.DeepEqual(allowed, []string{}) {
		t.Fatalf("terminal status allows nothing, got %v", allowed)
	}
}

func TestTransitionWritesAuditAndEvent(t *testing.T) {
	f := newFixture(t)
	listing := f.listing(t, enums.ListingStatusActive)

	got, err := f.svc.Transition(context.Background(), listing.ID, enums.ListingStatusPaused, "low_stock")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.StatusReason == nil || *got.StatusReason != "low_stock" {
		t.Fatalf("expected reason low_stock, got %v", got.StatusReason)
	}

	var audits []models.AuditLog
	if err := f.db.Where("resource_id = ?", listing.ID).Find(&audits).Error; err != nil {
		t.Fatalf("load audits: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("expected one audit row, got %d", len(audits))
	}
	audit := audits[0]
	if audit.Action != "transition" || audit.ResourceType != "listing" || audit.UserID != listing.UserID {
		t.Fatalf("unexpected audit row %+v", audit)
	}

	var oldValue, newValue map[string]string
	if err := json.Unmarshal(audit.OldValue, &oldValue); err != nil {
		t.Fatalf("decode old value: %v", err)
	}
	if err := json.Unmarshal(audit.NewValue, &newValue); err != nil {
		t.Fatalf("decode new value: %v", err)
	}
	if oldValue["status"] != "Active" || newValue["status"] != "Paused" || newValue["reason"] != "low_stock" {
		t.Fatalf("unexpected audit values %v -> %v", oldValue, newValue)
	}

	var event models.OutboxEvent
	if err := f.db.Where("aggregate_id = ?", listing.ID).First(&event).Error; err != nil {
		t.Fatalf("load outbox event: %v", err)
	}
	if event.EventType != enums.EventListingStatusChanged {
		t.Fatalf("unexpected event type %s", event.EventType)
	}
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var payload outbox.ListingStatusChanged
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.From != enums.ListingStatusActive || payload.To != enums.ListingStatusPaused {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestTransitionStampsAndClearsEndedAt(t *testing.T) {
	f := newFixture(t)
	listing := f.listing(t, enums.ListingStatusActive)

	ended, err := f.svc.End(context.Background(), listing.ID, "")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.EndedAt == nil || ended.StatusReason == nil || *ended.StatusReason != ReasonManualEnd {
		t.Fatalf("expected ended_at and manual reason, got %+v", ended)
	}
	if stored := f.stored(t, listing.ID); stored.EndedAt == nil {
		t.Fatal("expected ended_at persisted")
	}

	resumed, err := f.svc.Resume(context.Background(), listing.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.EndedAt != nil || resumed.StatusReason != nil {
		t.Fatalf("expected ended_at and reason cleared, got %+v", resumed)
	}
	stored := f.stored(t, listing.ID)
	if stored.EndedAt != nil || stored.Status != enums.ListingStatusActive {
		t.Fatalf("unexpected stored listing %+v", stored)
	}
}

func TestPauseDefaultsReason(t *testing.T) {
	f := newFixture(t)
	listing := f.listing(t, enums.ListingStatusActive)

	got, err := f.svc.Pause(context.Background(), listing.ID, "")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got.StatusReason == nil || *got.StatusReason != ReasonManualPause {
		t.Fatalf("expected manual pause reason, got %v", got.StatusReason)
	}
}

func TestTransitionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transition(context.Background(), uuid.New(), enums.ListingStatusActive, "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionUnknownTarget(t *testing.T) {
	f := newFixture(t)
	listing := f.listing(t, enums.ListingStatusActive)
	_, err := f.svc.Transition(context.Background(), listing.ID, enums.ListingStatus("Archived"), "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransitionLosesCompareAndSwap(t *testing.T) {
	f := newFixture(t)
	listing := f.listing(t, enums.ListingStatusActive)

	concurrent := &racingRepo{Repository: NewRepository(f.db), db: f.db}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(concurrent, db.NewFromConn(f.db), outbox.NewService(outbox.NewRepository(f.db), logg), logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Transition(context.Background(), listing.ID, enums.ListingStatusPaused, "low_stock")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if n := countRows(t, f.db, &models.AuditLog{}, "resource_id = ?", listing.ID); n != 0 {
		t.Fatalf("expected no audit rows, got %d", n)
	}
	if n := countRows(t, f.db, &models.OutboxEvent{}, "aggregate_id = ?", listing.ID); n != 0 {
		t.Fatalf("expected no outbox events, got %d", n)
	}

	// The whole transaction rolled back, including the competing write staged inside it.
	if stored := f.stored(t, listing.ID); stored.Status != enums.ListingStatusActive {
		t.Fatalf("expected Active after rollback, got %s", stored.Status)
	}
}

func TestEnsureStatusIsIdempotent(t *testing.T) {
	f := newFixture(t)
	listing := f.listing(t, enums.ListingStatusActive)

	_, changed, err := f.svc.EnsureStatus(context.Background(), listing.ID, enums.ListingStatusPaused, "low_stock")
	if err != nil || !changed {
		t.Fatalf("expected first ensure to change, got changed=%v err=%v", changed, err)
	}

	got, changed, err := f.svc.EnsureStatus(context.Background(), listing.ID, enums.ListingStatusPaused, "low_stock")
	if err != nil || changed {
		t.Fatalf("expected second ensure to be a no-op, got changed=%v err=%v", changed, err)
	}
	if got.Status != enums.ListingStatusPaused {
		t.Fatalf("expected Paused, got %s", got.Status)
	}
	if n := countRows(t, f.db, &models.AuditLog{}, "resource_id = ?", listing.ID); n != 1 {
		t.Fatalf("expected one audit row, got %d", n)
	}
}

func TestListByProduct(t *testing.T) {
	f := newFixture(t)
	f.listing(t, enums.ListingStatusActive)
	f.listing(t, enums.ListingStatusPending)

	rows, err := f.svc.ListByProduct(context.Background(), f.product.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two listings, got %d", len(rows))
	}
}

// racingRepo moves the listing to Ended right before the conditional update, simulating a
// writer that committed between our read and our write.
type racingRepo struct {
	Repository
	db *gorm.DB
}

func (r *racingRepo) WithTx(tx *gorm.DB) Repository {
	return &racingRepo{Repository: r.Repository.WithTx(tx), db: tx}
}

func (r *racingRepo) CompareAndSetStatus(ctx context.Context, update StatusUpdate) (bool, error) {
	if err := r.db.Model(&models.Listing{}).
		Where("id = ?", update.ListingID).
		Update("status", enums.ListingStatusEnded).Error; err != nil {
		return false, err
	}
	return r.Repository.CompareAndSetStatus(ctx, update)
}

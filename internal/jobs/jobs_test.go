package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/policies"
	"github.com/angelmondragon/dropship-central/internal/products"
	"github.com/angelmondragon/dropship-central/internal/syncer"
	"github.com/angelmondragon/dropship-central/internal/tracking"
	"github.com/angelmondragon/dropship-central/pkg/db/dbtest"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/metrics"
	"github.com/angelmondragon/dropship-central/pkg/queue"
)

type recordingProducer struct {
	messages []queue.Message
	err      error
}

func (p *recordingProducer) Enqueue(_ context.Context, msg queue.Message) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, msg)
	return "1-0", nil
}

type memoryGuard struct {
	claimed map[uuid.UUID]bool
}

func (g *memoryGuard) CheckAndMarkProcessed(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if g.claimed[id] {
		return true, nil
	}
	g.claimed[id] = true
	return false, nil
}

func (g *memoryGuard) Delete(_ context.Context, _ string, id uuid.UUID) error {
	delete(g.claimed, id)
	return nil
}

type stubTracker struct {
	event *tracking.ChangeEvent
	err   error
	calls int
}

func (s *stubTracker) TrackProduct(context.Context, uuid.UUID) (*tracking.ChangeEvent, error) {
	s.calls++
	return s.event, s.err
}

type stubImporter struct {
	result *products.ImportResult
	err    error
	last   products.ImportRequest
}

func (s *stubImporter) Import(_ context.Context, req products.ImportRequest) (*products.ImportResult, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubPolicies struct {
	violations []policies.Violation
	err        error
}

func (s *stubPolicies) CheckPolicies(context.Context, uuid.UUID) ([]policies.Violation, error) {
	return s.violations, s.err
}

type stubListings struct {
	changed bool
	err     error
}

func (s *stubListings) EnsureStatus(_ context.Context, id uuid.UUID, target enums.ListingStatus, _ string) (*models.Listing, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	return &models.Listing{ID: id, Status: target}, s.changed, nil
}

type stubSyncer struct {
	err error
}

func (s *stubSyncer) SyncListing(_ context.Context, id uuid.UUID) (syncer.Result, error) {
	if s.err != nil {
		return syncer.Result{}, s.err
	}
	return syncer.Result{ListingID: id, Status: enums.ListingStatusActive, Action: syncer.ActionRepriced}, nil
}

type harness struct {
	db         *gorm.DB
	repo       Repository
	jobs       *Service
	producer   *recordingProducer
	tracker    *stubTracker
	importer   *stubImporter
	policies   *stubPolicies
	listings   *stubListings
	syncer     *stubSyncer
	guard      *memoryGuard
	dispatcher *Dispatcher
	registry   *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	h := &harness{
		db:       conn,
		repo:     NewRepository(conn),
		producer: &recordingProducer{},
		tracker:  &stubTracker{},
		importer: &stubImporter{},
		policies: &stubPolicies{},
		listings: &stubListings{changed: true},
		syncer:   &stubSyncer{},
		guard:    &memoryGuard{claimed: map[uuid.UUID]bool{}},
		registry: prometheus.NewRegistry(),
	}

	svc, err := NewService(h.repo, h.producer, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.jobs = svc

	dispatcher, err := NewDispatcher(DispatcherParams{
		Repo:        h.repo,
		Tracker:     h.tracker,
		Importer:    h.importer,
		Policies:    h.policies,
		Listings:    h.listings,
		Syncer:      h.syncer,
		Idempotency: h.guard,
		FollowUps:   svc,
		Consumer:    "worker-1",
		MaxAttempts: 2,
		Logger:      logg,
		Metrics:     metrics.NewJobMetrics(h.registry),
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	h.dispatcher = dispatcher
	return h
}

func (h *harness) enqueue(t *testing.T, kind enums.JobKind, payload Payload) queue.Message {
	t.Helper()
	if _, err := h.jobs.Enqueue(context.Background(), kind, payload); err != nil {
		t.Fatalf("enqueue %s: %v", kind, err)
	}
	return h.producer.messages[len(h.producer.messages)-1]
}

func (h *harness) job(t *testing.T, id uuid.UUID) models.Job {
	t.Helper()
	var job models.Job
	if err := h.db.First(&job, "id = ?", id).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	return job
}

func (h *harness) result(t *testing.T, id uuid.UUID) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(h.job(t, id).Result, &result); err != nil {
		t.Fatalf("decode job result: %v", err)
	}
	return result
}

func (h *harness) handled(t *testing.T, kind, outcome string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "dropship_jobs_handled_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["kind"] == kind && labels["status"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestEnqueueWritesRowAndMessage(t *testing.T) {
	h := newHarness(t)
	productID := uuid.New()

	job, err := h.jobs.Enqueue(context.Background(), enums.JobKindTrackProduct, ForProduct(productID))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	stored := h.job(t, job.ID)
	if stored.Status != enums.JobStatusPending {
		t.Fatalf("expected pending, got %s", stored.Status)
	}
	var payload Payload
	if err := json.Unmarshal(stored.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ProductID == nil || *payload.ProductID != productID {
		t.Fatalf("expected product %s in payload, got %v", productID, payload.ProductID)
	}

	if len(h.producer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(h.producer.messages))
	}
	msg := h.producer.messages[0]
	if msg.JobID != job.ID || msg.ProductID == nil || *msg.ProductID != productID {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestEnqueueValidatesPayload(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name    string
		kind    enums.JobKind
		payload Payload
	}{
		{name: "transition without target", kind: enums.JobKindTransitionListing, payload: ForListing(uuid.New())},
		{name: "import without sku", kind: enums.JobKindImportProduct, payload: ForImport(uuid.New(), "  ", nil)},
		{name: "import without supplier", kind: enums.JobKindImportProduct, payload: Payload{SKU: "B001"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.jobs.Enqueue(context.Background(), tc.kind, tc.payload)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(h.producer.messages) != 0 {
		t.Fatalf("expected nothing published, got %d messages", len(h.producer.messages))
	}
}

func TestEnqueueMarksRowFailedWhenStreamUnavailable(t *testing.T) {
	h := newHarness(t)
	h.producer.err = errors.New("redis down")

	_, err := h.jobs.Enqueue(context.Background(), enums.JobKindSyncListing, ForListing(uuid.New()))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	var rows []models.Job
	if err := h.db.Find(&rows).Error; err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one job row, got %d", len(rows))
	}
	if rows[0].Status != enums.JobStatusFailed {
		t.Fatalf("expected failed, got %s", rows[0].Status)
	}
	if rows[0].ErrorMessage == nil || *rows[0].ErrorMessage != "redis down" {
		t.Fatalf("expected error message recorded, got %v", rows[0].ErrorMessage)
	}
}

func TestHandleSuccessRecordsResult(t *testing.T) {
	h := newHarness(t)
	msg := h.enqueue(t, enums.JobKindSyncListing, ForListing(uuid.New()))

	if err := h.dispatcher.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored := h.job(t, msg.JobID)
	if stored.Status != enums.JobStatusSuccess || stored.Attempts != 1 || stored.CompletedAt == nil {
		t.Fatalf("unexpected job row %+v", stored)
	}
	var result syncer.Result
	if err := json.Unmarshal(stored.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Action != syncer.ActionRepriced {
		t.Fatalf("expected repriced, got %s", result.Action)
	}
	if got := h.handled(t, "sync_listing", outcomeSuccess); got != 1 {
		t.Fatalf("expected one success observed, got %v", got)
	}
}

func TestHandleSkipsCompletedJob(t *testing.T) {
	h := newHarness(t)
	msg := h.enqueue(t, enums.JobKindCheckPolicies, ForProduct(uuid.New()))

	for i := 0; i < 2; i++ {
		if err := h.dispatcher.Handle(context.Background(), msg); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if attempts := h.job(t, msg.JobID).Attempts; attempts != 1 {
		t.Fatalf("expected one attempt, got %d", attempts)
	}
}

func TestHandleTransitionRedeliveryIsSuccess(t *testing.T) {
	h := newHarness(t)
	h.listings.changed = false
	payload := ForListing(uuid.New())
	payload.TargetStatus = enums.ListingStatusPaused
	payload.Reason = "low_stock"
	msg := h.enqueue(t, enums.JobKindTransitionListing, payload)

	if err := h.dispatcher.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	result := h.result(t, msg.JobID)
	if result["status"] != "Paused" || result["changed"] != false {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestHandleRetryableFailureStaysPending(t *testing.T) {
	h := newHarness(t)
	h.tracker.err = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "fetch failed")
	msg := h.enqueue(t, enums.JobKindTrackProduct, ForProduct(uuid.New()))

	err := h.dispatcher.Handle(context.Background(), msg)
	if err == nil || queue.IsPermanent(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	stored := h.job(t, msg.JobID)
	if stored.Status != enums.JobStatusFailed || stored.ErrorMessage == nil {
		t.Fatalf("expected failed row with message, got %+v", stored)
	}
	if h.guard.claimed[msg.JobID] {
		t.Fatal("idempotency key should be released for the retry")
	}

	err = h.dispatcher.Handle(context.Background(), msg)
	if !queue.IsPermanent(err) {
		t.Fatalf("second attempt reaches the limit, got %v", err)
	}
	if got := h.handled(t, "track_product", outcomeRetry); got != 1 {
		t.Fatalf("expected one retry observed, got %v", got)
	}
	if got := h.handled(t, "track_product", outcomeDead); got != 1 {
		t.Fatalf("expected one dead observed, got %v", got)
	}
	if h.tracker.calls != 2 {
		t.Fatalf("expected two tracker calls, got %d", h.tracker.calls)
	}
	if attempts := h.job(t, msg.JobID).Attempts; attempts != 2 {
		t.Fatalf("expected two attempts, got %d", attempts)
	}
}

func TestHandleNonRetryableFailureIsPermanent(t *testing.T) {
	h := newHarness(t)
	h.listings.err = pkgerrors.New(pkgerrors.CodeStateConflict, "invalid transition")
	payload := ForListing(uuid.New())
	payload.TargetStatus = enums.ListingStatusActive
	msg := h.enqueue(t, enums.JobKindTransitionListing, payload)

	err := h.dispatcher.Handle(context.Background(), msg)
	if !queue.IsPermanent(err) || !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected permanent state conflict, got %v", err)
	}
}

func TestHandleChangedProductQueuesPolicyCheck(t *testing.T) {
	h := newHarness(t)
	productID := uuid.New()
	h.tracker.event = &tracking.ChangeEvent{ProductID: productID, StockChanged: true}
	msg := h.enqueue(t, enums.JobKindTrackProduct, ForProduct(productID))

	if err := h.dispatcher.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(h.producer.messages) != 2 {
		t.Fatalf("expected a follow-up message, got %d messages", len(h.producer.messages))
	}
	followUp := h.producer.messages[1]
	if followUp.Kind != enums.JobKindCheckPolicies || followUp.ProductID == nil || *followUp.ProductID != productID {
		t.Fatalf("unexpected follow-up %+v", followUp)
	}
}

func TestHandleImportProduct(t *testing.T) {
	h := newHarness(t)
	supplierID, owner, productID := uuid.New(), uuid.New(), uuid.New()
	h.importer.result = &products.ImportResult{ProductID: productID, Created: true}
	msg := h.enqueue(t, enums.JobKindImportProduct, ForImport(supplierID, "B001", &owner))

	if err := h.dispatcher.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	req := h.importer.last
	if req.SupplierID != supplierID || req.SKU != "B001" || req.UserID == nil || *req.UserID != owner {
		t.Fatalf("unexpected import request %+v", req)
	}
	result := h.result(t, msg.JobID)
	if result["product_id"] != productID.String() || result["created"] != true || result["changed"] != false {
		t.Fatalf("unexpected result %v", result)
	}
	if len(h.producer.messages) != 1 {
		t.Fatalf("a new product needs no policy pass, got %d messages", len(h.producer.messages))
	}
}

func TestHandleReimportWithChangeQueuesPolicyCheck(t *testing.T) {
	h := newHarness(t)
	productID := uuid.New()
	h.importer.result = &products.ImportResult{
		ProductID: productID,
		Change:    &tracking.ChangeEvent{ProductID: productID, PriceChanged: true},
	}
	msg := h.enqueue(t, enums.JobKindImportProduct, ForImport(uuid.New(), "B001", nil))

	if err := h.dispatcher.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.producer.messages) != 2 || h.producer.messages[1].Kind != enums.JobKindCheckPolicies {
		t.Fatalf("expected a policy check follow-up, got %+v", h.producer.messages)
	}
}

func TestHandleImportUnknownSkuIsPermanent(t *testing.T) {
	h := newHarness(t)
	h.importer.err = pkgerrors.New(pkgerrors.CodeNotFound, "supplier does not carry sku")
	msg := h.enqueue(t, enums.JobKindImportProduct, ForImport(uuid.New(), "B404", nil))

	err := h.dispatcher.Handle(context.Background(), msg)
	if !queue.IsPermanent(err) || !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected permanent not found, got %v", err)
	}
	if status := h.job(t, msg.JobID).Status; status != enums.JobStatusFailed {
		t.Fatalf("expected failed row, got %s", status)
	}
}

func TestHandleUnknownJobRowIsPermanent(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	msg := queue.Message{JobID: id, Kind: enums.JobKindSyncListing, ListingID: &id}

	err := h.dispatcher.Handle(context.Background(), msg)
	if !queue.IsPermanent(err) || !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected permanent not found, got %v", err)
	}
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	if _, err := NewDispatcher(DispatcherParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

package queue

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-central/pkg/enums"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	pkgredis "github.com/angelmondragon/dropship-central/pkg/redis"
)

type fakeStream struct {
	added   []map[string]string
	claimed []pkgredis.StreamMessage
	fresh   []pkgredis.StreamMessage
	acked   []string
	readErr error
	groups  int
}

func (f *fakeStream) XAdd(_ context.Context, _ string, values map[string]string) (string, error) {
	f.added = append(f.added, values)
	return "1-1", nil
}

func (f *fakeStream) EnsureGroup(context.Context, string, string) error {
	f.groups++
	return nil
}

func (f *fakeStream) XReadGroup(context.Context, string, string, string, int64, time.Duration) ([]pkgredis.StreamMessage, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := f.fresh
	f.fresh = nil
	return out, nil
}

func (f *fakeStream) XAutoClaim(context.Context, string, string, string, time.Duration, int64) ([]pkgredis.StreamMessage, error) {
	out := f.claimed
	f.claimed = nil
	return out, nil
}

func (f *fakeStream) XAck(_ context.Context, _ string, _ string, ids ...string) error {
	f.acked = append(f.acked, ids...)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "queue-test", Output: &bytes.Buffer{}})
}

func newTestConsumer(t *testing.T, stream *fakeStream) *Consumer {
	t.Helper()
	c, err := NewConsumer(stream, ConsumerConfig{Stream: "jobs", Group: "workers", Consumer: "w1"}, testLogger())
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c
}

func TestMessageRoundTripKeepsOptionalFields(t *testing.T) {
	productID := uuid.New()
	msg := Message{
		JobID:        uuid.New(),
		Kind:         enums.JobKindTransitionListing,
		ProductID:    &productID,
		TargetStatus: enums.ListingStatusPaused,
		Reason:       "low_stock",
	}

	values := msg.Values()
	for _, key := range []string{fieldListingID, fieldSupplierID, fieldSKU, fieldUserID} {
		if _, ok := values[key]; ok {
			t.Fatalf("expected %s omitted, got %v", key, values)
		}
	}

	decoded, err := Decode("5-0", values)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EntryID != "5-0" || decoded.JobID != msg.JobID {
		t.Fatalf("unexpected ids %+v", decoded)
	}
	if decoded.ProductID == nil || *decoded.ProductID != productID || decoded.ListingID != nil {
		t.Fatalf("unexpected product/listing %v/%v", decoded.ProductID, decoded.ListingID)
	}
	if decoded.TargetStatus != enums.ListingStatusPaused || decoded.Reason != "low_stock" {
		t.Fatalf("unexpected transition fields %+v", decoded)
	}
}

func TestMessageRoundTripCarriesImportFields(t *testing.T) {
	supplierID, userID := uuid.New(), uuid.New()
	msg := Message{JobID: uuid.New(), Kind: enums.JobKindImportProduct, SupplierID: &supplierID, SKU: "B001", UserID: &userID}

	decoded, err := Decode("6-0", msg.Values())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != enums.JobKindImportProduct || decoded.SKU != "B001" {
		t.Fatalf("unexpected message %+v", decoded)
	}
	if decoded.SupplierID == nil || *decoded.SupplierID != supplierID {
		t.Fatalf("expected supplier %s, got %v", supplierID, decoded.SupplierID)
	}
	if decoded.UserID == nil || *decoded.UserID != userID {
		t.Fatalf("expected user %s, got %v", userID, decoded.UserID)
	}
}

func TestDecodeRejectsBadEntries(t *testing.T) {
	cases := map[string]map[string]string{
		"missing job id": {fieldKind: "track_product"},
		"unknown kind":   {fieldJobID: uuid.NewString(), fieldKind: "reindex"},
		"bad product":    {fieldJobID: uuid.NewString(), fieldKind: "track_product", fieldProductID: "nope"},
		"bad status":     {fieldJobID: uuid.NewString(), fieldKind: "transition_listing", fieldTargetStatus: "Gone"},
		"bad supplier":   {fieldJobID: uuid.NewString(), fieldKind: "import_product", fieldSupplierID: "nope", fieldSKU: "B001"},
		"bad user":       {fieldJobID: uuid.NewString(), fieldKind: "import_product", fieldUserID: "nope"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode("1-0", values); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestPermanentWrapsAndUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := Permanent(base)
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Fatalf("expected permanent wrapper of base, got %v", err)
	}
	if IsPermanent(base) {
		t.Fatal("plain error must not be permanent")
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) must be nil")
	}
}

func TestProducerWritesValues(t *testing.T) {
	stream := &fakeStream{}
	producer, err := NewStreamProducer(stream, "jobs")
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}

	msg := Message{JobID: uuid.New(), Kind: enums.JobKindTrackProduct}
	id, err := producer.Enqueue(context.Background(), msg)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != "1-1" {
		t.Fatalf("expected entry id 1-1, got %s", id)
	}
	if len(stream.added) != 1 || stream.added[0][fieldKind] != "track_product" {
		t.Fatalf("unexpected stream writes %v", stream.added)
	}
}

func TestPollAcksSuccessAndPermanentOnly(t *testing.T) {
	ok := Message{JobID: uuid.New(), Kind: enums.JobKindTrackProduct}
	retry := Message{JobID: uuid.New(), Kind: enums.JobKindCheckPolicies}
	dead := Message{JobID: uuid.New(), Kind: enums.JobKindSyncListing}

	stream := &fakeStream{
		claimed: []pkgredis.StreamMessage{{ID: "1-0", Values: ok.Values()}},
		fresh: []pkgredis.StreamMessage{
			{ID: "2-0", Values: retry.Values()},
			{ID: "3-0", Values: dead.Values()},
			{ID: "4-0", Values: map[string]string{fieldKind: "garbage"}},
		},
	}
	consumer := newTestConsumer(t, stream)

	var seen []uuid.UUID
	handled, err := consumer.Poll(context.Background(), HandlerFunc(func(_ context.Context, msg Message) error {
		seen = append(seen, msg.JobID)
		switch msg.JobID {
		case retry.JobID:
			return errors.New("transient")
		case dead.JobID:
			return Permanent(errors.New("gave up"))
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("poll: %v", err)
	}

	if handled != 3 {
		t.Fatalf("expected 3 handled, got %d", handled)
	}
	if want := []uuid.UUID{ok.JobID, retry.JobID, dead.JobID}; !reflect.DeepEqual(seen, want) {
		t.Fatalf("expected order %v, got %v", want, seen)
	}
	if want := []string{"1-0", "3-0", "4-0"}; !reflect.DeepEqual(stream.acked, want) {
		t.Fatalf("expected acks %v, got %v", want, stream.acked)
	}
}

func TestPollSurfacesReadErrors(t *testing.T) {
	stream := &fakeStream{readErr: errors.New("connection reset")}
	consumer := newTestConsumer(t, stream)

	_, err := consumer.Poll(context.Background(), HandlerFunc(func(context.Context, Message) error { return nil }))
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected read error surfaced, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	msg := Message{JobID: uuid.New(), Kind: enums.JobKindTrackProduct}
	stream := &fakeStream{fresh: []pkgredis.StreamMessage{{ID: "9-0", Values: msg.Values()}}}
	consumer := newTestConsumer(t, stream)

	ctx, cancel := context.WithCancel(context.Background())
	err := consumer.Run(ctx, HandlerFunc(func(context.Context, Message) error {
		cancel()
		return nil
	}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stream.groups != 1 {
		t.Fatalf("expected group ensured once, got %d", stream.groups)
	}
	if want := []string{"9-0"}; !reflect.DeepEqual(stream.acked, want) {
		t.Fatalf("expected acks %v, got %v", want, stream.acked)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := NextBackoff(0, 500*time.Millisecond, 10*time.Second); got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
	if got := NextBackoff(8*time.Second, 500*time.Millisecond, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected cap 10s, got %s", got)
	}

	jittered := WithJitter(time.Second)
	if jittered < time.Second || jittered >= time.Second+jitterWindow {
		t.Fatalf("jitter out of range: %s", jittered)
	}
}

package app

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropship-central/internal/jobs"
	"github.com/angelmondragon/dropship-central/pkg/config"
	"github.com/angelmondragon/dropship-central/pkg/db"
	"github.com/angelmondragon/dropship-central/pkg/db/dbtest"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

type memoryStream struct {
	entries []map[string]string
}

func (m *memoryStream) XAdd(_ context.Context, _ string, values map[string]string) (string, error) {
	m.entries = append(m.entries, values)
	return "1-0", nil
}

func TestNewDomainWiresServices(t *testing.T) {
	conn := dbtest.Open(t)
	supplier := dbtest.MustCreateSupplier(t, conn, "acme")
	stream := &memoryStream{}

	cfg := &config.Config{
		Tracker:      config.TrackerConfig{Concurrency: 2},
		Policy:       config.PolicyConfig{LowStockThreshold: 5, PriceDropThreshold: "0.05", MinMargin: "0.15"},
		Queue:        config.QueueConfig{Stream: "dropship:jobs"},
		Marketplaces: config.MarketplacesConfig{Sandbox: true},
	}
	domain, err := NewDomain(context.Background(), Params{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         db.NewFromConn(conn),
		Stream:     stream,
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("new domain: %v", err)
	}
	if names := domain.Suppliers.Names(); !reflect.DeepEqual(names, []string{"acme"}) {
		t.Fatalf("unexpected suppliers %v", names)
	}
	if domain.Importer == nil {
		t.Fatal("expected product importer wired")
	}
	if _, err := domain.Marketplaces.Get(enums.MarketplaceEtsy); err != nil {
		t.Fatalf("etsy client: %v", err)
	}

	product := dbtest.MustCreateProduct(t, conn, supplier.ID, decimal.RequireFromString("10"), "2 left")
	violations, err := domain.Policies.CheckPolicies(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("check policies: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("a product without listings has nothing to violate, got %v", violations)
	}

	if _, err := domain.Jobs.Enqueue(context.Background(), enums.JobKindImportProduct, jobs.ForImport(supplier.ID, "B001", nil)); err != nil {
		t.Fatalf("enqueue import: %v", err)
	}
	if len(stream.entries) != 1 || stream.entries[0]["sku"] != "B001" {
		t.Fatalf("unexpected stream entries %v", stream.entries)
	}
}

func TestNewDomainRequiresStream(t *testing.T) {
	_, err := NewDomain(context.Background(), Params{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     db.NewFromConn(dbtest.Open(t)),
	})
	if err == nil {
		t.Fatal("expected error without a stream client")
	}
}

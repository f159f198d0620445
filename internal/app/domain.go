// Package app assembles the listing lifecycle services shared by the api, worker and
// cron-worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dropship-central/internal/jobs"
	"github.com/angelmondragon/dropship-central/internal/listings"
	"github.com/angelmondragon/dropship-central/internal/marketplaces"
	"github.com/angelmondragon/dropship-central/internal/policies"
	"github.com/angelmondragon/dropship-central/internal/products"
	"github.com/angelmondragon/dropship-central/internal/stores"
	"github.com/angelmondragon/dropship-central/internal/suppliers"
	"github.com/angelmondragon/dropship-central/internal/syncer"
	"github.com/angelmondragon/dropship-central/internal/tracking"
	"github.com/angelmondragon/dropship-central/pkg/config"
	"github.com/angelmondragon/dropship-central/pkg/db"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/metrics"
	"github.com/angelmondragon/dropship-central/pkg/outbox"
	"github.com/angelmondragon/dropship-central/pkg/queue"
)

type streamAppender interface {
	XAdd(ctx context.Context, stream string, values map[string]string) (string, error)
}

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Stream     streamAppender
	Registerer prometheus.Registerer
}

// Domain holds the wired services.
type Domain struct {
	Listings     listings.Service
	Tracking     *tracking.Service
	Importer     *products.Importer
	Policies     *policies.Engine
	PolicyRepo   policies.Repository
	Stores       stores.Service
	Syncer       *syncer.Service
	Jobs         *jobs.Service
	JobsRepo     jobs.Repository
	Suppliers    *suppliers.Registry
	Marketplaces *marketplaces.Registry
	JobMetrics   *metrics.JobMetrics
}

// NewDomain loads the supplier registry and builds every service on top of p.DB.
func NewDomain(ctx context.Context, p Params) (*Domain, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if p.DB == nil {
		return nil, errors.New("database client is required")
	}
	if p.Stream == nil {
		return nil, errors.New("stream client is required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	supplierRegistry, err := suppliers.LoadRegistry(ctx, suppliers.NewRepository(conn), cfg.Tracker.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("load suppliers: %w", err)
	}

	emitter := outbox.NewService(outbox.NewRepository(conn), p.Logger)
	listingService, err := listings.NewService(listings.NewRepository(conn), p.DB, emitter, p.Logger)
	if err != nil {
		return nil, err
	}

	trackingRepo := tracking.NewRepository(conn)
	detector, err := tracking.NewDetector(trackingRepo, p.DB, p.Logger)
	if err != nil {
		return nil, err
	}
	trackingService, err := tracking.NewService(tracking.ServiceParams{
		Repo:        trackingRepo,
		Suppliers:   supplierRegistry,
		Detector:    detector,
		Logger:      p.Logger,
		Metrics:     metrics.NewTrackingMetrics(p.Registerer),
		Concurrency: cfg.Tracker.Concurrency,
	})
	if err != nil {
		return nil, err
	}

	importer, err := products.NewImporter(products.ImporterParams{
		Repo:      products.NewRepository(conn),
		DB:        p.DB,
		Suppliers: supplierRegistry,
		Detector:  detector,
		Logger:    p.Logger,
	})
	if err != nil {
		return nil, err
	}

	policyRepo := policies.NewRepository(conn)
	engine, err := policies.NewEngine(policies.EngineParams{
		Repo:       policyRepo,
		DB:         p.DB,
		Listings:   listingService,
		Logger:     p.Logger,
		Metrics:    metrics.NewPolicyMetrics(p.Registerer),
		Thresholds: policies.ThresholdsFromConfig(cfg.Policy),
	})
	if err != nil {
		return nil, err
	}

	storeService, err := stores.NewService(stores.NewRepository(conn))
	if err != nil {
		return nil, err
	}

	marketplaceRegistry := marketplaces.BuildRegistry(cfg.Marketplaces)
	syncService, err := syncer.NewService(syncer.NewRepository(conn), marketplaceRegistry, p.Logger)
	if err != nil {
		return nil, err
	}

	producer, err := queue.NewStreamProducer(p.Stream, cfg.Queue.Stream)
	if err != nil {
		return nil, err
	}
	jobsRepo := jobs.NewRepository(conn)
	jobService, err := jobs.NewService(jobsRepo, producer, p.Logger)
	if err != nil {
		return nil, err
	}

	p.Logger.Info(p.Logger.WithFields(ctx, map[string]any{
		"suppliers":   supplierRegistry.Names(),
		"sandbox":     cfg.Marketplaces.Sandbox,
		"queueStream": cfg.Queue.Stream,
	}), "domain services wired")

	return &Domain{
		Listings:     listingService,
		Tracking:     trackingService,
		Importer:     importer,
		Policies:     engine,
		PolicyRepo:   policyRepo,
		Stores:       storeService,
		Syncer:       syncService,
		Jobs:         jobService,
		JobsRepo:     jobsRepo,
		Suppliers:    supplierRegistry,
		Marketplaces: marketplaceRegistry,
		JobMetrics:   metrics.NewJobMetrics(p.Registerer),
	}, nil
}

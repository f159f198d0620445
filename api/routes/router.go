package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dropship-central/api/controllers"
	"github.com/angelmondragon/dropship-central/api/middleware"
	"github.com/angelmondragon/dropship-central/pkg/config"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Gatherer prometheus.Gatherer
	Listings controllers.ListingService
	Tracker  controllers.ProductTracker
	Jobs     controllers.JobEnqueuer
	Policies controllers.PolicyChecker
	Alerts   controllers.AlertLister
	Stores   controllers.StoreService
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.Origins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/listings/{listingId}", func(r chi.Router) {
			r.Get("/", controllers.ListingGet(p.Listings, logg))
			r.Post("/transition", controllers.ListingTransition(p.Listings, logg))
			r.Post("/pause", controllers.ListingPause(p.Listings, logg))
			r.Post("/resume", controllers.ListingResume(p.Listings, logg))
			r.Post("/end", controllers.ListingEnd(p.Listings, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/track", controllers.ProductsTrackBatch(p.Tracker, logg))
			r.Post("/import", controllers.ProductImport(p.Jobs, logg))
			r.Route("/{productId}", func(r chi.Router) {
				r.Post("/track", controllers.ProductTrack(p.Tracker, logg))
				r.Get("/listings", controllers.ProductListings(p.Listings, logg))
				r.Post("/policies/check", controllers.ProductPoliciesCheck(p.Policies, logg))
				r.Get("/alerts", controllers.ProductAlerts(p.Alerts, logg))
			})
		})

		r.Route("/stores/{storeId}", func(r chi.Router) {
			r.Get("/", controllers.StoreGet(p.Stores, logg))
			r.Post("/disconnect", controllers.StoreDisconnect(p.Stores, logg))
		})
	})

	return r
}

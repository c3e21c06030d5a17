package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunecrate/tunecrate-backend/api/controllers"
	"github.com/tunecrate/tunecrate-backend/api/middleware"
	"github.com/tunecrate/tunecrate-backend/internal/catalog"
	"github.com/tunecrate/tunecrate-backend/internal/delivery"
	"github.com/tunecrate/tunecrate-backend/internal/entitlements"
	"github.com/tunecrate/tunecrate-backend/internal/purchases"
	"github.com/tunecrate/tunecrate-backend/internal/users"
	paystackwebhook "github.com/tunecrate/tunecrate-backend/internal/webhooks/paystack"
	"github.com/tunecrate/tunecrate-backend/pkg/config"
	"github.com/tunecrate/tunecrate-backend/pkg/db"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
	"github.com/tunecrate/tunecrate-backend/pkg/metrics"
	"github.com/tunecrate/tunecrate-backend/pkg/paystack"
	"github.com/tunecrate/tunecrate-backend/pkg/redis"
	"github.com/tunecrate/tunecrate-backend/pkg/storage/gcs"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	GCS      gcs.Pinger
	Registry *prometheus.Registry

	HTTPMetrics *metrics.HTTPMetrics

	CatalogService      catalog.Service
	PurchasesService    purchases.Service
	EntitlementsService entitlements.Service
	DeliveryService     delivery.Service
	UsersRepo           *users.Repository
	WebhookService      *paystackwebhook.Service
	PaystackClient      *paystack.Client
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyChecks(deps)))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", controllers.PaystackWebhook(deps.WebhookService, deps.PaystackClient, logg))
	})

	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/songs", controllers.SongList(deps.CatalogService, logg))
		r.Get("/songs/{songId}", controllers.SongGet(deps.CatalogService, logg))
		r.Get("/albums", controllers.AlbumList(deps.CatalogService, logg))
		r.Get("/albums/{albumId}", controllers.AlbumGet(deps.CatalogService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Identity, logg))

		r.With(middleware.PurchaseRateLimit(cfg.PurchaseRateLimit, deps.Redis, logg)).
			Post("/purchases", controllers.PurchaseInitiate(deps.PurchasesService, logg))
		r.Put("/purchases/verify", controllers.PurchaseVerify(deps.PurchasesService, logg))

		r.Get("/library", controllers.Library(deps.EntitlementsService, deps.UsersRepo, logg))
		r.Get("/stream/{songId}", controllers.StreamSong(deps.DeliveryService, deps.UsersRepo, logg))
		r.Post("/download/{assetId}", controllers.DownloadAsset(deps.DeliveryService, deps.UsersRepo, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Identity, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Post("/songs", controllers.SongUpload(deps.CatalogService, logg))
		r.Delete("/songs/{songId}", controllers.SongDelete(deps.CatalogService, logg))
		r.Post("/albums", controllers.AlbumUpload(deps.CatalogService, logg))
		r.Delete("/albums/{albumId}", controllers.AlbumDelete(deps.CatalogService, logg))
		r.Post("/entitlements/revoke",
			controllers.AdminEntitlementRevoke(deps.EntitlementsService, deps.UsersRepo, logg))
	})

	return r
}

func readyChecks(deps Deps) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	if deps.GCS != nil {
		checks["gcs"] = deps.GCS
	}
	return checks
}

package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tunecrate/tunecrate-backend/api/routes"
	"github.com/tunecrate/tunecrate-backend/internal/catalog"
	"github.com/tunecrate/tunecrate-backend/internal/delivery"
	"github.com/tunecrate/tunecrate-backend/internal/entitlements"
	"github.com/tunecrate/tunecrate-backend/internal/notifications"
	"github.com/tunecrate/tunecrate-backend/internal/purchases"
	"github.com/tunecrate/tunecrate-backend/internal/users"
	paystackwebhook "github.com/tunecrate/tunecrate-backend/internal/webhooks/paystack"
	"github.com/tunecrate/tunecrate-backend/pkg/config"
	"github.com/tunecrate/tunecrate-backend/pkg/db"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
	"github.com/tunecrate/tunecrate-backend/pkg/metrics"
	"github.com/tunecrate/tunecrate-backend/pkg/migrate"
	"github.com/tunecrate/tunecrate-backend/pkg/paystack"
	"github.com/tunecrate/tunecrate-backend/pkg/pubsub"
	"github.com/tunecrate/tunecrate-backend/pkg/redis"
	"github.com/tunecrate/tunecrate-backend/pkg/storage/gcs"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	requireResource(ctx, logg, "gcs", err)
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(ctx, "error closing gcs client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	paystackClient, err := paystack.NewClient(ctx, cfg.Paystack, logg)
	requireResource(ctx, logg, "paystack", err)

	registry := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(registry)
	storeMetrics := metrics.NewStoreMetrics(registry)

	usersRepo := users.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	entitlementsRepo := entitlements.NewRepository(dbClient.DB())

	catalogService, err := catalog.NewService(
		catalogRepo,
		gcsClient,
		gcsClient.DefaultBucket(),
		int64(cfg.Media.MaxUploadMB)<<20,
		logg,
	)
	requireResource(ctx, logg, "catalog service", err)

	entitlementsService, err := entitlements.NewService(entitlementsRepo, catalogRepo)
	requireResource(ctx, logg, "entitlements service", err)

	receiptPublisher, err := notifications.NewTopicPublisher(pubsubClient.ReceiptsPublisher())
	requireResource(ctx, logg, "receipts publisher", err)

	notificationsService, err := notifications.NewService(receiptPublisher, logg)
	requireResource(ctx, logg, "notifications service", err)

	purchasesService, err := purchases.NewService(
		entitlementsService,
		catalogRepo,
		usersRepo,
		paystackClient,
		notificationsService,
		storeMetrics,
		logg,
	)
	requireResource(ctx, logg, "purchases service", err)

	deliveryService, err := delivery.NewService(
		entitlementsService,
		catalogRepo,
		gcsClient,
		gcsClient.DefaultBucket(),
		cfg.GCS.StreamTTL,
		cfg.GCS.DownloadTTL,
		storeMetrics,
	)
	requireResource(ctx, logg, "delivery service", err)

	webhookService, err := paystackwebhook.NewService(
		entitlementsService,
		notificationsService,
		redisClient,
		storeMetrics,
		logg,
	)
	requireResource(ctx, logg, "paystack webhook service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:              cfg,
			Logger:              logg,
			DB:                  dbClient,
			Redis:               redisClient,
			GCS:                 gcsClient,
			Registry:            registry,
			HTTPMetrics:         httpMetrics,
			CatalogService:      catalogService,
			PurchasesService:    purchasesService,
			EntitlementsService: entitlementsService,
			DeliveryService:     deliveryService,
			UsersRepo:           usersRepo,
			WebhookService:      webhookService,
			PaystackClient:      paystackClient,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}

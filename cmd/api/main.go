package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/virtuline/virtuline-backend/api/routes"
	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/internal/providers/esimgo"
	"github.com/virtuline/virtuline-backend/internal/providers/fivesim"
	"github.com/virtuline/virtuline-backend/internal/providers/smmstone"
	"github.com/virtuline/virtuline-backend/internal/reconcile"
	"github.com/virtuline/virtuline-backend/internal/wallet"
	esimwebhook "github.com/virtuline/virtuline-backend/internal/webhooks/esim"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/db"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	"github.com/virtuline/virtuline-backend/pkg/logger"
	"github.com/virtuline/virtuline-backend/pkg/metrics"
	"github.com/virtuline/virtuline-backend/pkg/migrate"
	"github.com/virtuline/virtuline-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildProviderRegistry(cfg, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build provider registry", err)
		os.Exit(1)
	}

	walletService, err := wallet.NewService(wallet.ServiceParams{
		Repo: wallet.NewRepository(dbClient.DB()),
		DB:   dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	engine, err := reconcile.NewEngine(reconcile.EngineParams{
		Repo:     ordersRepo,
		Wallet:   walletService,
		Registry: registry,
		DB:       dbClient,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile engine", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Wallet:   walletService,
		Registry: registry,
		Routing: map[enums.OrderCategory]enums.ProviderID{
			enums.OrderCategoryPhone: enums.ProviderFiveSim,
			enums.OrderCategoryEsim:  enums.ProviderEsimGo,
			enums.OrderCategorySmm:   enums.ProviderSmmStone,
		},
		Reconciler: engine,
		Scheduler:  reconcile.NewScheduler(redisClient),
		PollDelay:  cfg.Reconcile.PollInterval,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	webhookService, err := esimwebhook.NewService(esimwebhook.ServiceParams{
		Orders:  ordersRepo,
		Applier: engine,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create esim webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			DBPinger:    dbClient,
			RedisPinger: redisClient,
			Orders:      ordersService,
			Wallet:      walletService,
			EsimWebhook: webhookService,
			Metrics:     prometheus.DefaultGatherer,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildProviderRegistry(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) (*providers.Registry, error) {
	timeouts := providers.CallTimeouts{
		Interactive: cfg.Reconcile.InteractiveCallTimeout,
		Background:  cfg.Reconcile.BackgroundCallTimeout,
	}
	telemetry := providers.NewTelemetry(
		logg,
		providers.NewCallLogRepository(dbClient.DB()),
		metrics.NewProviderCallMetrics(prometheus.DefaultRegisterer),
	)

	phone, err := fivesim.New(cfg.Providers.FiveSim, timeouts, logg)
	if err != nil {
		return nil, err
	}
	esim, err := esimgo.New(cfg.Providers.EsimGo, timeouts)
	if err != nil {
		return nil, err
	}
	smm, err := smmstone.New(cfg.Providers.SmmStone, timeouts)
	if err != nil {
		return nil, err
	}

	return providers.NewRegistry(
		providers.Instrument(phone, telemetry),
		providers.Instrument(esim, telemetry),
		providers.Instrument(smm, telemetry),
	)
}

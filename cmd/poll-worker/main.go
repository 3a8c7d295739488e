package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/internal/providers/esimgo"
	"github.com/virtuline/virtuline-backend/internal/providers/fivesim"
	"github.com/virtuline/virtuline-backend/internal/providers/smmstone"
	"github.com/virtuline/virtuline-backend/internal/reconcile"
	"github.com/virtuline/virtuline-backend/internal/wallet"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/db"
	"github.com/virtuline/virtuline-backend/pkg/logger"
	"github.com/virtuline/virtuline-backend/pkg/metrics"
	"github.com/virtuline/virtuline-backend/pkg/migrate"
	"github.com/virtuline/virtuline-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "poll-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "poll-worker"

	logg = logger.New(logger.Options{
		ServiceName: "poll-worker",
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

	worker, err := reconcile.NewWorker(reconcile.WorkerParams{
		Scheduler: reconcile.NewScheduler(redisClient),
		Applier:   engine,
		Repo:      ordersRepo,
		Registry:  registry,
		Logger:    logg,
		Config:    cfg.Reconcile,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create poll worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting poll worker")

	worker.Run(ctx)

	logg.Info(ctx, "poll worker shutting down gracefully")
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

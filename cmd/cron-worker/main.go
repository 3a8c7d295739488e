package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/virtuline/virtuline-backend/internal/cron"
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

const lockKeyFormat = "vl:cron-worker:lock:%s:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	sweepJob, err := cron.NewExpirySweepJob(cron.ExpirySweepJobParams{
		Logger:   logg,
		Reader:   ordersRepo,
		Applier:  engine,
		Registry: registry,
		Config:   cfg.Reconcile,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry sweep job", err)
		os.Exit(1)
	}

	balanceJob, err := cron.NewBalanceRefreshJob(cron.BalanceRefreshJobParams{
		Logger:   logg,
		Registry: registry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create balance refresh job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	sweepService, err := newCronService(cfg, logg, redisClient, metricsCollector, "sweep", cfg.Reconcile.SweepInterval, sweepJob)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}
	balanceService, err := newCronService(cfg, logg, redisClient, metricsCollector, "balance", cfg.Reconcile.BalanceInterval, balanceJob)
	if err != nil {
		logg.Error(context.Background(), "failed to create balance service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return sweepService.Run(groupCtx) })
	group.Go(func() error { return balanceService.Run(groupCtx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func newCronService(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	metricsCollector *metrics.CronJobMetrics,
	name string,
	interval time.Duration,
	jobs ...cron.Job,
) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env, name), 0)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: interval,
	})
}

func lockKey(env, name string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env, name)
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

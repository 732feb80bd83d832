package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundarb/api"
	"github.com/suwandre/fundarb/config"
	"github.com/suwandre/fundarb/internal/arbitrage"
	"github.com/suwandre/fundarb/internal/batch"
	"github.com/suwandre/fundarb/internal/collector"
	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/ingest"
	"github.com/suwandre/fundarb/internal/lock"
	"github.com/suwandre/fundarb/internal/logger"
	"github.com/suwandre/fundarb/internal/scheduler"
	"github.com/suwandre/fundarb/internal/store"
)

func main() {
	// ── 1. Bootstrap logger, replaced once config is known
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// ── 2. Root context setup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 3. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logFile, err := logger.Setup(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}
	defer logFile.Close()
	log.Info().Msg("config loaded")

	// ── 4. Store
	var (
		repo store.Repository
		pg   *store.Postgres
	)
	switch cfg.StoreDriver {
	case "memory":
		repo = store.NewMemory()
	default:
		pg, err = store.OpenPostgres(ctx, store.PostgresConfig{
			Host:        cfg.DB.Host,
			Port:        cfg.DB.Port,
			User:        cfg.DB.User,
			Password:    cfg.DB.Password,
			Name:        cfg.DB.Name,
			SSLMode:     cfg.DB.SSLMode,
			Logging:     cfg.DB.Logging,
			AutoMigrate: cfg.DB.Sync,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pg.Close()
		repo = pg
	}
	if err := repo.SeedExchanges(ctx, store.DefaultExchanges); err != nil {
		log.Fatal().Err(err).Msg("failed to seed exchanges")
	}
	log.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	// ── 5. Ingestion lock
	var locker lock.Locker
	switch cfg.LockDriver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, "", cfg.Redis.LockTTL)
	case "local":
		locker = lock.NewLocal()
	default:
		sqlDB, err := pg.SQL()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres pool unavailable for advisory lock")
		}
		locker = lock.NewPostgres(sqlDB)
	}
	log.Info().Str("driver", cfg.LockDriver).Int64("key", cfg.LockKey).Msg("lock ready")

	// ── 6. Exchange adapters
	httpClient := func(name string) *http.Client {
		c, err := exchange.NewHTTPClient(name, cfg.HTTPProxy, cfg.HTTPTimeout)
		if err != nil {
			log.Fatal().Err(err).Str("exchange", name).Msg("invalid HTTP_PROXY")
		}
		return c
	}

	aster, err := exchange.NewAsterClient(cfg.AsterFundingURL, httpClient("aster"))
	if err != nil {
		log.Fatal().Err(err).Msg("aster adapter")
	}
	mexc, err := exchange.NewMexcAdapter(cfg.MexcTickersURL, cfg.MexcFundingBase, httpClient("mexc"))
	if err != nil {
		log.Fatal().Err(err).Msg("mexc adapter")
	}

	// budget matches the poll interval so one tick never overlaps the next
	mexcBatch, err := batch.New(batch.Config{
		BatchSize: cfg.MexcBatchSize,
		RPS:       cfg.MexcRPS,
		Workers:   cfg.MexcWorkers,
		Budget:    cfg.PollInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mexc batch scheduler")
	}

	pipelines := []collector.Pipeline{
		collector.NewBulkPipeline(aster),
		collector.NewMexcPipeline(mexc, mexcBatch),
	}
	if cfg.BinanceEnabled {
		pipelines = append(pipelines, collector.NewBulkPipeline(
			exchange.NewBinanceAdapter(cfg.BinancePremiumURL, cfg.BinanceFundingInfoURL, httpClient("binance"))))
	}
	if cfg.BybitEnabled {
		pipelines = append(pipelines, collector.NewBulkPipeline(
			exchange.NewBybitAdapter(cfg.BybitTickersURL, httpClient("bybit"))))
	}
	log.Info().Int("count", len(pipelines)).Msg("exchange pipelines initialized")

	// ── 7. Collector + Scheduler
	coll := collector.New(ingest.NewService(repo), pipelines...)

	sched, err := scheduler.NewScheduler(coll, locker, cfg.LockKey, cfg.PollInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid poll interval")
	}
	sched.Start(ctx)
	defer sched.Stop()

	// ── 8. Detector
	detector := arbitrage.New(repo, arbitrage.Staleness{
		Default:   cfg.StaleDefault,
		Overrides: cfg.StaleOverrides,
	})

	// ── 9. Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Fundarb",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
	app.Use(recoverer.New())

	// ── 10. Routes
	api.SetupRoutes(app, detector, sched)

	// ── 11. Graceful shutdown listener
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	// ── 12. Start server (blocking)
	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

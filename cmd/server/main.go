package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashwinm/foliotrack/internal/clientdata"
	"github.com/ashwinm/foliotrack/internal/clients/yahoo"
	"github.com/ashwinm/foliotrack/internal/config"
	"github.com/ashwinm/foliotrack/internal/database"
	"github.com/ashwinm/foliotrack/internal/modules/history"
	"github.com/ashwinm/foliotrack/internal/modules/portfolio"
	"github.com/ashwinm/foliotrack/internal/modules/portfolio/handlers"
	"github.com/ashwinm/foliotrack/internal/persistence"
	"github.com/ashwinm/foliotrack/internal/pricing"
	"github.com/ashwinm/foliotrack/internal/scheduler"
	"github.com/ashwinm/foliotrack/internal/server"
	"github.com/ashwinm/foliotrack/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting foliotrack")

	// Price snapshot database. Optional: a broken cache database costs
	// warm starts, not functionality.
	var snapshots *clientdata.Repository
	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath,
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Warn().Err(err).Msg("Price snapshot database unavailable, running memory-only")
	} else {
		defer cacheDB.Close()
		snapshots = clientdata.NewRepository(cacheDB.Conn())
		if err := snapshots.InitSchema(); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize snapshot schema, running memory-only")
			snapshots = nil
		}
	}

	// Pricing: cache, quote provider, bounded-concurrency fetcher
	cache := pricing.NewPriceCache(cfg.PriceCacheTTL, cfg.PrevCloseTTL, snapshots, log)
	provider := yahoo.NewClient(log)
	fetcher := pricing.NewFetcher(cache, provider, pricing.FetcherConfig{
		Workers:   cfg.FetchWorkers,
		BatchWait: cfg.FetchBatchWait,
		Throttle:  cfg.FetchThrottle,
	}, log)

	// Portfolio state and its collaborators
	store := portfolio.NewStore(cfg.PruneOnZero, log)
	undoLog := history.NewUndoLog(store, log)
	audit := history.NewAuditRecorder(cfg.AuditLogFile, log)
	files := persistence.NewStore(cfg.PortfolioFile, cfg.BackupFile, log)

	service := portfolio.NewService(store, fetcher, undoLog, files, audit, log)
	service.LoadFromDisk()

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.RefreshSchedule, scheduler.NewRefreshJob(service, cfg.FetchBatchWait, log)); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RefreshSchedule).Msg("Failed to register price refresh job")
	}
	if err := sched.AddJob("@hourly", scheduler.NewCleanupJob(snapshots, cache, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		CacheDB:   cacheDB,
		Portfolio: handlers.NewHandler(service, log),
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Persist portfolios on the way out
	service.Shutdown()

	log.Info().Msg("Server stopped")
}

// Package main is the entry point for the Portlight analytics server. It
// reconstructs per-account NAV history from market data, computes the
// performance, risk and exposure records, and serves the results over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/portlight/portlight/internal/config"
	"github.com/portlight/portlight/internal/database"
	"github.com/portlight/portlight/internal/jobs"
	"github.com/portlight/portlight/internal/modules/analytics"
	"github.com/portlight/portlight/internal/modules/marketdata"
	"github.com/portlight/portlight/internal/server"
	"github.com/portlight/portlight/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Portlight")

	marketDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "market.db"),
		Profile: database.ProfileLedger,
		Name:    "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market database")
	}
	defer marketDB.Close()

	analyticsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "analytics.db"),
		Profile: database.ProfileStandard,
		Name:    "analytics",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open analytics database")
	}
	defer analyticsDB.Close()

	if err := marketDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate market database")
	}
	if err := analyticsDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate analytics database")
	}

	marketRepo := marketdata.NewRepository(marketDB.Conn(), log)
	resultRepo := analytics.NewRepository(analyticsDB.Conn(), log)

	service := analytics.NewService(analytics.Sources{
		Holdings:     marketRepo,
		Transactions: marketRepo,
		Prices:       marketRepo,
		Securities:   marketRepo,
		Benchmark:    marketRepo,
		Accounts:     marketRepo,
		Calendar:     marketRepo,
	}, resultRepo, analytics.Options{
		RiskFreeRate:    cfg.RiskFreeRate,
		BenchmarkSymbol: cfg.BenchmarkSymbol,
		LookbackDays:    cfg.LookbackDays,
		Workers:         cfg.BatchWorkers,
	}, log)

	sched := jobs.New(log)
	batchJob := jobs.NewBatchJob(service, 2*time.Hour, log)
	if err := sched.AddJob(cfg.BatchSchedule, batchJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.BatchSchedule).
			Msg("Failed to register batch job")
	}
	sched.Start()
	defer sched.Stop()

	if cfg.BatchOnStart {
		go func() {
			if err := sched.RunNow(batchJob); err != nil {
				log.Error().Err(err).Msg("Startup batch run failed")
			}
		}()
	}

	srv := server.New(server.Config{
		Port:        cfg.Port,
		Log:         log,
		MarketDB:    marketDB,
		AnalyticsDB: analyticsDB,
		Analytics:   analytics.NewHandler(resultRepo, service, batchJob, log),
		DevMode:     cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	// Fold the WAL back into the main files before the deferred closes
	for _, db := range []*database.DB{analyticsDB, marketDB} {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			log.Warn().Err(err).Str("db", db.Name()).Msg("WAL checkpoint failed")
		}
	}
}

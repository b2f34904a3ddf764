package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"options-anomaly-trader/internal/clock"
	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/database"
	"options-anomaly-trader/internal/detector"
	"options-anomaly-trader/internal/ingest"
	"options-anomaly-trader/internal/lock"
	"options-anomaly-trader/internal/logger"
	"options-anomaly-trader/internal/metrics"
	"options-anomaly-trader/internal/notify"
	"options-anomaly-trader/internal/pipeline"
	"options-anomaly-trader/internal/quote"
	"options-anomaly-trader/internal/snapshot"
	"options-anomaly-trader/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.Strings("folders", cfg.Data.Folders))

	// Initialize database
	db, err := database.NewDatabase(&cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	clk := clock.System{}
	loader, err := snapshot.NewLoader(cfg.Data, clk, log)
	if err != nil {
		log.Fatal("Failed to create snapshot loader", zap.Error(err))
	}
	gateway, err := ingest.NewGateway(db, &cfg, clk, log)
	if err != nil {
		log.Fatal("Failed to create persistence gateway", zap.Error(err))
	}

	strategy, err := trader.NewStrategy(cfg.Trading.Strategy)
	if err != nil {
		log.Fatal("Failed to create strategy", zap.Error(err))
	}

	var quotes trader.PriceSource
	if cfg.Trading.PriceSource == "quote" {
		quotes = quote.NewRestClient(&cfg.Quote, log)
		log.Info("Using quote service for prices")
	}

	engine := trader.NewEngine(log, &cfg, db, strategy, quotes, clk)

	var api *trader.APIServer
	if cfg.Runner.Interval > 0 && cfg.Runner.APIPort > 0 {
		api = trader.NewAPIServer(cfg.Runner.APIPort, strategy.Name(), log)
	}
	deps := pipeline.Deps{
		Config: &cfg,
		Logger: log,
		Clock:  clk,
		Loader: loader,
		Detectors: []detector.Detector{
			detector.NewVolume(cfg.Detection, log),
			detector.NewOpenInterest(cfg.Detection, log),
		},
		Gateway:  gateway,
		Engine:   engine,
		Notifier: notify.New(cfg.Notify, log),
		Locker:   lock.New(cfg.Redis, log),
		Metrics:  metrics.New(prometheus.DefaultRegisterer),
	}
	if api != nil {
		deps.Reports = api
	}
	runner := pipeline.New(deps)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if cfg.Runner.Interval == 0 {
		res, err := runner.Cycle(ctx)
		if err != nil {
			log.Fatal("Cycle failed", zap.Error(err))
		}
		if res.Report != nil {
			log.Info("Cycle complete",
				zap.Bool("stale", res.Report.Stale),
				zap.Int("buys", len(res.Report.Buys)),
				zap.Int("sells", len(res.Report.Sells)))
		}
		return
	}

	if api != nil {
		api.Start()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := api.Stop(shutdownCtx); err != nil {
				log.Error("API server shutdown failed", zap.Error(err))
			}
		}()
	}
	runner.Run(ctx, cfg.Runner.Interval)

	log.Info("Trader has been shut down.")
}

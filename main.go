package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"indexflow/book"
	"indexflow/config"
	"indexflow/feed"
	"indexflow/logger"
	"indexflow/stream"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Indexflow.Name,
		"version": cfg.Indexflow.Version,
	}).Info("starting indexflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	symbols, err := loadSymbolUniverse(ctx, cfg)
	if err != nil {
		// Development tolerates an empty universe; production-like
		// environments must not come up silently without symbols.
		if config.IsProductionLike(config.AppEnvironment()) {
			log.WithError(err).Error("failed to load symbol universe")
			os.Exit(1)
		}
		log.WithError(err).Warn("failed to load symbol universe, starting without feed")
		symbols = nil
	}

	cache := book.NewCache()

	feeder := feed.NewFeeder(cfg, cache, symbols)
	if err := feeder.Start(ctx); err != nil {
		log.WithError(err).Warn("feeder failed to start")
	}

	server := stream.NewServer(cfg, cache)
	if err := server.Start(ctx); err != nil {
		log.WithError(err).Error("stream server failed to start")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		server.Stop()
		feeder.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("indexflow stopped")
}

// loadSymbolUniverse prefers the configured assets file and falls back to
// exchange REST discovery when no file is configured.
func loadSymbolUniverse(ctx context.Context, cfg *config.Config) ([]string, error) {
	log := logger.GetLogger().WithComponent("main")

	if cfg.Assets.File != "" {
		assets, err := config.LoadAssets(cfg.Assets.File)
		if err != nil {
			return nil, err
		}
		symbols := assets.SymbolList()
		log.WithFields(logger.Fields{"symbols": len(symbols), "file": cfg.Assets.File}).Info("loaded asset universe")
		return symbols, nil
	}

	client := &http.Client{Timeout: 15 * time.Second}
	fetchCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	return feed.FetchSpotSymbols(fetchCtx, client, cfg.Feed.RestURL, cfg.Feed.Quote)
}

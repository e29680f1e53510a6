package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscraper/internal/api"
	"leadscraper/internal/config"
	"leadscraper/internal/enrich"
	"leadscraper/internal/monitoring"
	"leadscraper/internal/pipeline"
	"leadscraper/internal/proxy"
	"leadscraper/internal/scrape"
	"leadscraper/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scrape service with its HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	pgStore, err := storage.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		logger.Fatal("Failed to initialize PostgreSQL storage", zap.Error(err))
	}
	defer pgStore.Close()

	redisStore := storage.NewRedisStore(cfg.RedisAddr)
	defer redisStore.Close()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	pm := proxy.NewManager(nil)

	scraper := scrape.NewScraper(cfg, metrics, logger, func(ctx context.Context) (scrape.FeedDriver, error) {
		return scrape.NewDriver(ctx, cfg, pm, logger)
	})

	var enricher pipeline.Enricher
	if cfg.EnrichLeads {
		enricher = enrich.New(cfg.EnrichWait(), logger)
	}

	ctrl := pipeline.NewController(cfg, scraper, enricher, pgStore, redisStore,
		scrape.NewDetailFetcher(cfg, pm, logger), metrics, logger)

	runner := pipeline.NewRunner(cfg, ctrl, redisStore, metrics, logger)
	runner.Start()

	server := api.NewServer(cfg, runner, pgStore, redisStore, logger)
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	runner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
	return nil
}

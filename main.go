package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"yad2-pipeline/api"
	"yad2-pipeline/config"
	"yad2-pipeline/scraper/yad2"
	"yad2-pipeline/services"
	"yad2-pipeline/storage"
	"yad2-pipeline/utils"
)

const usage = `usage: yad2-pipeline [clean|scrape|train|stats|load|serve]

  clean   raw CSV -> cleaned CSV (default)
  scrape  yad2 result pages -> raw CSV
  train   cleaned CSV -> price model + reports/training_metrics.json
  stats   cleaned CSV -> reports/stats.json
  load    cleaned CSV -> DATABASE_URL table
  serve   dashboard API on HTTP_ADDR`

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	stage := "clean"
	if len(os.Args) > 1 {
		stage = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch stage {
	case "clean":
		err = runClean(ctx, cfg, logger)
	case "scrape":
		err = runScrape(ctx, cfg, logger)
	case "train":
		err = runTrain(cfg, logger)
	case "stats":
		err = runStats(cfg, logger)
	case "load":
		err = runLoad(cfg, logger)
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("%s failed: %v", stage, err)
		os.Exit(1)
	}
}

func runClean(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	logger.Info("=== Yad2 cleaning stage starting ===")

	notifier, err := services.NewNotifier(cfg.AMQPURL, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without snapshot events: %v", err)
		notifier, _ = services.NewNotifier("", "", logger)
	}
	defer notifier.Close()

	summary, err := services.RunClean(ctx, cfg, notifier, logger)
	if err != nil {
		if errors.Is(err, storage.ErrRawInputMissing) {
			return fmt.Errorf("raw input %s not found; run the scrape stage first (yad2-pipeline scrape): %w",
				cfg.RawPath, err)
		}
		return err
	}

	logger.Info("Rows read: %d | dropped (no price): %d | dropped (< %.0f): %d | written: %d",
		summary.RowsRead, summary.DroppedNoPrice, cfg.Pipeline.PriceFloor,
		summary.DroppedBelowFloor, summary.RowsWritten)
	for col, n := range summary.Imputed {
		logger.Debug("Imputed %d values in %s", n, col)
	}
	fmt.Printf("  Done. Cleaned snapshot → %s (%d rows, run %s)\n", summary.OutputPath, summary.RowsWritten, summary.RunID)
	return nil
}

func runScrape(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	logger.Info("=== Yad2 scraping stage starting ===")
	logger.Info("Config — pages: %d | concurrency: %d | rate: %dms",
		cfg.PagesToScrape, cfg.MaxConcurrency, cfg.RateLimitMs)

	records, err := yad2.New(cfg, logger).Scrape(ctx)
	if err != nil {
		return err
	}
	if err := storage.WriteRawCSV(cfg.RawPath, records); err != nil {
		return err
	}
	logger.Info("Scraped %d raw cards → %s", len(records), cfg.RawPath)
	return nil
}

func runTrain(cfg *config.Config, logger *utils.Logger) error {
	listings, err := storage.ReadCleanedCSV(cfg.CleanPath)
	if err != nil {
		return err
	}

	model, report, err := services.NewTrainer(cfg.Pipeline, logger).Train(listings)
	if err != nil {
		return err
	}
	if err := services.SaveModel(cfg.ModelPath, model); err != nil {
		return err
	}

	metricsPath := filepath.Join(cfg.ReportsDir, "training_metrics.json")
	if err := storage.WriteJSON(metricsPath, report); err != nil {
		return err
	}

	for variant, m := range report {
		logger.Info("Variant %-17s RMSE %.0f | R² %.3f", variant, m.RMSE, m.R2)
	}
	logger.Info("Trained on %d listings — kept %s → %s", len(listings), model.Name(), cfg.ModelPath)
	return nil
}

func runStats(cfg *config.Config, logger *utils.Logger) error {
	listings, err := storage.ReadCleanedCSV(cfg.CleanPath)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		return services.ErrEmptyDataset
	}

	svc := services.NewInsightService(logger)
	report := svc.Generate(listings, cfg.CompareCityA, cfg.CompareCityB)

	statsPath := filepath.Join(cfg.ReportsDir, "stats.json")
	if err := storage.WriteJSON(statsPath, report); err != nil {
		return err
	}
	svc.Print(report)
	logger.Info("Statistics over %d listings → %s", report.Desc.N, statsPath)
	return nil
}

func runLoad(cfg *config.Config, logger *utils.Logger) error {
	listings, err := storage.ReadCleanedCSV(cfg.CleanPath)
	if err != nil {
		return err
	}

	writer, err := storage.NewListingWriter(cfg.DatabaseURL, cfg.TableName)
	if err != nil {
		if errors.Is(err, storage.ErrNoDatabase) {
			logger.Error("Set DATABASE_URL (postgres://… or sqlite://path). For Postgres: docker compose up -d")
		}
		return err
	}
	defer writer.Close()

	if err := writer.Write(listings); err != nil {
		return err
	}
	n, err := writer.Count()
	if err != nil {
		return err
	}
	logger.Info("Loaded %d listings into %s (%d rows in table)", len(listings), cfg.TableName, n)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	srv := api.NewServer(cfg, logger)
	if err := srv.Reload(); err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Dashboard API listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
